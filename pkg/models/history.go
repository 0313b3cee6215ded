package models

import (
	"encoding/json"
	"fmt"
)

// functionResultText replays a function result as plain text, for requests
// that carry no tool definitions.
func functionResultText(m Message) string {
	return fmt.Sprintf("Result of %s: %s", m.Name, m.Content)
}

// callArguments decodes raw call arguments. Anything that is not a JSON
// object yields an empty map.
func callArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// resultObject wraps a function result for providers that expect an
// object as the response payload.
func resultObject(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"content": content}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
