package agent

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// toolOrder is the order in which tools are declared to the planner.
var toolOrder = [...]string{ToolPredict, ToolValidate, ToolExplain, ToolForce, ToolWaterfall, ToolDecision}

// StrokeToolNames returns the names a catalog accepts, in declaration order.
func StrokeToolNames() []string { return slices.Clone(toolOrder[:]) }

// ToolCatalog maps the declared stroke tool names to their implementations.
// It is fixed once built, so lookups need no locking.
type ToolCatalog struct {
	tools [len(toolOrder)]Tool
}

// NewToolCatalog registers tools by name. Names outside the declared set and
// repeated names are rejected; a subset of the set is allowed.
func NewToolCatalog(tools ...Tool) (*ToolCatalog, error) {
	c := &ToolCatalog{}
	for _, tool := range tools {
		if tool == nil {
			return nil, errors.New("tool is nil")
		}
		name := tool.Spec().Name
		i := slices.Index(toolOrder[:], name)
		if i < 0 {
			return nil, fmt.Errorf("tool %q is not one of %s", name, strings.Join(toolOrder[:], ", "))
		}
		if c.tools[i] != nil {
			return nil, fmt.Errorf("tool %s registered twice", name)
		}
		c.tools[i] = tool
	}
	return c, nil
}

// Lookup finds a tool by the exact name the planner used.
func (c *ToolCatalog) Lookup(name string) (Tool, bool) {
	i := slices.Index(toolOrder[:], name)
	if i < 0 || c.tools[i] == nil {
		return nil, false
	}
	return c.tools[i], true
}

// Specs lists the registered tools in declaration order.
func (c *ToolCatalog) Specs() []ToolSpec {
	var specs []ToolSpec
	for _, tool := range c.tools {
		if tool != nil {
			specs = append(specs, tool.Spec())
		}
	}
	return specs
}
