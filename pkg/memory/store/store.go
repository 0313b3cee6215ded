// Package store persists conversation history keyed by session.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
)

// HistoryStore loads and saves the ordered history of a session. Loading an
// unknown session returns an empty history and no error.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]models.Message, error)
	Save(ctx context.Context, sessionID string, history []models.Message) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

func encodeHistory(history []models.Message) (string, error) {
	if history == nil {
		history = []models.Message{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

func decodeHistory(raw []byte) ([]models.Message, error) {
	var history []models.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return history, nil
}
