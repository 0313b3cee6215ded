package agent

import (
	"sync"

	"github.com/Protocol-Lattice/stroke-agent/pkg/explain"
	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
)

// Conversation is the state of one chat session: the ordered history and
// the most recent explanation. History only grows until Clear.
type Conversation struct {
	mu          sync.RWMutex
	messages    []models.Message
	explanation *explain.Result
}

// NewConversation restores a conversation from persisted history.
func NewConversation(history []models.Message) *Conversation {
	return &Conversation{messages: append([]models.Message(nil), history...)}
}

func (c *Conversation) Append(msgs ...models.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msgs...)
	c.mu.Unlock()
}

// Messages returns a copy of the full history.
func (c *Conversation) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Message(nil), c.messages...)
}

// Transcript returns only the user and assistant messages, the part of the
// history shown to people.
func (c *Conversation) Transcript() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Explanation returns the cached explanation, if any.
func (c *Conversation) Explanation() (*explain.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.explanation, c.explanation != nil
}

// SetExplanation replaces the cached explanation.
func (c *Conversation) SetExplanation(r *explain.Result) {
	c.mu.Lock()
	c.explanation = r
	c.mu.Unlock()
}

// Clear drops the history and the cached explanation.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.explanation = nil
	c.mu.Unlock()
}
