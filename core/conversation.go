package core

import "time"

// Message roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversational turn. Messages are value types; once a
// conversation is handed to an agent the slice is treated as immutable.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with the current UTC timestamp.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Conversation is the ordered turn history handed to agents. ID correlates
// execution provenance rows across delegation hops.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// NewConversation creates an empty conversation with a generated id.
func NewConversation() *Conversation {
	return &Conversation{ID: NewID()}
}

// Append adds a turn and returns the conversation for chaining.
func (c *Conversation) Append(role, content string) *Conversation {
	c.Messages = append(c.Messages, NewMessage(role, content))
	return c
}

// Latest returns the most recent message and true, or a zero message and
// false when the conversation is empty.
func (c *Conversation) Latest() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// History returns all turns except the latest, capped to the most recent max
// entries. A max of 0 or less means uncapped.
func (c *Conversation) History(max int) []Message {
	if len(c.Messages) < 2 {
		return nil
	}
	history := c.Messages[:len(c.Messages)-1]
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
