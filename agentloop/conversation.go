package agentloop

import (
	"errors"
	"fmt"

	"github.com/martinemde/shellagent/completion"
)

// ErrSystemMessageFirst is returned when the first message appended to a
// conversation is not a system message.
var ErrSystemMessageFirst = errors.New("conversation must begin with a system message")

// Conversation is the ordered, append-only message log sent to the model on
// every request. It is owned by a single goroutine.
type Conversation struct {
	messages []completion.Message
}

// NewConversation seeds a conversation with the system message and the goal.
func NewConversation(system, goal string) *Conversation {
	return &Conversation{messages: []completion.Message{
		completion.SystemMessage(system),
		completion.UserMessage(goal),
	}}
}

// Append adds msg to the end of the conversation.
func (c *Conversation) Append(msg completion.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("appending message: unknown role %q", msg.Role)
	}
	if len(c.messages) == 0 && msg.Role != completion.RoleSystem {
		return ErrSystemMessageFirst
	}
	c.messages = append(c.messages, msg)
	return nil
}

// Snapshot returns a copy of the messages. Later appends are not visible
// through it.
func (c *Conversation) Snapshot() []completion.Message {
	out := make([]completion.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}
