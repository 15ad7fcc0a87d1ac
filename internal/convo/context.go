// Package convo holds the ordered message history of one voice session.
package convo

import (
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func System(content string) Message    { return newMessage(RoleSystem, content) }
func User(content string) Message      { return newMessage(RoleUser, content) }
func Assistant(content string) Message { return newMessage(RoleAssistant, content) }

func newMessage(role Role, content string) Message {
	return Message{Role: role, Content: strings.TrimSpace(content), CreatedAt: time.Now().UTC()}
}

// Context is append-only. The first message is always the system persona.
type Context struct {
	mu       sync.RWMutex
	messages []Message
}

func New(system string) *Context {
	return &Context{messages: []Message{System(system)}}
}

// Append adds messages in order as one atomic step.
func (c *Context) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	c.messages = append(c.messages, msgs...)
	c.mu.Unlock()
}

// Messages returns a copy of the history.
func (c *Context) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// WithPending returns the history followed by msg without committing msg.
func (c *Context) WithPending(msg Message) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages), len(c.messages)+1)
	copy(out, c.messages)
	return append(out, msg)
}

func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
