package llm

import (
	"context"
	"fmt"

	"github.com/ent0n29/voiceagent/internal/convo"
)

// MockCompleter echoes the latest user message. It keeps the worker usable
// without an LLM key.
type MockCompleter struct{}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

func (MockCompleter) Complete(ctx context.Context, history []convo.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == convo.RoleUser {
			return fmt.Sprintf("I heard you say: %s", history[i].Content), nil
		}
	}
	return "I'm listening.", nil
}
