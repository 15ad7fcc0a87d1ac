// Package llm produces assistant replies from a conversation history.
package llm

import (
	"context"

	"github.com/ent0n29/voiceagent/internal/convo"
)

// Completer returns the assistant reply for the full history. It must not
// modify the slice it is given.
type Completer interface {
	Complete(ctx context.Context, history []convo.Message) (string, error)
}
