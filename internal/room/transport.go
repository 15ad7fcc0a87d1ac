// Package room connects a voice session to a LiveKit room.
package room

import (
	"context"
	"errors"

	"github.com/ent0n29/voiceagent/internal/audio"
)

var ErrClosed = errors.New("room transport closed")

// Transport carries one session's audio. Frames is closed when the room
// disconnects or the linked participant leaves.
type Transport interface {
	Frames() <-chan audio.Frame
	Play(ctx context.Context, seg audio.Segment) error
	Close() error
}

// Connector joins a room on behalf of the agent.
type Connector interface {
	Connect(ctx context.Context, room string) (Transport, error)
}
