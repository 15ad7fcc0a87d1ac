// Package token mints LiveKit room-access credentials.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/livekit/protocol/auth"
)

var (
	ErrMissingKeys    = errors.New("livekit api key and secret are required")
	ErrEmptyIdentity  = errors.New("identity must not be empty")
	ErrEmptyRoom      = errors.New("room must not be empty")
	errSigningFailure = errors.New("sign access token")
)

// Config holds the signing key pair and the room credentials are scoped to.
type Config struct {
	APIKey    string
	APISecret string
	Room      string
}

// Credential is a signed grant for one identity to join one room.
type Credential struct {
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"-"`
}

// Issuer is stateless; identical inputs with the same keys verify identically.
type Issuer struct {
	cfg Config
}

func NewIssuer(cfg Config) *Issuer {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.APISecret = strings.TrimSpace(cfg.APISecret)
	cfg.Room = strings.TrimSpace(cfg.Room)
	return &Issuer{cfg: cfg}
}

// Room returns the room that Issue scopes credentials to.
func (i *Issuer) Room() string { return i.cfg.Room }

// Configured reports whether a key pair is available.
func (i *Issuer) Configured() bool {
	return i.cfg.APIKey != "" && i.cfg.APISecret != ""
}

// Issue signs a room-join credential for identity in the configured room.
func (i *Issuer) Issue(identity string) (Credential, error) {
	return i.IssueFor(i.cfg.Room, identity)
}

// IssueFor signs a room-join credential for identity in an explicit room.
// The worker uses it to join whichever room a job names.
func (i *Issuer) IssueFor(room, identity string) (Credential, error) {
	identity = strings.TrimSpace(identity)
	room = strings.TrimSpace(room)
	if identity == "" {
		return Credential{}, ErrEmptyIdentity
	}
	if room == "" {
		return Credential{}, ErrEmptyRoom
	}
	if !i.Configured() {
		return Credential{}, ErrMissingKeys
	}

	at := auth.NewAccessToken(i.cfg.APIKey, i.cfg.APISecret)
	at.SetVideoGrant(&auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}).
		SetIdentity(identity).
		SetName(identity)

	jwt, err := at.ToJWT()
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", errSigningFailure, err)
	}
	return Credential{Token: jwt, Room: room, Identity: identity}, nil
}
