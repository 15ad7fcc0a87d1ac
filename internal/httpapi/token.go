package httpapi

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ent0n29/voiceagent/internal/observability"
	"github.com/ent0n29/voiceagent/internal/token"
)

// TokenServer serves room-access credentials. Requests are not authenticated.
type TokenServer struct {
	issuer  *token.Issuer
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewTokenServer(issuer *token.Issuer, metrics *observability.Metrics, logger zerolog.Logger) *TokenServer {
	return &TokenServer{
		issuer:  issuer,
		metrics: metrics,
		logger:  logger.With().Str("component", "token_api").Logger(),
	}
}

func (s *TokenServer) Router() http.Handler {
	r := newRouter()
	r.Get("/readyz", s.handleReady)
	r.Get("/token/{identity}", s.handleToken)
	return r
}

func (s *TokenServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"room":            s.issuer.Room(),
		"keys_configured": s.issuer.Configured(),
	})
}

// handleToken reports issuance failures as 500 with the underlying message.
func (s *TokenServer) handleToken(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	// chi matches on RawPath when it is set, and the param is still escaped.
	if r.URL.RawPath != "" {
		if decoded, err := url.PathUnescape(identity); err == nil {
			identity = decoded
		}
	}
	cred, err := s.issuer.Issue(identity)
	if err != nil {
		s.metrics.TokenIssued("error")
		s.logger.Error().Err(err).Msg("token issuance failed")
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.metrics.TokenIssued("ok")
	s.logger.Info().Str("identity", identity).Str("room", cred.Room).Msg("token issued")
	respondJSON(w, http.StatusOK, cred)
}
