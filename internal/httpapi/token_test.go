package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ent0n29/voiceagent/internal/observability"
	"github.com/ent0n29/voiceagent/internal/token"
)

const (
	testAPIKey    = "APItestkey"
	testAPISecret = "a-sufficiently-long-test-secret-for-hmac"
)

func testMetrics(prefix string) *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))
}

func newTokenTestServer(t *testing.T, cfg token.Config) *httptest.Server {
	t.Helper()
	srv := NewTokenServer(token.NewIssuer(cfg), testMetrics("test_token_api"), zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestTokenEndpointIssuesVerifiableToken(t *testing.T) {
	ts := newTokenTestServer(t, token.Config{APIKey: testAPIKey, APISecret: testAPISecret, Room: "test-room"})

	res, err := http.Get(ts.URL + "/token/alice")
	if err != nil {
		t.Fatalf("GET /token/alice error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["room"] != "test-room" {
		t.Fatalf("room = %v, want %q", body["room"], "test-room")
	}
	raw, _ := body["token"].(string)
	if strings.Count(raw, ".") != 2 {
		t.Fatalf("token = %q, want a compact JWT", raw)
	}
	if len(body) != 2 {
		t.Fatalf("body = %+v, want only token and room", body)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(testAPISecret), nil
	}, jwt.WithValidMethods([]string{"HS256"})); err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims["sub"] != "alice" {
		t.Fatalf("sub = %v, want alice", claims["sub"])
	}
}

func TestTokenEndpointWithoutKeysReturns500(t *testing.T) {
	ts := newTokenTestServer(t, token.Config{Room: "test-room"})

	res, err := http.Get(ts.URL + "/token/alice")
	if err != nil {
		t.Fatalf("GET /token/alice error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	msg, _ := body["error"].(string)
	if msg == "" {
		t.Fatalf("error field empty in %+v", body)
	}
	if _, ok := body["token"]; ok {
		t.Fatalf("failure body should not carry a token: %+v", body)
	}
}

func TestTokenEndpointDecodesEscapedIdentityOnce(t *testing.T) {
	ts := newTokenTestServer(t, token.Config{APIKey: testAPIKey, APISecret: testAPISecret, Room: "test-room"})

	cases := []struct {
		path string
		want string
	}{
		{"user%20two", "user two"},
		{"a%2Fb", "a/b"},
		{"a%2541", "a%41"},
		{"100%25", "100%"},
	}
	for _, tc := range cases {
		res, err := http.Get(ts.URL + "/token/" + tc.path)
		if err != nil {
			t.Fatalf("GET %s error = %v", tc.path, err)
		}
		var body struct {
			Token string `json:"token"`
		}
		err = json.NewDecoder(res.Body).Decode(&body)
		res.Body.Close()
		if err != nil {
			t.Fatalf("decode body for %s: %v", tc.path, err)
		}
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(body.Token, claims); err != nil {
			t.Fatalf("parse token for %s: %v", tc.path, err)
		}
		if claims["sub"] != tc.want {
			t.Fatalf("GET /token/%s sub = %v, want %q", tc.path, claims["sub"], tc.want)
		}
	}
}

func TestTokenServerHealthAndReady(t *testing.T) {
	ts := newTokenTestServer(t, token.Config{Room: "lobby"})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["room"] != "lobby" || body["keys_configured"] != false {
		t.Fatalf("readyz = %+v, want room lobby without keys", body)
	}
}
