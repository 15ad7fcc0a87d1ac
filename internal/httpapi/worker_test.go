package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/ent0n29/voiceagent/internal/session"
)

type fakeDispatcher struct {
	jobs *session.Manager

	mu      sync.Mutex
	said    []string
	sayErr  error
	stopped []string
	events  []string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{jobs: session.NewManager(time.Minute)}
}

func (f *fakeDispatcher) Dispatch(room, source string) (*session.Job, error) {
	return f.jobs.Create(room, source)
}

func (f *fakeDispatcher) Say(_ context.Context, jobID, text string) error {
	if _, err := f.jobs.Get(jobID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sayErr != nil {
		return f.sayErr
	}
	f.said = append(f.said, text)
	return nil
}

func (f *fakeDispatcher) Stop(jobID string) error {
	if _, err := f.jobs.End(jobID, nil); err != nil {
		return err
	}
	f.mu.Lock()
	f.stopped = append(f.stopped, jobID)
	f.mu.Unlock()
	return nil
}

func (f *fakeDispatcher) HandleWebhookEvent(event *livekit.WebhookEvent) (*session.Job, error) {
	f.mu.Lock()
	f.events = append(f.events, event.GetEvent())
	f.mu.Unlock()
	if event.GetEvent() != "participant_joined" {
		return nil, nil
	}
	return f.jobs.Create(event.GetRoom().GetName(), "webhook")
}

func (f *fakeDispatcher) Jobs() *session.Manager { return f.jobs }

func (f *fakeDispatcher) setSayErr(err error) {
	f.mu.Lock()
	f.sayErr = err
	f.mu.Unlock()
}

func (f *fakeDispatcher) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

func (f *fakeDispatcher) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newWorkerTestServer(t *testing.T, d *fakeDispatcher, cfg WorkerConfig) *httptest.Server {
	t.Helper()
	srv := NewWorkerServer(cfg, d, testMetrics("test_worker_api"), zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(v)
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func TestCreateJobDefaultsRoomAndRejectsBusyRoom(t *testing.T) {
	d := newFakeDispatcher()
	ts := newWorkerTestServer(t, d, WorkerConfig{DefaultRoom: "test-room"})

	res := postJSON(t, ts.URL+"/v1/jobs", map[string]string{})
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var job session.Job
	if err := json.NewDecoder(res.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID == "" || job.Room != "test-room" || job.Source != "api" {
		t.Fatalf("job = %+v, want api job in test-room", job)
	}

	busy := postJSON(t, ts.URL+"/v1/jobs", map[string]string{"room": "test-room"})
	busy.Body.Close()
	if busy.StatusCode != http.StatusConflict {
		t.Fatalf("busy status = %d, want %d", busy.StatusCode, http.StatusConflict)
	}

	list, err := http.Get(ts.URL + "/v1/jobs")
	if err != nil {
		t.Fatalf("GET /v1/jobs error = %v", err)
	}
	defer list.Body.Close()
	var listed struct {
		Jobs []session.Job `json:"jobs"`
	}
	if err := json.NewDecoder(list.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Jobs) != 1 || listed.Jobs[0].ID != job.ID {
		t.Fatalf("jobs = %+v, want the created job", listed.Jobs)
	}
}

func TestSayEndpoint(t *testing.T) {
	d := newFakeDispatcher()
	ts := newWorkerTestServer(t, d, WorkerConfig{DefaultRoom: "test-room"})
	job, _ := d.Dispatch("test-room", "api")

	res := postJSON(t, ts.URL+"/v1/jobs/"+job.ID+"/say", map[string]string{"text": "One moment please."})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("say status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if said := d.spoken(); len(said) != 1 || said[0] != "One moment please." {
		t.Fatalf("said = %v, want the requested line", said)
	}

	blank := postJSON(t, ts.URL+"/v1/jobs/"+job.ID+"/say", map[string]string{"text": "  "})
	blank.Body.Close()
	if blank.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank status = %d, want %d", blank.StatusCode, http.StatusBadRequest)
	}

	missing := postJSON(t, ts.URL+"/v1/jobs/nope/say", map[string]string{"text": "hi"})
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d, want %d", missing.StatusCode, http.StatusNotFound)
	}

	d.setSayErr(session.ErrSessionClosed)
	closed := postJSON(t, ts.URL+"/v1/jobs/"+job.ID+"/say", map[string]string{"text": "hi"})
	closed.Body.Close()
	if closed.StatusCode != http.StatusConflict {
		t.Fatalf("closed status = %d, want %d", closed.StatusCode, http.StatusConflict)
	}

	d.setSayErr(errors.New("tts unavailable"))
	failed := postJSON(t, ts.URL+"/v1/jobs/"+job.ID+"/say", map[string]string{"text": "hi"})
	failed.Body.Close()
	if failed.StatusCode != http.StatusBadGateway {
		t.Fatalf("failed status = %d, want %d", failed.StatusCode, http.StatusBadGateway)
	}
}

func TestStopAndGetJob(t *testing.T) {
	d := newFakeDispatcher()
	ts := newWorkerTestServer(t, d, WorkerConfig{})
	job, _ := d.Dispatch("room-a", "api")

	res := postJSON(t, ts.URL+"/v1/jobs/"+job.ID+"/stop", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("stop status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}

	get, err := http.Get(ts.URL + "/v1/jobs/" + job.ID)
	if err != nil {
		t.Fatalf("GET job error = %v", err)
	}
	defer get.Body.Close()
	var got session.Job
	if err := json.NewDecoder(get.Body).Decode(&got); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if got.Status != session.StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, session.StatusEnded)
	}

	missing, err := http.Get(ts.URL + "/v1/jobs/nope")
	if err != nil {
		t.Fatalf("GET missing error = %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d, want %d", missing.StatusCode, http.StatusNotFound)
	}
}

func signedWebhook(t *testing.T, url, key, secret string, event *livekit.WebhookEvent) *http.Request {
	t.Helper()
	body, err := protojson.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	sum := sha256.Sum256(body)
	at := auth.NewAccessToken(key, secret)
	at.SetValidFor(time.Minute)
	at.SetSha256(base64.StdEncoding.EncodeToString(sum[:]))
	jwtToken, err := at.ToJWT()
	if err != nil {
		t.Fatalf("sign webhook: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/webhook+json")
	req.Header.Set("Authorization", jwtToken)
	return req
}

func TestWebhookDispatchesVerifiedParticipantJoin(t *testing.T) {
	d := newFakeDispatcher()
	ts := newWorkerTestServer(t, d, WorkerConfig{APIKey: testAPIKey, APISecret: testAPISecret})

	event := &livekit.WebhookEvent{
		Event:       "participant_joined",
		Room:        &livekit.Room{Name: "support-7"},
		Participant: &livekit.ParticipantInfo{Identity: "alice"},
	}
	res, err := http.DefaultClient.Do(signedWebhook(t, ts.URL+"/livekit/webhook", testAPIKey, testAPISecret, event))
	if err != nil {
		t.Fatalf("POST webhook error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("webhook status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
	var job session.Job
	if err := json.NewDecoder(res.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Room != "support-7" || job.Source != "webhook" {
		t.Fatalf("job = %+v, want webhook job in support-7", job)
	}

	ignored, err := http.DefaultClient.Do(signedWebhook(t, ts.URL+"/livekit/webhook", testAPIKey, testAPISecret, &livekit.WebhookEvent{
		Event: "room_finished",
		Room:  &livekit.Room{Name: "support-7"},
	}))
	if err != nil {
		t.Fatalf("POST webhook error = %v", err)
	}
	ignored.Body.Close()
	if ignored.StatusCode != http.StatusOK {
		t.Fatalf("ignored status = %d, want %d", ignored.StatusCode, http.StatusOK)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	d := newFakeDispatcher()
	ts := newWorkerTestServer(t, d, WorkerConfig{APIKey: testAPIKey, APISecret: testAPISecret})

	event := &livekit.WebhookEvent{Event: "participant_joined", Room: &livekit.Room{Name: "r"}}
	req := signedWebhook(t, ts.URL+"/livekit/webhook", testAPIKey, "a-different-secret-of-enough-length!!", event)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST webhook error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
	if n := d.eventCount(); n != 0 {
		t.Fatalf("unverified events reached the worker: %d", n)
	}

	unconfigured := newWorkerTestServer(t, d, WorkerConfig{})
	res2 := postJSON(t, unconfigured.URL+"/livekit/webhook", map[string]string{"event": "participant_joined"})
	res2.Body.Close()
	if res2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unconfigured status = %d, want %d", res2.StatusCode, http.StatusUnauthorized)
	}
}

func TestPerfLatencyAndReady(t *testing.T) {
	d := newFakeDispatcher()
	ts := newWorkerTestServer(t, d, WorkerConfig{})
	_, _ = d.Dispatch("room-a", "api")

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET perf error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("perf status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	ready, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET readyz error = %v", err)
	}
	defer ready.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(ready.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if body["active_jobs"] != float64(1) {
		t.Fatalf("active_jobs = %v, want 1", body["active_jobs"])
	}
}
