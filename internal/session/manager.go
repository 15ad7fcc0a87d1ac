package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the job-level outcome, coarser than the driver State.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"
	StatusFailed  Status = "failed"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrRoomBusy = errors.New("room already has an active session")
)

// Job is the bookkeeping record of one session bound to one room.
type Job struct {
	ID             string    `json:"job_id"`
	Room           string    `json:"room"`
	Source         string    `json:"source"`
	Status         Status    `json:"status"`
	State          State     `json:"state"`
	Turns          int       `json:"turns"`
	FailedTurns    int       `json:"failed_turns"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
}

func (j *Job) active() bool {
	return j.Status == StatusPending || j.Status == StatusRunning
}

// Manager tracks jobs and enforces one active job per room.
type Manager struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	activeByRoom map[string]string
	retention    time.Duration
	onExpire     func(*Job)
}

func NewManager(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Manager{
		jobs:         make(map[string]*Job),
		activeByRoom: make(map[string]string),
		retention:    retention,
	}
}

func (m *Manager) SetExpireHook(hook func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(room, source string) (*Job, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.activeByRoom[room]; ok {
		if j, ok := m.jobs[id]; ok && j.active() {
			return nil, ErrRoomBusy
		}
	}
	j := &Job{
		ID:             uuid.NewString(),
		Room:           room,
		Source:         source,
		Status:         StatusPending,
		State:          StateIdle,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.jobs[j.ID] = j
	m.activeByRoom[room] = j.ID
	return clone(j), nil
}

func (m *Manager) Get(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(j), nil
}

// List returns all retained jobs, oldest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, clone(j))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

func (m *Manager) SetState(jobID string, state State) error {
	return m.update(jobID, func(j *Job) {
		j.State = state
		if j.Status == StatusPending && state != StateIdle {
			j.Status = StatusRunning
		}
	})
}

func (m *Manager) RecordTurn(jobID string, ok bool) error {
	return m.update(jobID, func(j *Job) {
		if ok {
			j.Turns++
		} else {
			j.FailedTurns++
		}
	})
}

// End closes the job. A non-nil cause marks it failed.
func (m *Manager) End(jobID string, cause error) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = StatusEnded
	if cause != nil {
		j.Status = StatusFailed
		j.Error = cause.Error()
	}
	j.State = StateTerminated
	j.LastActivityAt = now
	j.EndedAt = now
	if m.activeByRoom[j.Room] == j.ID {
		delete(m.activeByRoom, j.Room)
	}
	return clone(j), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, j := range m.jobs {
		if j.active() {
			count++
		}
	}
	return count
}

// StartJanitor drops finished jobs once they are older than the retention window.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.pruneEnded()
			}
		}
	}()
}

func (m *Manager) update(jobID string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	j.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) pruneEnded() {
	now := time.Now().UTC()
	var expired []*Job

	m.mu.Lock()
	for id, j := range m.jobs {
		if j.active() || now.Sub(j.EndedAt) < m.retention {
			continue
		}
		delete(m.jobs, id)
		expired = append(expired, clone(j))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, j := range expired {
			hook(j)
		}
	}
}

func clone(j *Job) *Job {
	c := *j
	return &c
}
