package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Turn stage names.
const (
	StageSTT       = "stt"
	StageLLM       = "llm"
	StageTTS       = "tts"
	StageTurnTotal = "turn_total"
)

// stageBudgetsMS is the p95 latency budget per stage for a conversational turn.
var stageBudgetsMS = map[string]float64{
	StageSTT:       500,
	StageLLM:       900,
	StageTTS:       600,
	StageTurnTotal: 2500,
}

// TurnStageSnapshot is the rolling latency view served by /v1/perf/latency.
type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
}

type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

// stageRing keeps the most recent durations of one stage.
type stageRing struct {
	buf  []float64
	head int
	size int
	last float64
}

func (r *stageRing) add(ms float64) {
	r.buf[r.head] = ms
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
	r.last = ms
}

func (r *stageRing) stats(stage string) TurnStageStats {
	sorted := slices.Clone(r.buf[:r.size])
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return TurnStageStats{
		Stage:       stage,
		Samples:     r.size,
		LastMS:      round2(r.last),
		AvgMS:       round2(sum / float64(r.size)),
		P50MS:       round2(percentile(sorted, 0.50)),
		P95MS:       round2(percentile(sorted, 0.95)),
		P99MS:       round2(percentile(sorted, 0.99)),
		TargetP95MS: stageBudgetsMS[stage],
	}
}

type turnStageWindow struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*stageRing
}

func newTurnStageWindow(capacity int) *turnStageWindow {
	if capacity <= 0 {
		capacity = 256
	}
	return &turnStageWindow{capacity: capacity, rings: map[string]*stageRing{}}
}

// Observe records one stage duration in milliseconds. Negative values are ignored.
func (w *turnStageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.rings[stage]
	if r == nil {
		r = &stageRing{buf: make([]float64, w.capacity)}
		w.rings[stage] = r
	}
	r.add(ms)
}

// Snapshot returns stats for every observed stage, ordered by stage name.
func (w *turnStageWindow) Snapshot() TurnStageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.rings))
	for name, r := range w.rings {
		if r.size > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.capacity,
		Stages:      make([]TurnStageStats, 0, len(names)),
	}
	for _, name := range names {
		snap.Stages = append(snap.Stages, w.rings[name].stats(name))
	}
	return snap
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
