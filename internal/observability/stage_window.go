package observability

import (
	"maps"
	"math"
	"slices"
	"sync"
)

// stageTargetsP95MS holds the p95 budget per stage. A first token should
// leave within one pacing interval at the default 50ms delay.
var stageTargetsP95MS = map[string]float64{
	StageFirstToken: 50,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

// StageSnapshot is the body of GET /v1/perf/latency. Outcomes counts stream
// ends by outcome.
type StageSnapshot struct {
	WindowSize int            `json:"window_size"`
	Stages     []StageStats   `json:"stages"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
}

// stageWindow keeps the most recent size samples of each stage.
type stageWindow struct {
	mu       sync.Mutex
	size     int
	samples  map[string][]float64
	outcomes map[string]int
}

func newStageWindow(size int) *stageWindow {
	w := &stageWindow{size: max(size, 1)}
	w.Reset()
	return w
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[stage], ms)
	if len(s) > w.size {
		s = slices.Delete(s, 0, len(s)-w.size)
	}
	w.samples[stage] = s
}

func (w *stageWindow) ObserveOutcome(outcome string) {
	if outcome == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[outcome]++
}

// Snapshot reports stages sorted by name with nearest-rank percentiles.
func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{WindowSize: w.size, Stages: []StageStats{}}
	for _, stage := range slices.Sorted(maps.Keys(w.samples)) {
		recent := w.samples[stage]
		sorted := slices.Sorted(slices.Values(recent))
		sum := 0.0
		for _, v := range sorted {
			sum += v
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:       stage,
			Samples:     len(sorted),
			LastMS:      round2(recent[len(recent)-1]),
			AvgMS:       round2(sum / float64(len(sorted))),
			P50MS:       round2(nearestRank(sorted, 0.50)),
			P95MS:       round2(nearestRank(sorted, 0.95)),
			MaxMS:       round2(sorted[len(sorted)-1]),
			TargetP95MS: stageTargetsP95MS[stage],
		})
	}
	if len(w.outcomes) > 0 {
		snap.Outcomes = maps.Clone(w.outcomes)
	}
	return snap
}

func (w *stageWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = make(map[string][]float64)
	w.outcomes = make(map[string]int)
}

func nearestRank(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
