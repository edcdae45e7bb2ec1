package scheduler

import (
	"fmt"
	"strings"
)

// Policy selects how token arrivals are turned into apply events.
type Policy string

const (
	// Immediate applies every token synchronously.
	Immediate Policy = "immediate"
	// FrameBatched coalesces tokens into at most one apply per tick.
	FrameBatched Policy = "frame-batched"
	// PriorityDeferred batches like FrameBatched and marks applies non-urgent.
	PriorityDeferred Policy = "priority-deferred"
	// LagTolerant batches like FrameBatched and exposes a lagging view.
	LagTolerant Policy = "lag-tolerant"
	// Combined is PriorityDeferred and LagTolerant together.
	Combined Policy = "combined"
)

func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Immediate, FrameBatched, PriorityDeferred, LagTolerant, Combined:
		return p, nil
	default:
		return "", fmt.Errorf("unknown scheduler policy %q", s)
	}
}

func (p Policy) batched() bool {
	return p != Immediate
}

func (p Policy) interruptible() bool {
	return p == PriorityDeferred || p == Combined
}

func (p Policy) lagging() bool {
	return p == LagTolerant || p == Combined
}

// Lagging reports whether hosts should display the deferred view, redrawn
// from Options.Settled rather than from Apply.
func (p Policy) Lagging() bool {
	return p.lagging()
}

type preset struct {
	name   string
	policy Policy
}

// Ordered from least to most optimized.
var presets = []preset{
	{name: "naive", policy: Immediate},
	{name: "batched", policy: FrameBatched},
	{name: "transition", policy: PriorityDeferred},
	{name: "deferred", policy: LagTolerant},
	{name: "combined", policy: Combined},
}

// PresetPolicy resolves a named benchmark level to its policy. Policy names
// are accepted too.
func PresetPolicy(name string) (Policy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, p := range presets {
		if p.name == key {
			return p.policy, nil
		}
	}
	return ParsePolicy(key)
}

// Presets returns the preset names in level order.
func Presets() []string {
	out := make([]string, 0, len(presets))
	for _, p := range presets {
		out = append(out, p.name)
	}
	return out
}
