// Package tokenstream generates the paced token sequence served by the
// stream endpoint.
package tokenstream

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Sink receives the framed output of one session.
type Sink interface {
	WriteToken(index int, content string) error
	WriteDone(total int) error
}

// Outcome describes why a run ended.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeDisconnected Outcome = "disconnected"
)

type Result struct {
	Tokens  int
	Outcome Outcome
	// Err is the write error that ended a disconnected run, if any. It is
	// informational; a consumer going away is not a failure.
	Err error
}

// Hooks lets the caller observe and interrupt a run. All fields are optional.
type Hooks struct {
	// Cancelled is polled before every token.
	Cancelled func() bool
	// Emitted is called after each token is written.
	Emitted func(index int)
}

// Pacer spaces writes by a fixed interval. The first Wait returns
// immediately.
type Pacer struct {
	limiter *rate.Limiter
}

func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Pace blocks until the next token may be written.
type Pace interface {
	Wait(ctx context.Context) error
}

// Run streams p.Words tokens into sink, one per p.Delay, then the done
// sentinel. It stops without writing further when ctx ends, when
// hooks.Cancelled reports true, or when a write fails.
func Run(ctx context.Context, p Params, sink Sink, hooks Hooks) Result {
	return RunPaced(ctx, NewGenerator(p.Words), NewPacer(p.Delay), sink, hooks)
}

// RunPaced is Run with the generator and pacing supplied by the caller.
func RunPaced(ctx context.Context, gen *Generator, pacer Pace, sink Sink, hooks Hooks) Result {
	stopped := func() (Outcome, bool) {
		if hooks.Cancelled != nil && hooks.Cancelled() {
			return OutcomeCancelled, true
		}
		if ctx.Err() != nil {
			return OutcomeDisconnected, true
		}
		return "", false
	}

	index := 0
	for {
		if o, ok := stopped(); ok {
			return Result{Tokens: index, Outcome: o}
		}
		tok, ok := gen.Next()
		if !ok {
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			if o, ok := stopped(); ok {
				return Result{Tokens: index, Outcome: o}
			}
			return Result{Tokens: index, Outcome: OutcomeDisconnected, Err: err}
		}
		if o, ok := stopped(); ok {
			return Result{Tokens: index, Outcome: o}
		}
		if err := sink.WriteToken(index, tok); err != nil {
			return Result{Tokens: index, Outcome: OutcomeDisconnected, Err: err}
		}
		if hooks.Emitted != nil {
			hooks.Emitted(index)
		}
		index++
	}

	if err := sink.WriteDone(index); err != nil {
		return Result{Tokens: index, Outcome: OutcomeDisconnected, Err: err}
	}
	return Result{Tokens: index, Outcome: OutcomeCompleted}
}
