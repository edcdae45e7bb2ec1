package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ent0n29/streambench/internal/render"
	"github.com/ent0n29/streambench/internal/scheduler"
	"github.com/ent0n29/streambench/internal/streamclient"
)

type watchOptions struct {
	Preset string
	Render string
	Style  string
	Width  int
	Window int
}

func watchCommand(global *globalOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream once and render it through a scheduler preset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, global.Timeout)
			defer cancel()
			if opts.Render == "tui" {
				return runWatchTUI(ctx, global, opts)
			}
			return runWatch(ctx, global, opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Preset, "preset", "batched", "scheduler preset (naive|batched|transition|deferred|combined)")
	flags.StringVar(&opts.Render, "render", "rich", "output mode (raw|rich|tui)")
	flags.StringVar(&opts.Style, "style", "auto", "markdown style for rich output")
	flags.IntVar(&opts.Width, "width", 0, "wrap width; 0 detects the terminal")
	flags.IntVar(&opts.Window, "window", render.DefaultWindowBlocks, "trailing blocks drawn by the tui; 0 draws all")
	return cmd
}

// runWatch prints the stream to out. Lagging presets print the deferred
// view. Interrupting it stops the scheduler, which drops tokens that were
// received but not yet applied.
func runWatch(ctx context.Context, global *globalOptions, opts *watchOptions, out io.Writer) error {
	policy, err := scheduler.PresetPolicy(opts.Preset)
	if err != nil {
		return err
	}

	var printer *render.Printer
	switch opts.Render {
	case "raw":
		printer = render.NewPrinter(out, nil)
	case "rich":
		r, err := render.New(render.Options{Width: opts.Width, Style: opts.Style})
		if err != nil {
			return err
		}
		printer = render.NewPrinter(out, r)
	default:
		return fmt.Errorf("unknown render mode %q", opts.Render)
	}

	schedOpts := scheduler.Options{Policy: policy, Apply: printer.Apply}
	if policy.Lagging() {
		schedOpts.Apply = nil
		schedOpts.Settled = printer.Show
	}
	sched := scheduler.New(schedOpts)
	start := time.Now()
	stream := streamclient.Start(ctx, streamclient.Options{
		BaseURL: global.BaseURL,
		Words:   global.Words,
		Delay:   global.delay(),
		Logger:  global.logger,
		OnToken: sched.Push,
	})
	<-stream.Done()

	if err := stream.Err(); err != nil {
		sched.Stop()
		return err
	}
	if ctx.Err() != nil {
		sched.Stop()
		printer.Show(sched.Text())
		printer.Finish()
		stats := sched.Stats()
		fmt.Fprintf(out, "\nstopped after %d tokens (%d unapplied dropped)\n", stats.Tokens, stats.Dropped)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ctx.Err()
		}
		return nil
	}

	sched.Finish()
	sched.Settle()
	printer.Finish()
	stats := sched.Stats()
	global.logger.Sugar().Infow("stream complete",
		"preset", opts.Preset,
		"tokens", stats.Tokens,
		"applies", stats.Applies,
		"elapsed", time.Since(start),
	)
	return nil
}

func runWatchTUI(ctx context.Context, global *globalOptions, opts *watchOptions) error {
	policy, err := scheduler.PresetPolicy(opts.Preset)
	if err != nil {
		return err
	}
	r, err := render.New(render.Options{Width: opts.Width, Style: opts.Style})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Apply and Settled block in Send until the program reads the message.
	// Cancelling ctx releases them, so quitting cancels before Stop.
	var program *tea.Program
	var sched *scheduler.Scheduler
	sched = scheduler.New(scheduler.Options{
		Policy: policy,
		Apply: func(ev scheduler.ApplyEvent) {
			program.Send(render.ApplyMsg{
				Event:   ev,
				Stats:   sched.Stats(),
				Pending: sched.Pending(),
				Stale:   sched.Stale(),
				Lagging: policy.Lagging(),
			})
		},
		Settled: func(text string) {
			program.Send(render.SettleMsg{Text: text})
		},
	})

	title := fmt.Sprintf("streamwatch  preset:%s  policy:%s  words:%d  delay:%dms",
		opts.Preset, policy, global.Words, global.DelayMS)
	model := render.NewModel(r, title, func() {
		cancel()
		sched.Stop()
	})
	model.SetWindow(opts.Window)
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	start := time.Now()
	stream := streamclient.Start(ctx, streamclient.Options{
		BaseURL: global.BaseURL,
		Words:   global.Words,
		Delay:   global.delay(),
		Logger:  global.logger,
		OnToken: sched.Push,
		OnDone: func() {
			sched.Finish()
			sched.Settle()
			program.Send(render.DoneMsg{Elapsed: time.Since(start)})
		},
		OnError: func(err error) {
			program.Send(render.DoneMsg{Err: err, Elapsed: time.Since(start)})
		},
	})
	defer stream.Cancel()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return stream.Err()
}
