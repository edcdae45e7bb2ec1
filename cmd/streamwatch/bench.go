package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/streambench/internal/render"
	"github.com/ent0n29/streambench/internal/scheduler"
	"github.com/ent0n29/streambench/internal/streamclient"
)

type benchOptions struct {
	Presets  []string
	Parallel int
	Width    int
}

type benchResult struct {
	Preset  string
	Policy  scheduler.Policy
	Stats   scheduler.Stats
	Elapsed time.Duration
	// Renders counts redraws. Lagging presets redraw on settle, so it can
	// fall below Applies.
	Renders int
	// RenderTime is the total time spent re-rendering frames.
	RenderTime time.Duration
	// MaxRender is the slowest single frame.
	MaxRender time.Duration
	TextBytes int
}

func (r benchResult) appliesPerToken() float64 {
	if r.Stats.Tokens == 0 {
		return 0
	}
	return float64(r.Stats.Applies) / float64(r.Stats.Tokens)
}

func benchCommand(global *globalOptions) *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the same stream through every scheduler preset and compare",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), global.Timeout)
			defer cancel()
			results, err := runBench(ctx, global, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatBenchTable(results))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&opts.Presets, "presets", scheduler.Presets(), "presets to run, in order")
	flags.IntVar(&opts.Parallel, "parallel", 1, "presets streamed concurrently")
	flags.IntVar(&opts.Width, "width", 80, "render width used for frame timing")
	return cmd
}

// runBench streams once per preset and returns results in preset order.
func runBench(ctx context.Context, global *globalOptions, opts *benchOptions) ([]benchResult, error) {
	if len(opts.Presets) == 0 {
		return nil, fmt.Errorf("no presets selected")
	}
	policies := make([]scheduler.Policy, len(opts.Presets))
	for i, name := range opts.Presets {
		p, err := scheduler.PresetPolicy(name)
		if err != nil {
			return nil, err
		}
		policies[i] = p
	}

	results := make([]benchResult, len(opts.Presets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallel, 1))
	for i := range opts.Presets {
		g.Go(func() error {
			res, err := runPreset(gctx, global, opts.Presets[i], policies[i], opts.Width)
			if err != nil {
				return fmt.Errorf("preset %s: %w", opts.Presets[i], err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// frameTimer re-renders the displayed text and accumulates frame timings.
type frameTimer struct {
	r *render.Renderer

	mu         sync.Mutex
	renders    int
	renderTime time.Duration
	maxRender  time.Duration
	lastText   string
}

func (f *frameTimer) frame(text string) {
	start := time.Now()
	_ = f.r.Frame(text)
	d := time.Since(start)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders++
	f.renderTime += d
	f.maxRender = max(f.maxRender, d)
	f.lastText = text
}

// schedulerOptions draws the immediate view on apply, or the deferred view
// on settle for lagging policies.
func (f *frameTimer) schedulerOptions(policy scheduler.Policy, ticker scheduler.Ticker) scheduler.Options {
	opts := scheduler.Options{Policy: policy, Ticker: ticker}
	if policy.Lagging() {
		opts.Settled = f.frame
	} else {
		opts.Apply = func(ev scheduler.ApplyEvent) { f.frame(ev.Text) }
	}
	return opts
}

func runPreset(ctx context.Context, global *globalOptions, preset string, policy scheduler.Policy, width int) (benchResult, error) {
	r, err := render.New(render.Options{Width: width, Style: "notty"})
	if err != nil {
		return benchResult{}, err
	}

	timer := &frameTimer{r: r}
	sched := scheduler.New(timer.schedulerOptions(policy, nil))

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
		return benchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		sched.Stop()
		return benchResult{}, err
	}
	sched.Finish()
	sched.Settle()
	elapsed := time.Since(start)
	// No redraw starts after Stop returns.
	sched.Stop()

	timer.mu.Lock()
	defer timer.mu.Unlock()
	return benchResult{
		Preset:     preset,
		Policy:     policy,
		Stats:      sched.Stats(),
		Elapsed:    elapsed,
		Renders:    timer.renders,
		RenderTime: timer.renderTime,
		MaxRender:  timer.maxRender,
		TextBytes:  len(timer.lastText),
	}, nil
}

func formatBenchTable(results []benchResult) string {
	header := []string{"preset", "policy", "tokens", "applies", "applies/token", "renders", "render total", "render max", "elapsed"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Preset,
			string(r.Policy),
			fmt.Sprintf("%d", r.Stats.Tokens),
			fmt.Sprintf("%d", r.Stats.Applies),
			fmt.Sprintf("%.3f", r.appliesPerToken()),
			fmt.Sprintf("%d", r.Renders),
			r.RenderTime.Round(time.Microsecond).String(),
			r.MaxRender.Round(time.Microsecond).String(),
			r.Elapsed.Round(time.Millisecond).String(),
		})
	}
	return renderTable(header, rows)
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	tableCellStyle   = lipgloss.NewStyle()
	tableRuleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderTable lays out rows in padded columns.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = style.Width(widths[i]).Render(c)
		}
		return strings.Join(parts, "  ")
	}

	var b strings.Builder
	b.WriteString(line(header, tableHeaderStyle))
	b.WriteString("\n")
	total := 0
	for _, w := range widths {
		total += w
	}
	total += 2 * (len(widths) - 1)
	b.WriteString(tableRuleStyle.Render(strings.Repeat("-", total)))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(line(row, tableCellStyle))
	}
	return b.String()
}
