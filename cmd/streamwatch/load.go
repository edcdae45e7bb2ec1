package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/streambench/internal/protocol"
	"github.com/ent0n29/streambench/internal/reliability"
	"github.com/ent0n29/streambench/internal/streamclient"
)

type loadOptions struct {
	Clients   int
	Transport string
	Verbose   bool
	// Retries reopens streams rejected with a retryable status before any
	// token arrived.
	Retries int
	Backoff time.Duration
}

// loadSample is one client's view of its stream.
type loadSample struct {
	FirstToken time.Duration
	Total      time.Duration
	Tokens     int
	Attempts   int
	Err        error
}

type loadSummary struct {
	Clients   int
	Failed    int
	Retried   int
	Tokens    int
	FirstP50  time.Duration
	FirstP95  time.Duration
	TotalP50  time.Duration
	TotalMax  time.Duration
	Wallclock time.Duration
}

func loadCommand(global *globalOptions) *cobra.Command {
	opts := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Open many concurrent streams and report first-token latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), global.Timeout)
			defer cancel()
			summary, err := runLoad(ctx, global, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, formatLoadSummary(opts.Transport, summary))
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d streams failed", summary.Failed, summary.Clients)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.Clients, "clients", 10, "concurrent streams")
	flags.StringVar(&opts.Transport, "transport", "sse", "transport (sse|ws)")
	flags.BoolVar(&opts.Verbose, "verbose", false, "log each finished stream")
	flags.IntVar(&opts.Retries, "retries", 0, "reopen attempts for streams rejected at capacity")
	flags.DurationVar(&opts.Backoff, "backoff", 100*time.Millisecond, "initial retry backoff")
	return cmd
}

func runLoad(ctx context.Context, global *globalOptions, opts *loadOptions) (loadSummary, error) {
	if opts.Clients <= 0 {
		return loadSummary{}, fmt.Errorf("--clients must be > 0")
	}
	if opts.Retries < 0 {
		return loadSummary{}, fmt.Errorf("--retries must be >= 0")
	}
	var one func(context.Context) loadSample
	switch strings.ToLower(opts.Transport) {
	case "sse":
		one = func(ctx context.Context) loadSample { return sseSample(ctx, global) }
	case "ws":
		wsURL, err := wsStreamURL(global.BaseURL, global.Words, global.DelayMS)
		if err != nil {
			return loadSummary{}, fmt.Errorf("build ws URL: %w", err)
		}
		one = func(ctx context.Context) loadSample { return wsSample(ctx, wsURL) }
	default:
		return loadSummary{}, fmt.Errorf("unknown transport %q", opts.Transport)
	}

	samples := make([]loadSample, opts.Clients)
	start := time.Now()
	var g errgroup.Group
	for i := range samples {
		g.Go(func() error {
			samples[i] = withRetries(ctx, opts, one)
			if opts.Verbose {
				global.logger.Info("stream finished",
					zap.Int("client", i),
					zap.Int("tokens", samples[i].Tokens),
					zap.Int("attempts", samples[i].Attempts),
					zap.Duration("first_token", samples[i].FirstToken),
					zap.Error(samples[i].Err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := summarize(samples)
	summary.Wallclock = time.Since(start)
	return summary, nil
}

func withRetries(ctx context.Context, opts *loadOptions, one func(context.Context) loadSample) loadSample {
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	for attempt := 0; ; attempt++ {
		sample := one(ctx)
		sample.Attempts = attempt + 1
		if sample.Err == nil || sample.Tokens > 0 || attempt >= opts.Retries {
			return sample
		}
		if !reliability.IsRetryableStreamError(sample.Err) {
			return sample
		}
		if err := reliability.Wait(ctx, attempt, backoff, 20*backoff); err != nil {
			return sample
		}
	}
}

func sseSample(ctx context.Context, global *globalOptions) loadSample {
	var (
		mu     sync.Mutex
		sample loadSample
	)
	start := time.Now()
	stream := streamclient.Start(ctx, streamclient.Options{
		BaseURL: global.BaseURL,
		Words:   global.Words,
		Delay:   global.delay(),
		Logger:  global.logger,
		OnToken: func(string) {
			mu.Lock()
			defer mu.Unlock()
			if sample.Tokens == 0 {
				sample.FirstToken = time.Since(start)
			}
			sample.Tokens++
		},
	})
	<-stream.Done()

	mu.Lock()
	defer mu.Unlock()
	sample.Total = time.Since(start)
	sample.Err = stream.Err()
	if sample.Err == nil && ctx.Err() != nil {
		sample.Err = ctx.Err()
	}
	return sample
}

func wsSample(ctx context.Context, wsURL string) loadSample {
	start := time.Now()
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			err = &streamclient.StatusError{StatusCode: resp.StatusCode}
		}
		return loadSample{Err: fmt.Errorf("open websocket: %w", err), Total: time.Since(start)}
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var sample loadSample
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			sample.Total = time.Since(start)
			if ctx.Err() != nil {
				sample.Err = ctx.Err()
			} else {
				sample.Err = fmt.Errorf("ws read: %w", err)
			}
			return sample
		}
		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case protocol.TokenEvent:
			if sample.Tokens == 0 {
				sample.FirstToken = time.Since(start)
			}
			sample.Tokens++
		case protocol.DoneEvent:
			sample.Total = time.Since(start)
			if m.Tokens != sample.Tokens {
				sample.Err = fmt.Errorf("done reported %d tokens, received %d", m.Tokens, sample.Tokens)
			}
			return sample
		case protocol.ErrorEvent:
			sample.Total = time.Since(start)
			sample.Err = errors.New("server error: " + m.Code)
			return sample
		}
	}
}

func wsStreamURL(baseURL string, words, delayMS int) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/stream/ws"
	q := u.Query()
	q.Set("words", strconv.Itoa(words))
	q.Set("delay", strconv.Itoa(delayMS))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func summarize(samples []loadSample) loadSummary {
	s := loadSummary{Clients: len(samples)}
	var firsts, totals []time.Duration
	for _, sample := range samples {
		s.Tokens += sample.Tokens
		if sample.Attempts > 1 {
			s.Retried++
		}
		if sample.Err != nil {
			s.Failed++
			continue
		}
		if sample.Tokens > 0 {
			firsts = append(firsts, sample.FirstToken)
		}
		totals = append(totals, sample.Total)
	}
	s.FirstP50 = percentile(firsts, 0.50)
	s.FirstP95 = percentile(firsts, 0.95)
	s.TotalP50 = percentile(totals, 0.50)
	s.TotalMax = percentile(totals, 1)
	return s
}

// percentile uses nearest-rank on a sorted copy.
func percentile(values []time.Duration, q float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q*float64(len(sorted)) + 0.5)
	idx = min(max(idx-1, 0), len(sorted)-1)
	return sorted[idx]
}

func formatLoadSummary(transport string, s loadSummary) string {
	header := []string{"transport", "clients", "failed", "retried", "tokens", "first p50", "first p95", "total p50", "total max", "wallclock"}
	row := []string{
		transport,
		strconv.Itoa(s.Clients),
		strconv.Itoa(s.Failed),
		strconv.Itoa(s.Retried),
		strconv.Itoa(s.Tokens),
		s.FirstP50.Round(time.Microsecond).String(),
		s.FirstP95.Round(time.Microsecond).String(),
		s.TotalP50.Round(time.Millisecond).String(),
		s.TotalMax.Round(time.Millisecond).String(),
		s.Wallclock.Round(time.Millisecond).String(),
	}
	return renderTable(header, [][]string{row})
}
