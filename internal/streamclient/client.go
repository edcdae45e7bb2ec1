// Package streamclient consumes the token stream endpoint and hands each
// token to a callback in arrival order.
package streamclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/streambench/internal/logging"
	"github.com/ent0n29/streambench/internal/protocol"
	"github.com/ent0n29/streambench/internal/sse"
)

const (
	readBufferSize   = 4096
	maxErrorBodySize = 4096
)

// StatusError reports a non-2xx answer from the stream endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("stream request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("stream request failed: status %d: %s", e.StatusCode, body)
}

type Options struct {
	// BaseURL is the server root, e.g. http://localhost:3000.
	BaseURL string
	// Words and Delay are sent as query parameters when positive.
	Words int
	Delay time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger

	OnToken func(token string)
	OnDone  func()
	OnError func(err error)
}

// Stream is the handle of one in-flight request.
type Stream struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
	skipped   atomic.Int64

	mu        sync.Mutex
	sessionID string
	err       error
}

// Start opens one request and returns immediately. OnToken is called zero
// or more times, then exactly one of OnDone or OnError, unless the stream
// is cancelled first, in which case neither is called. Callbacks run
// serially on the stream's goroutine.
func Start(ctx context.Context, opts Options) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, opts)
	return s
}

// Cancel aborts the request. No callback fires after Cancel returns, except
// one already running on the stream goroutine.
func (s *Stream) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Done is closed once the stream goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error passed to OnError, if any. Valid after Done.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SessionID is the server-assigned session id, once headers arrived.
func (s *Stream) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Skipped counts messages that were dropped because their payload could
// not be decoded.
func (s *Stream) Skipped() int {
	return int(s.skipped.Load())
}

func (s *Stream) run(ctx context.Context, opts Options) {
	defer close(s.done)
	defer s.cancel()
	log := logging.OrNop(opts.Logger).With(zap.String("component", "streamclient"))

	endpoint, err := streamURL(opts)
	if err != nil {
		s.fail(ctx, opts, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		s.fail(ctx, opts, fmt.Errorf("build stream request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		s.fail(ctx, opts, fmt.Errorf("open stream: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		s.fail(ctx, opts, &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
		return
	}
	s.mu.Lock()
	s.sessionID = resp.Header.Get("X-Stream-Session")
	s.mu.Unlock()

	var dec sse.Decoder
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, msg := range dec.Feed(buf[:n]) {
				if s.stopped(ctx) {
					return
				}
				if s.dispatch(msg, opts, log) {
					s.finish(ctx, opts)
					return
				}
			}
		}
		if readErr == nil {
			continue
		}
		if s.stopped(ctx) {
			return
		}
		if !errors.Is(readErr, io.EOF) {
			s.fail(ctx, opts, fmt.Errorf("read stream: %w", readErr))
			return
		}
		// The producer may close without a final blank line.
		if tail, ok := dec.Finish(); ok {
			if s.dispatch(tail, opts, log) {
				s.finish(ctx, opts)
				return
			}
		}
		s.finish(ctx, opts)
		return
	}
}

// dispatch handles one complete message and reports whether it was the
// done sentinel.
func (s *Stream) dispatch(msg string, opts Options, log *zap.Logger) bool {
	payload, ok := sse.Payload(msg)
	if !ok {
		s.skipped.Add(1)
		log.Debug("skipping message without data field", zap.Int("bytes", len(msg)))
		return false
	}
	if payload == protocol.DoneSentinel {
		return true
	}
	token, err := protocol.ParseTokenChunk([]byte(payload))
	if err != nil {
		s.skipped.Add(1)
		log.Debug("skipping undecodable message", zap.Error(err))
		return false
	}
	if opts.OnToken != nil {
		opts.OnToken(token)
	}
	return false
}

func (s *Stream) stopped(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

func (s *Stream) finish(ctx context.Context, opts Options) {
	if s.stopped(ctx) {
		return
	}
	if opts.OnDone != nil {
		opts.OnDone()
	}
}

// fail reports err unless the stream was cancelled, which is silent.
func (s *Stream) fail(ctx context.Context, opts Options, err error) {
	if s.stopped(ctx) || errors.Is(err, context.Canceled) {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	if opts.OnError != nil {
		opts.OnError(err)
	}
}

func streamURL(opts Options) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return "", errors.New("stream base URL is empty")
	}
	u, err := url.Parse(base + "/stream")
	if err != nil {
		return "", fmt.Errorf("parse stream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported stream URL scheme %q", u.Scheme)
	}
	q := u.Query()
	if opts.Words > 0 {
		q.Set("words", strconv.Itoa(opts.Words))
	}
	if opts.Delay > 0 {
		ms := opts.Delay.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		q.Set("delay", strconv.FormatInt(ms, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
