package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/streambench/internal/protocol"
	"github.com/ent0n29/streambench/internal/session"
	"github.com/ent0n29/streambench/internal/sse"
	"github.com/ent0n29/streambench/internal/tokenstream"
)

const sessionHeader = "X-Stream-Session"

func handleStreamPreflight(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
	w.WriteHeader(http.StatusNoContent)
}

// sseSink frames tokens as `data: {"content":...,"index":N}` messages.
type sseSink struct {
	w *sse.Writer
}

func (s sseSink) WriteToken(index int, content string) error {
	return s.w.WriteJSON(protocol.TokenChunk{Content: content, Index: index})
}

func (s sseSink) WriteDone(int) error {
	return s.w.WriteDone()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params := tokenstream.ParseParams(r.URL.Query(), s.cfg.DefaultWords, s.cfg.DefaultDelayMS)
	ctx, sess, err := s.sessions.Create(r.Context(), session.Spec{
		Transport:  session.TransportSSE,
		Words:      params.Words,
		Delay:      params.Delay,
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		s.rejectStream(w, err)
		return
	}
	defer s.sessions.Remove(sess.ID)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set(sessionHeader, sess.ID)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	s.runStream(ctx, sess, params, sseSink{w: sse.NewWriter(w)})
}

func (s *Server) rejectStream(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrCapacity) {
		s.metrics.StreamEvents.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusServiceUnavailable, "capacity", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}

// runStream drives one registered session to completion over sink and
// records its metrics. The session is removed by the caller.
func (s *Server) runStream(ctx context.Context, sess session.Session, params tokenstream.Params, sink tokenstream.Sink) tokenstream.Result {
	start := time.Now()
	log := s.logger.With(
		zap.String("session_id", sess.ID),
		zap.String("transport", string(sess.Transport)),
		zap.String("request_id", RequestIDFromContext(ctx)),
	)
	log.Debug("stream started",
		zap.Int("words", params.Words),
		zap.Duration("delay", params.Delay),
	)

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()
	s.metrics.StreamEvents.WithLabelValues("started").Inc()

	res := tokenstream.Run(ctx, params, sink, tokenstream.Hooks{
		Cancelled: func() bool { return s.sessions.Cancelled(sess.ID) },
		Emitted: func(index int) {
			if index == 0 {
				s.metrics.ObserveFirstToken(time.Since(start))
			}
			s.metrics.TokensEmitted.Inc()
			s.sessions.Advance(sess.ID, index)
		},
	})

	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		s.metrics.StreamWriteErrors.WithLabelValues(string(sess.Transport)).Inc()
	}
	elapsed := time.Since(start)
	s.metrics.ObserveStreamEnd(string(res.Outcome), elapsed)

	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.Int("tokens", res.Tokens),
		zap.Duration("elapsed", elapsed),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	log.Info("stream finished", fields...)
	return res
}
