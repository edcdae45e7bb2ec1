package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/streambench/internal/protocol"
	"github.com/ent0n29/streambench/internal/session"
	"github.com/ent0n29/streambench/internal/tokenstream"
)

const wsWriteTimeout = 10 * time.Second

// wsSink sends one JSON envelope per token. Only the stream goroutine
// writes to the connection.
type wsSink struct {
	conn      *websocket.Conn
	sessionID string
}

func (s wsSink) WriteToken(index int, content string) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(protocol.TokenEvent{
		Type:      protocol.TypeToken,
		SessionID: s.sessionID,
		Index:     index,
		Content:   content,
	})
}

func (s wsSink) WriteDone(total int) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(protocol.DoneEvent{
		Type:      protocol.TypeDone,
		SessionID: s.sessionID,
		Tokens:    total,
	})
}

func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	params := tokenstream.ParseParams(r.URL.Query(), s.cfg.DefaultWords, s.cfg.DefaultDelayMS)
	ctx, sess, err := s.sessions.Create(r.Context(), session.Spec{
		Transport:  session.TransportWebSocket,
		Words:      params.Words,
		Delay:      params.Delay,
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		s.rejectStream(w, err)
		return
	}
	defer s.sessions.Remove(sess.ID)

	header := http.Header{}
	header.Set(sessionHeader, sess.ID)
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade already answered the client.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The client never sends data frames; reading only detects a close or a
	// dead peer and answers pings.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(4096)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_, _ = s.sessions.Cancel(sess.ID)
				return
			}
		}
	}()

	res := s.runStream(ctx, sess, params, wsSink{conn: conn, sessionID: sess.ID})
	if res.Outcome == tokenstream.OutcomeCompleted {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second),
		)
	}
	_ = conn.Close()
	<-readerDone
}
