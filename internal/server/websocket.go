package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/metrics"
	"github.com/kapu/ai-hair-salon-go/internal/session"
	"go.uber.org/zap"
)

// handleProgress streams session events as JSON text frames. The first frame
// is the current state, so a client that connects late still knows where the
// session stands.
func (s *Server) handleProgress(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	// subscribe before the upgrade so no event slips between snapshot and stream
	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("session", sess.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.TrackProgressSubscriber(true)
	defer metrics.TrackProgressSubscriber(false)

	logger := s.logger.With(zap.String("session", sess.ID))
	logger.Debug("Progress stream opened")

	snap := sess.Snapshot()
	if err := writeEvent(conn, session.Event{Type: session.EventState, State: &snap}); err != nil {
		logger.Debug("Progress stream write failed", zap.Error(err))
		return
	}

	// the read loop only exists to notice the client going away
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, open := <-events:
			if !open {
				closeStream(conn, websocket.CloseGoingAway, "session closed")
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Debug("Progress stream write failed", zap.Error(err))
				return
			}
		case <-clientGone:
			logger.Debug("Progress stream closed by client")
			return
		case <-s.runCtx.Done():
			closeStream(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev session.Event) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(constants.ServerConfig.WSWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(constants.ServerConfig.WSWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
