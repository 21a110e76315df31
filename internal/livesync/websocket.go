package livesync

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxClientMessage = 1024
)

// Server upgrades viewer connections and runs one session per socket.
type Server struct {
	Hub          *Hub
	Fetcher      Fetcher
	Policy       Policy
	SendBuffer   int
	FetchTimeout time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.SyncMetrics
	Upgrader     websocket.Upgrader
}

// Serve blocks until the viewer goes away.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, scope changefeed.Scope) {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		if s.Logger != nil {
			s.Logger.Warn(s.Logger.WithField(r.Context(), "error", err.Error()), "livesync.upgrade_failed")
		}
		return
	}
	defer conn.Close()

	session := NewSession(SessionParams{
		Scope:        scope,
		Fetcher:      s.Fetcher,
		Policy:       s.Policy,
		Channel:      s.Hub.ChannelState(),
		SendBuffer:   s.SendBuffer,
		FetchTimeout: s.FetchTimeout,
		Logger:       s.Logger,
		Metrics:      s.Metrics,
	})
	unregister := s.Hub.Register(session)
	defer unregister()

	// The request context is not tied to the hijacked connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s.Logger != nil {
		ctx = s.Logger.WithFields(ctx, map[string]any{"scope": scope.Key(), "session_id": session.ID().String()})
		s.Logger.Info(ctx, "livesync.session_opened")
		defer s.Logger.Info(ctx, "livesync.session_closed")
	}

	go s.readPump(ctx, cancel, conn, session)
	go func() {
		_ = session.Run(ctx)
	}()
	writePump(conn, session.Frames())
	cancel()
}

func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, session *Session) {
	defer cancel()
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.Logger != nil {
				s.Logger.Warn(s.Logger.WithField(ctx, "error", err.Error()), "livesync.read_failed")
			}
			return
		}
		var ev ClientEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			if s.Logger != nil {
				s.Logger.Debug(ctx, "livesync.bad_client_event")
			}
			continue
		}
		session.Event(ev)
	}
}

// writePump drains frames until the session closes them or a write fails.
func writePump(conn *websocket.Conn, frames <-chan Frame) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
