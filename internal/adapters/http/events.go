package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/carbon-advisor/internal/domain"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

// Origins are not checked; the API is open the same way withCORS is.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// eventResponse is one frame on /sessions/{id}/events. The first frame is
// always a snapshot; every later one carries a single appended message.
type eventResponse struct {
	Type    string           `json:"type"`
	Session *sessionResponse `json:"session,omitempty"`
	Message *messageResponse `json:"message,omitempty"`
}

// handleEvents upgrades to a WebSocket and streams the session timeline
// until the client disconnects or the session is closed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	session, ok := s.lookup(w, r, id)
	if !ok {
		return
	}

	log := observability.LoggerFromContext(r.Context()).With("session_id", id)

	// Subscribe before the snapshot so nothing appended in between is lost.
	msgs, stop := session.Subscribe()
	defer stop()
	snap := session.Snapshot()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	seen := make(map[domain.MessageID]bool, len(snap.Messages))
	for _, m := range snap.Messages {
		seen[m.ID] = true
	}
	snapResp := toSessionResponse(snap)
	if err := writeEvent(conn, eventResponse{Type: "snapshot", Session: &snapResp}); err != nil {
		log.Warn("websocket write failed", "error", err)
		return
	}

	// The read side only drains control frames and notices disconnects.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(eventWriteTimeout))
				return
			}
			if seen[m.ID] {
				continue
			}
			resp := toMessageResponse(m)
			if err := writeEvent(conn, eventResponse{Type: "message", Message: &resp}); err != nil {
				log.Warn("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		case <-ctx.Done():
			log.Debug("event stream ended")
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev eventResponse) error {
	if err := conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
