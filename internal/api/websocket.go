package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/session"
)

// Feed message types
const (
	// Client -> Server
	MsgTypePing = "ping"

	// Server -> Client
	MsgTypeSnapshot = "snapshot"
	MsgTypePong     = "pong"
	MsgTypeClosed   = "closed"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
)

// WSMessage is one feed message.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// FeedHandlerImpl pushes the session snapshot to the browser after every
// state change.
type FeedHandlerImpl struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
}

// NewFeedHandler creates the feed handler
func NewFeedHandler(sessions *session.Manager) FeedHandler {
	return &FeedHandlerImpl{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// HandleFeed upgrades the connection and streams snapshots until either side
// goes away or the session ends.
func (h *FeedHandlerImpl) HandleFeed(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer ws.Close()

	logger := zap.L().With(zap.String("session", s.ID))
	logger.Debug("feed client connected")

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go h.readLoop(ws, pings, done)

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	if err := h.sendSnapshot(ws, s); err != nil {
		return nil
	}

	for {
		select {
		case _, ok := <-updates:
			if !ok {
				h.send(ws, WSMessage{Type: MsgTypeClosed, Timestamp: time.Now().UnixMilli()})
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(feedWriteWait))
				return nil
			}
			if err := h.sendSnapshot(ws, s); err != nil {
				logger.Debug("feed write failed", zap.Error(err))
				return nil
			}
			h.sessions.TouchSession(s.ID)
		case <-pings:
			if err := h.send(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}); err != nil {
				return nil
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			logger.Debug("feed client disconnected")
			return nil
		}
	}
}

// readLoop handles client pings and notices disconnects.
func (h *FeedHandlerImpl) readLoop(ws *websocket.Conn, pings chan<- struct{}, done chan<- struct{}) {
	defer close(done)

	ws.SetReadLimit(4 * 1024)
	ws.SetReadDeadline(time.Now().Add(feedPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("feed read failed", zap.Error(err))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(feedPongWait))
		if msg.Type == MsgTypePing {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}

func (h *FeedHandlerImpl) sendSnapshot(ws *websocket.Conn, s *session.Session) error {
	payload, err := json.Marshal(s.Store.Snapshot())
	if err != nil {
		return err
	}
	return h.send(ws, WSMessage{Type: MsgTypeSnapshot, Payload: payload, Timestamp: time.Now().UnixMilli()})
}

func (h *FeedHandlerImpl) send(ws *websocket.Conn, msg WSMessage) error {
	ws.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return ws.WriteJSON(msg)
}
