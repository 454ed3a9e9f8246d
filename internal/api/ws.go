package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dmchat/internal/bus"
	"dmchat/internal/chat"
	"dmchat/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the frontend host is pinned down.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is what subscribers receive: the topic plus the event payload.
type frame struct {
	Type    chat.Topic `json:"type"`
	Payload chat.Event `json:"payload"`
}

// ServeWS upgrades the connection and streams every event the caller is
// allowed to see. The subscription holds its store session (and its
// connection) until the transport closes; there is no other timeout.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "err", err)
		return
	}

	sess, err := h.store.Session(r.Context())
	if err != nil {
		h.log.Error("websocket session", "err", err)
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sess.Close()

	pred := bus.ParticipantFilter(sess, u.ID)
	send := make(chan []byte, subscriberQueue)

	for _, topic := range chat.Topics {
		sub := h.bus.Subscribe(topic)
		defer sub.Cancel()
		go h.forward(ctx, bus.Filter(ctx, sub.C, pred, h.log), send)
	}

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, send)
}

const subscriberQueue = 256

func (h *Handler) forward(ctx context.Context, events <-chan chat.Event, send chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(frame{Type: evt.Topic(), Payload: evt})
			if err != nil {
				h.log.Error("marshal frame", "topic", evt.Topic(), "err", err)
				continue
			}
			select {
			case send <- payload:
			case <-ctx.Done():
				return
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are processed;
// the subscription surface is read-only, inbound data is discarded.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
