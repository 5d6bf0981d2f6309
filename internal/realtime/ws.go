package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ridehail/internal/domain"
)

// Authenticator turns a bearer token into a verified caller.
type Authenticator interface {
	Verify(token string) (domain.Caller, error)
}

// LocationUpdater accepts driver location reports received over a socket.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, caller domain.Caller, lat, lng float64) (domain.DriverLocation, error)
}

// WSConfig tunes the WebSocket transport.
type WSConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongTimeout      time.Duration
	PingInterval     time.Duration
	SendBuffer       int
	MaxMessageBytes  int64
}

// DefaultWSConfig returns the default transport settings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		SendBuffer:       64,
		MaxMessageBytes:  4096,
	}
}

// Inbound frame types.
const (
	frameAuth        = "auth"
	frameLocation    = "location"
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
)

type inboundFrame struct {
	Type    string   `json:"type"`
	Token   string   `json:"token,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Channel string   `json:"channel,omitempty"`
}

type outboundFrame struct {
	Type         string `json:"type"`
	SubscriberID string `json:"subscriber_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WSHandler upgrades connections and binds them to the hub after an
// authenticated handshake: the first frame must be {"type":"auth","token":...}
// and arrive within HandshakeTimeout.
type WSHandler struct {
	hub       *Hub
	auth      Authenticator
	locations LocationUpdater
	cfg       WSConfig
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, auth Authenticator, locations LocationUpdater, cfg WSConfig, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		auth:      auth,
		locations: locations,
		cfg:       cfg,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	caller, ok := h.handshake(conn)
	if !ok {
		return
	}

	sub := NewSubscriber(uuid.NewString(), caller, h.cfg.SendBuffer)
	h.hub.Join(sub)
	defer h.hub.Leave(sub.ID)

	if err := h.writeFrame(conn, outboundFrame{Type: "auth.ok", SubscriberID: sub.ID}); err != nil {
		return
	}

	log := h.logger.With(zap.String("subscriber_id", sub.ID), zap.String("user_id", caller.ID))
	log.Debug("realtime subscriber joined", zap.Strings("channels", h.hub.Channels(sub.ID)))

	done := make(chan struct{})
	go h.writePump(conn, sub, done)
	h.readPump(r.Context(), conn, sub, log)
	close(done)
}

// handshake reads the auth frame. On failure it writes an error frame and
// reports false.
func (h *WSHandler) handshake(conn *websocket.Conn) (domain.Caller, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))

	var frame inboundFrame
	if err := conn.ReadJSON(&frame); err != nil {
		h.reject(conn, "authentication required")
		return domain.Caller{}, false
	}
	if frame.Type != frameAuth || frame.Token == "" {
		h.reject(conn, "first message must be auth")
		return domain.Caller{}, false
	}

	caller, err := h.auth.Verify(frame.Token)
	if err != nil {
		h.reject(conn, "invalid token")
		return domain.Caller{}, false
	}

	_ = conn.SetReadDeadline(time.Time{})
	return caller, true
}

func (h *WSHandler) reject(conn *websocket.Conn, reason string) {
	_ = h.writeFrame(conn, outboundFrame{Type: "error", Error: reason})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(h.cfg.WriteTimeout),
	)
}

func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, sub *Subscriber, log *zap.Logger) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("realtime connection closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		switch frame.Type {
		case frameLocation:
			if frame.Lat == nil || frame.Lng == nil {
				h.queueError(sub, "lat and lng are required")
				continue
			}
			if _, err := h.locations.UpdateLocation(ctx, sub.Caller, *frame.Lat, *frame.Lng); err != nil {
				h.queueError(sub, err.Error())
			}
		case frameSubscribe:
			if !sub.Caller.IsAdmin() {
				h.queueError(sub, "subscribe is restricted to admins")
				continue
			}
			h.hub.JoinChannel(sub.ID, frame.Channel)
		case frameUnsubscribe:
			if !sub.Caller.IsAdmin() {
				h.queueError(sub, "unsubscribe is restricted to admins")
				continue
			}
			h.hub.LeaveChannel(sub.ID, frame.Channel)
		default:
			h.queueError(sub, "unknown message type")
		}
	}
}

// writePump is the only writer of conn after the handshake.
func (h *WSHandler) writePump(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// queueError sends an error frame through the subscriber queue so that the
// write pump stays the single writer.
func (h *WSHandler) queueError(sub *Subscriber, reason string) {
	b, _ := json.Marshal(outboundFrame{Type: "error", Error: reason})
	select {
	case sub.send <- b:
	default:
	}
}

func (h *WSHandler) writeFrame(conn *websocket.Conn, frame outboundFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	return conn.WriteJSON(frame)
}
