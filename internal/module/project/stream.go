package project

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mei-chen/beagle-sub000/internal/eventbus"
	"github.com/mei-chen/beagle-sub000/internal/middleware"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 1024
	streamBuffer     = 32
)

var streamConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "beagle",
	Subsystem: "stream",
	Name:      "connections",
	Help:      "Open view update streams.",
})

// StreamMessage is pushed to a page whenever its view changes or a
// notification concerns one of its visible rows.
type StreamMessage struct {
	Type     string `json:"type"`
	Version  uint64 `json:"version,omitempty"`
	State    string `json:"state,omitempty"`
	Busy     bool   `json:"busy,omitempty"`
	Notif    string `json:"notif,omitempty"`
	ObjectID string `json:"object_id,omitempty"`
}

// Stream message types.
const (
	MessageView         = "view"
	MessageNotification = "notification"
)

// StreamHandler upgrades to a WebSocket that tells the page when to re-render.
type StreamHandler struct {
	svc      *Service
	bus      *eventbus.Bus
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a StreamHandler. bus may be nil, in which case only
// view changes are pushed.
func NewStreamHandler(svc *Service, bus *eventbus.Bus) *StreamHandler {
	return &StreamHandler{
		svc: svc,
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve handles GET /ws/projects.
func (h *StreamHandler) Serve(c *gin.Context) {
	sess, err := h.svc.Open(c.Request.Context(), middleware.GetViewSession(c), nil, 0)
	if err != nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	streamConnections.Inc()
	defer streamConnections.Dec()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan eventbus.Event, streamBuffer)
	if h.bus != nil {
		unsub := h.bus.Subscribe(func(ev eventbus.Event) {
			if !sess.View.Shows(ev.ObjectID) {
				return
			}
			select {
			case events <- ev:
			default:
			}
		})
		defer unsub()
	}

	go readPump(conn, cancel)

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	updated := sess.View.Updated()
	for {
		var msg StreamMessage
		select {
		case <-ctx.Done():
			return
		case <-h.svc.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
			continue
		case <-updated:
			updated = sess.View.Updated()
			snap := sess.View.Snapshot()
			msg = StreamMessage{Type: MessageView, Version: snap.Version, State: snap.State.String(), Busy: snap.Busy()}
		case ev := <-events:
			msg = StreamMessage{Type: MessageNotification, Notif: ev.Notif, ObjectID: ev.ObjectID}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readPump drains the client so control frames are processed, and cancels
// the stream once the client goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
