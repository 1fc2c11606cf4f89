package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/eventbus"
)

const defaultReconnectDelay = 5 * time.Second

// ListenerOptions configures the notification socket.
type ListenerOptions struct {
	URL            string
	Token          string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

// Listener reads notifications from the server socket and publishes them
// on the bus.
type Listener struct {
	opts ListenerOptions
	bus  *eventbus.Bus
	log  *slog.Logger
}

// wireEvent is one socket message.
type wireEvent struct {
	Notif    string          `json:"notif"`
	ObjectID domain.ObjectID `json:"object_id"`
}

// NewListener returns a listener publishing to bus.
func NewListener(o ListenerOptions, bus *eventbus.Bus, log *slog.Logger) *Listener {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Listener{opts: o, bus: bus, log: log.With("component", "notifications")}
}

// Run keeps a connection open until ctx is done, reconnecting after
// ReconnectDelay whenever it drops. It returns nil once ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.WarnContext(ctx, "notification socket disconnected", "error", err, "retry_in", l.opts.ReconnectDelay)

		t := time.NewTimer(l.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (l *Listener) session(ctx context.Context) error {
	header := http.Header{}
	if l.opts.Token != "" {
		header.Set("Authorization", "Token "+l.opts.Token)
	}
	conn, _, err := l.opts.Dialer.DialContext(ctx, l.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.opts.URL, err)
	}
	defer conn.Close()
	l.log.InfoContext(ctx, "notification socket connected", "url", l.opts.URL)

	// ReadMessage does not observe ctx; closing the conn unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg wireEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			l.log.DebugContext(ctx, "notification dropped", "error", err)
			continue
		}
		if msg.Notif == "" {
			continue
		}
		l.bus.Publish(eventbus.Event{
			Notif:    msg.Notif,
			ObjectID: string(msg.ObjectID),
			Payload:  json.RawMessage(data),
		})
	}
}
