// Package websocket receives messages from a relay that forwards channel
// posts as JSON frames.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"signal-tracker/internal/ingest"
)

// Handler consumes inbound messages
type Handler interface {
	Handle(ctx context.Context, msg ingest.Message) ingest.Result
}

// Relay keeps one connection open to the relay and reconnects with
// exponential back-off
type Relay struct {
	url            string
	handler        Handler
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRelay creates a relay client
func NewRelay(url string, handler Handler, reconnectDelay, pingInterval time.Duration) *Relay {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Relay{
		url:            url,
		handler:        handler,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		dialer:         &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// Run connects and dispatches frames until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.reconnectDelay
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	for {
		err := r.session(ctx, b)
		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		log.Warn().Err(err).Dur("retryIn", wait).Msg("relay disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connection until it fails
func (r *Relay) session(ctx context.Context, b backoff.BackOff) error {
	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	b.Reset()
	log.Info().Str("url", r.url).Msg("relay connected")

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		conn.Close()
	}()

	readWait := r.pingInterval * 2
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	defer close(done)
	go r.keepalive(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		r.dispatch(ctx, data)
	}
}

// keepalive pings the relay and closes the connection on shutdown
func (r *Relay) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Msg("relay ping failed")
				conn.Close()
				return
			}
		}
	}
}

// dispatch accepts one message object or an array of them
func (r *Relay) dispatch(ctx context.Context, data []byte) {
	msgs, err := decodeFrame(data)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(data)).Msg("invalid relay frame")
		return
	}
	for _, m := range msgs {
		res := r.handler.Handle(ctx, m)
		log.Debug().
			Int64("chat", m.ChannelID).
			Int64("msg", m.MessageID).
			Str("outcome", string(res.Outcome)).
			Msg("relay message handled")
	}
}

func decodeFrame(data []byte) ([]ingest.Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("empty frame")
	}
	if strings.HasPrefix(trimmed, "[") {
		var msgs []ingest.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	}
	var m ingest.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Text == "" {
		return nil, errors.New("frame without text")
	}
	return []ingest.Message{m}, nil
}

// Connected reports whether a relay connection is open
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Ping satisfies the health probe interface
func (r *Relay) Ping(context.Context) error {
	if !r.Connected() {
		return errors.New("relay not connected")
	}
	return nil
}
