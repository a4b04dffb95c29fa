package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signal-tracker/internal/ingest"
)

type recorder struct {
	mu   sync.Mutex
	msgs []ingest.Message
}

func (r *recorder) Handle(_ context.Context, m ingest.Message) ingest.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return ingest.Result{Outcome: ingest.OutcomeIgnored}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRelayDispatchesAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	connections := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"first","channel_id":-1001,"message_id":1,"reply_to_message_id":null}`))
			return // drop the connection to force a reconnect
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"text":"second","message_id":2,"reply_to_message_id":1},{"text":"third","message_id":3}]`))
		// Hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	relay := NewRelay("ws"+strings.TrimPrefix(srv.URL, "http"), rec, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	waitFor(t, func() bool { return rec.count() == 3 })
	if !relay.Connected() {
		t.Error("relay should report connected")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not stop")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.msgs[0].Text != "first" || rec.msgs[0].ChannelID != -1001 || rec.msgs[0].ReplyTo != nil {
		t.Errorf("unexpected first message %+v", rec.msgs[0])
	}
	if rec.msgs[1].ReplyTo == nil || *rec.msgs[1].ReplyTo != 1 {
		t.Errorf("expected reply linkage on second message, got %+v", rec.msgs[1])
	}
}

func TestDecodeFrame(t *testing.T) {
	if _, err := decodeFrame([]byte("  ")); err == nil {
		t.Error("expected error for empty frame")
	}
	if _, err := decodeFrame([]byte(`{"channel_id":1}`)); err == nil {
		t.Error("expected error for frame without text")
	}
	msgs, err := decodeFrame([]byte(`{"text":"hi","channel_name":"alpha"}`))
	if err != nil || len(msgs) != 1 || msgs[0].ChannelName != "alpha" {
		t.Errorf("unexpected decode %+v %v", msgs, err)
	}
}
