package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"signal-tracker/internal/health"
)

func newTestServer(t *testing.T, checker *health.Checker) *Server {
	t.Helper()
	d, st, _ := newTestDispatcher(t)
	// Port 0 is fine for testing as we don't Listen()
	return NewServer(ServerConfig{Host: "0.0.0.0", Port: 0, RateLimit: 10}, d, st, checker)
}

func post(t *testing.T, s *Server, msg Message) *http.Response {
	t.Helper()
	body, _ := json.Marshal(msg)
	req, _ := http.NewRequest("POST", "/message", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, 1000) // 1s timeout
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestServer_RateLimit(t *testing.T) {
	server := newTestServer(t, nil)

	// Sending 50 requests should definitely hit the limit
	limitHit := false
	for i := 0; i < 50; i++ {
		resp := post(t, server, Message{Text: "gm", MessageID: int64(i)})
		if resp.StatusCode == 429 {
			limitHit = true
			break
		}
	}

	if !limitHit {
		t.Error("rate limit was not hit after 50 requests")
	}
}

func TestServer_MessageStoresSignal(t *testing.T) {
	server := newTestServer(t, nil)

	resp := post(t, server, Message{Text: standardSignal, ChannelID: -1001, MessageID: 10})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Outcome != OutcomeStored || res.RowID == 0 {
		t.Errorf("unexpected result %+v", res)
	}

	req, _ := http.NewRequest("GET", "/signals?limit=5", nil)
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatal(err)
	}
	var rows []signalView
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode signals: %v", err)
	}
	if len(rows) != 1 || rows[0].Token != "MOON CAT" || rows[0].EntryMC != 100_000 {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestServer_RejectsBadPayload(t *testing.T) {
	server := newTestServer(t, nil)

	req, _ := http.NewRequest("POST", "/message", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	resp = post(t, server, Message{Text: "   "})
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for empty text, got %d", resp.StatusCode)
	}
}

func TestServer_Health(t *testing.T) {
	down := health.NewChecker(health.Probe{Name: "store", Check: func(context.Context) error {
		return errors.New("closed")
	}})
	down.Check(context.Background())
	server := newTestServer(t, down)

	req, _ := http.NewRequest("GET", "/health", nil)
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("expected 503 while degraded, got %d", resp.StatusCode)
	}

	server = newTestServer(t, nil)
	resp, err = server.app.Test(httpGet("/health"), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_Metrics(t *testing.T) {
	server := newTestServer(t, nil)
	post(t, server, Message{Text: "gm", MessageID: 1})

	resp, err := server.app.Test(httpGet("/metrics"), 1000)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("ingest_messages_total")) {
		t.Error("metrics output missing ingest_messages_total")
	}
}

func httpGet(path string) *http.Request {
	req, _ := http.NewRequest("GET", path, nil)
	return req
}
