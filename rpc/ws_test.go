package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"paysplit/core/events"
	"paysplit/crypto"
	"paysplit/observability/logging"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func readStreamPayload(t *testing.T, conn *websocket.Conn) eventStreamPayload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read stream update: %v", err)
	}
	var payload eventStreamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode stream update: %v (%s)", err, data)
	}
	return payload
}

func TestEventStreamReplaysThenGoesLive(t *testing.T) {
	server := newTestServer(t)
	installTestRoster(t, server, []string{
		crypto.EncodeAddress(newTestAddress(0x11)),
		crypto.EncodeAddress(newTestAddress(0x22)),
	}, []uint64{3, 1})
	_, resp := rpcCall(t, server, "split_deposit", map[string]interface{}{
		"asset":  "usdx",
		"amount": "400",
	}, callOptions{})
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?cursor=1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test complete")

	second := readStreamPayload(t, conn)
	if second.Sequence != 2 || second.Type != events.TypeSplitPayeeAdded {
		t.Fatalf("unexpected replayed update: %+v", second)
	}
	deposit := readStreamPayload(t, conn)
	if deposit.Sequence != 3 || deposit.Type != events.TypeSplitPaymentReceived {
		t.Fatalf("unexpected deposit update: %+v", deposit)
	}
	if deposit.Cursor != "3" {
		t.Fatalf("expected cursor 3, got %q", deposit.Cursor)
	}
	if deposit.Attributes["asset"] != "USDX" || deposit.Attributes["amount"] != "400" {
		t.Fatalf("unexpected deposit attributes: %+v", deposit.Attributes)
	}
	if deposit.Attributes["receipt"] == "" {
		t.Fatalf("expected deposit receipt in attributes: %+v", deposit.Attributes)
	}

	_, resp = rpcCall(t, server, "split_deposit", map[string]interface{}{
		"amount": "50",
	}, callOptions{})
	if resp.Error != nil {
		t.Fatalf("live deposit: %+v", resp.Error)
	}
	live := readStreamPayload(t, conn)
	if live.Sequence != 4 || live.Type != events.TypeSplitPaymentReceived {
		t.Fatalf("unexpected live update: %+v", live)
	}
	if live.Attributes["asset"] != "PAY" {
		t.Fatalf("expected native asset on live update, got %+v", live.Attributes)
	}
}

func TestEventStreamRejectsBadCursor(t *testing.T) {
	server := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?cursor=abc"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "test complete")

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	if _, _, err := conn.Read(readCtx); err == nil {
		t.Fatalf("expected closed stream for invalid cursor")
	}
}

func TestSubscriberLogRedactsRemoteAddress(t *testing.T) {
	buf := &lockedBuffer{}
	server := newTestServer(t)
	server.SetLogger(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "test complete")

	deadline := time.Now().Add(2 * time.Second)
	var raw string
	for {
		raw = buf.String()
		if strings.Contains(raw, "subscriber connected") || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(raw, "subscriber connected") {
		t.Fatalf("expected subscriber log entry, got %q", raw)
	}
	if logging.IsAllowlisted("remote") {
		t.Fatalf("remote should not be allowlisted: %v", logging.RedactionAllowlist())
	}
	if strings.Contains(raw, "127.0.0.1") {
		t.Fatalf("log output leaked subscriber address: %s", raw)
	}
	if !strings.Contains(raw, logging.RedactedValue) {
		t.Fatalf("expected redacted remote attribute, got %s", raw)
	}
}
