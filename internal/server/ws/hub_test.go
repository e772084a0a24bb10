package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// chanBus is a domain.SignalBus fed by the test.
type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// onlyClient returns the single registered client, or nil.
func (h *Hub) onlyClient() *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		return c
	}
	return nil
}

func startHub(t *testing.T, origins []string) (*Hub, *chanBus, string) {
	t.Helper()
	bus := &chanBus{ch: make(chan []byte, 8)}
	h := NewHub(bus, origins, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return h, bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHubRoutesEventsBySubscription(t *testing.T) {
	h, bus, url := startHub(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return h.onlyClient() != nil })
	c := h.onlyClient()

	if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Events: []string{"sale_completed"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, "subscription", func() bool { return !c.wants("sale_pending") })

	bus.ch <- []byte("not json")
	bus.ch <- []byte(`{"type":"sale_pending","activity_id":"a1"}`)
	bus.ch <- []byte(`{"type":"sale_completed","activity_id":"a2"}`)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	typ, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.TextMessage || !strings.Contains(string(msg), `"activity_id":"a2"`) {
		t.Fatalf("got %d %s, want the completed sale only", typ, msg)
	}

	if err := conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Events: []string{"sale_completed"}}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	waitFor(t, "unsubscription", func() bool { return !c.wants("sale_completed") })

	bus.ch <- []byte(`{"type":"sale_completed","activity_id":"a3"}`)
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, msg, err = conn.ReadMessage()
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("after unsubscribe got %s, err %v; want a read timeout", msg, err)
	}
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	_, _, url := startHub(t, []string{"https://market.example"})

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil {
		t.Fatal("dial succeeded from a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %v, want 403", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://market.example"}})
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}

func TestFanoutDropsForSlowClient(t *testing.T) {
	h := NewHub(&chanBus{}, nil, discardLogger())
	slow := &client{send: make(chan []byte, 1), subs: map[string]bool{allEvents: true}}
	other := &client{send: make(chan []byte, 4), subs: map[string]bool{"sale_expired": true}}
	h.clients[slow] = true
	h.clients[other] = true

	h.fanout(broadcastMsg{eventType: "sale_completed", data: []byte("first")})
	h.fanout(broadcastMsg{eventType: "sale_completed", data: []byte("second")})

	if len(slow.send) != 1 || string(<-slow.send) != "first" {
		t.Error("slow client should keep the first message and drop the rest")
	}
	if len(other.send) != 0 {
		t.Errorf("unsubscribed client got %d messages", len(other.send))
	}
}

func TestHandleSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{allEvents: true}}
	steps := []struct {
		msg   subscribeMsg
		wants map[string]bool
	}{
		{subscribeMsg{Action: "subscribe"}, map[string]bool{"sale_completed": true, "sale_pending": true}},
		{subscribeMsg{Action: "subscribe", Events: []string{"sale_completed"}}, map[string]bool{"sale_completed": true, "sale_pending": false}},
		{subscribeMsg{Action: "subscribe", Events: []string{"sale_pending"}}, map[string]bool{"sale_completed": true, "sale_pending": true}},
		{subscribeMsg{Action: "unsubscribe", Events: []string{"sale_completed"}}, map[string]bool{"sale_completed": false, "sale_pending": true}},
		{subscribeMsg{Action: "mute", Events: []string{"sale_pending"}}, map[string]bool{"sale_pending": true}},
	}
	for i, s := range steps {
		c.handleSubscription(s.msg)
		for ev, want := range s.wants {
			if got := c.wants(ev); got != want {
				t.Errorf("step %d (%s %v): wants(%s) = %v, want %v", i, s.msg.Action, s.msg.Events, ev, got, want)
			}
		}
	}
}
