package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clob/internal/book"
	"clob/internal/ledger"
)

type captureBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (c *captureBroadcaster) Broadcast(message interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
}

func (c *captureBroadcaster) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func newTestEngine(t *testing.T) *book.Engine {
	t.Helper()
	led := ledger.NewMem()
	if err := led.Credit("alice", "USD", 10_000); err != nil {
		t.Fatal(err)
	}
	engine := book.New(book.Config{
		Pair:       "ETH-USD",
		BaseAsset:  "ETH",
		QuoteAsset: "USD",
	}, led)
	if _, err := engine.PlaceLimitBid("alice", 100, 5); err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestFeedPublishesDepth(t *testing.T) {
	engine := newTestEngine(t)
	out := &captureBroadcaster{}

	f := New(engine, out, 10*time.Millisecond, zerolog.Nop())
	f.Start()

	deadline := time.After(2 * time.Second)
	for out.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("got %d broadcasts, want at least 2", out.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := f.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	msg, ok := out.messages[0].(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected message type %T", out.messages[0])
	}
	if msg["type"] != "book" {
		t.Errorf("message type = %v, want book", msg["type"])
	}
	snap, ok := msg["book"].(book.BookSnapshot)
	if !ok {
		t.Fatalf("unexpected book payload %T", msg["book"])
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 100 {
		t.Errorf("unexpected depth: %+v", snap.Bids)
	}
}

func TestFeedStopsCleanly(t *testing.T) {
	engine := newTestEngine(t)
	out := &captureBroadcaster{}

	f := New(engine, out, time.Hour, zerolog.Nop())
	f.Start()

	done := make(chan error, 1)
	go func() { done <- f.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("feed did not stop")
	}
}
