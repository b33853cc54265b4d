// Package feed periodically pushes order book depth to connected
// market-data consumers, so clients that miss an incremental update
// still converge on the true book state.
package feed

import (
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"clob/internal/book"
	"clob/internal/metrics"
)

// Broadcaster fans a message out to subscribers. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(message interface{})
}

type Feed struct {
	engine   *book.Engine
	out      Broadcaster
	interval time.Duration
	log      zerolog.Logger
	tomb     tomb.Tomb
}

func New(engine *book.Engine, out Broadcaster, interval time.Duration, log zerolog.Logger) *Feed {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Feed{
		engine:   engine,
		out:      out,
		interval: interval,
		log:      log,
	}
}

// Start launches the broadcast loop. Call Stop to shut it down.
func (f *Feed) Start() {
	f.tomb.Go(f.loop)
}

func (f *Feed) Stop() error {
	f.tomb.Kill(nil)
	return f.tomb.Wait()
}

func (f *Feed) loop() error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.publish()
		case <-f.tomb.Dying():
			return nil
		}
	}
}

func (f *Feed) publish() {
	snap := f.engine.Snapshot()
	metrics.BookDepth.WithLabelValues("bid").Set(float64(len(snap.Bids)))
	metrics.BookDepth.WithLabelValues("ask").Set(float64(len(snap.Asks)))
	metrics.MarketPrice.Set(float64(snap.MarketPrice))
	f.out.Broadcast(map[string]interface{}{
		"type": "book",
		"book": snap,
	})
}
