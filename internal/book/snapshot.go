package book

// BookSnapshot is the depth view of the book, best prices first on both
// sides.
type BookSnapshot struct {
	Pair        string          `json:"pair"`
	MarketPrice int64           `json:"market_price"`
	Bids        []LevelSnapshot `json:"bids"`
	Asks        []LevelSnapshot `json:"asks"`
}

type LevelSnapshot struct {
	Price  int64 `json:"price"`
	Amount int64 `json:"amount"`
	Orders int   `json:"orders"`
}

// Snapshot returns the current book depth.
func (e *Engine) Snapshot() BookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := BookSnapshot{
		Pair:        e.cfg.Pair,
		MarketPrice: e.marketPrice,
		Bids:        make([]LevelSnapshot, 0, e.bids.Len()),
		Asks:        make([]LevelSnapshot, 0, e.asks.Len()),
	}
	e.bids.Scan(func(lvl *level) bool {
		snap.Bids = append(snap.Bids, LevelSnapshot{
			Price:  lvl.price,
			Amount: lvl.totalAmount(),
			Orders: len(lvl.orders),
		})
		return true
	})
	e.asks.Scan(func(lvl *level) bool {
		snap.Asks = append(snap.Asks, LevelSnapshot{
			Price:  lvl.price,
			Amount: lvl.totalAmount(),
			Orders: len(lvl.orders),
		})
		return true
	})
	return snap
}

// RecentTrades returns the last n trades, oldest first.
func (e *Engine) RecentTrades(n int) []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n > len(e.trades) {
		n = len(e.trades)
	}
	start := len(e.trades) - n
	result := make([]Trade, n)
	copy(result, e.trades[start:])
	return result
}
