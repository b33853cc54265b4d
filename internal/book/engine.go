package book

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"clob/internal/ledger"
)

// DefaultMaxSweep caps the number of fills a single call may execute. It is a
// safety valve against pathological books, not a semantic limit; a capped
// market order rests its remainder exactly like one that ran out of
// liquidity.
const DefaultMaxSweep = 10000

// Config describes the single trading pair an Engine serves.
type Config struct {
	Pair       string // e.g. "ETH-USD"
	BaseAsset  string // asset being traded, e.g. "ETH"
	QuoteAsset string // asset prices are quoted in, e.g. "USD"

	// MaxSweep caps fills per call. Zero means DefaultMaxSweep.
	MaxSweep int

	// Now supplies order timestamps. Zero value means time.Now. Timestamps
	// are bookkeeping only; matching never consults them.
	Now func() time.Time
}

// Engine is an in-memory order book for one trading pair. All funds backing
// resting orders are held in a ledger escrow account owned by the engine:
// quote for bids, base for asks. Every public method runs under one mutex,
// so calls are serialized and no caller ever observes a partially matched
// book.
//
// Escrow is debited before any book state changes, which makes each call
// all-or-nothing: a failed debit (or any failed precondition) leaves the
// engine untouched.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	ledger ledger.Ledger
	escrow string

	nextID  uint64
	orders  map[uint64]*Order
	byMaker map[string][]uint64

	bids *levels
	asks *levels

	marketPrice int64 // last traded price, 0 until the first match

	trades  []Trade
	onTrade func(Trade)
}

// New creates an empty book over the given ledger.
func New(cfg Config, l ledger.Ledger) *Engine {
	if cfg.MaxSweep <= 0 {
		cfg.MaxSweep = DefaultMaxSweep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		cfg:     cfg,
		ledger:  l,
		escrow:  "escrow:" + cfg.Pair,
		orders:  make(map[uint64]*Order),
		byMaker: make(map[string][]uint64),
		bids:    newBidLevels(),
		asks:    newAskLevels(),
	}
}

// EscrowAccount returns the ledger account holding funds behind resting
// orders.
func (e *Engine) EscrowAccount() string {
	return e.escrow
}

// Pair returns the trading pair name.
func (e *Engine) Pair() string { return e.cfg.Pair }

// BaseAsset returns the asset being traded.
func (e *Engine) BaseAsset() string { return e.cfg.BaseAsset }

// QuoteAsset returns the asset prices are quoted in.
func (e *Engine) QuoteAsset() string { return e.cfg.QuoteAsset }

// OnTrade registers a callback invoked for every fill. The callback runs
// with the engine lock held and must not call back into the engine.
func (e *Engine) OnTrade(fn func(Trade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade = fn
}

// PlaceLimitBid escrows amount*price of the quote asset, matches against
// resting asks up to the bid's price, and rests any remainder. A bid priced
// above the best ask is rejected rather than matched through the spread.
func (e *Engine) PlaceLimitBid(maker string, price, amount int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if price <= 0 {
		return 0, ErrInvalidPrice
	}
	if best, ok := e.bestAsk(); ok && price > best {
		return 0, fmt.Errorf("%w: bid %d above best ask %d", ErrInvalidPrice, price, best)
	}
	cost, err := quoteCost(amount, price)
	if err != nil {
		return 0, err
	}
	if err := ledger.Transfer(e.ledger, maker, e.escrow, e.cfg.QuoteAsset, cost); err != nil {
		return 0, err
	}

	o := e.newOrder(maker, Bid, price, amount)
	e.match(o, price, true)
	if o.Amount > 0 {
		e.rest(o)
	}
	return o.ID, nil
}

// PlaceLimitAsk escrows amount of the base asset, matches against resting
// bids down to the ask's price, and rests any remainder. An ask priced below
// the best bid is rejected rather than matched through the spread.
func (e *Engine) PlaceLimitAsk(maker string, price, amount int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if price <= 0 {
		return 0, ErrInvalidPrice
	}
	if best, ok := e.bestBid(); ok && price < best {
		return 0, fmt.Errorf("%w: ask %d below best bid %d", ErrInvalidPrice, price, best)
	}
	// Escrow sanity for the eventual quote proceeds.
	if _, err := quoteCost(amount, price); err != nil {
		return 0, err
	}
	if err := ledger.Transfer(e.ledger, maker, e.escrow, e.cfg.BaseAsset, amount); err != nil {
		return 0, err
	}

	o := e.newOrder(maker, Ask, price, amount)
	e.match(o, price, true)
	if o.Amount > 0 {
		e.rest(o)
	}
	return o.ID, nil
}

// MarketBuy sweeps the ask side from the best price upward, paying each
// resting order's own price. The taker is debited up front for the whole
// sweep, including escrow for any remainder, which rests as a bid at the
// last traded price when the asks run out.
func (e *Engine) MarketBuy(taker string, amount int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if e.asks.Len() == 0 {
		return 0, ErrNoLiquidity
	}
	cost, err := e.planBuyCost(amount)
	if err != nil {
		return 0, err
	}
	if err := ledger.Transfer(e.ledger, taker, e.escrow, e.cfg.QuoteAsset, cost); err != nil {
		return 0, err
	}

	o := e.newOrder(taker, MarketBuy, 0, amount)
	e.match(o, 0, false)
	if o.Amount > 0 {
		// Remainder rests at the last traded price; its escrow was part of
		// the up-front debit.
		o.Price = e.marketPrice
		e.rest(o)
	}
	return o.ID, nil
}

// MarketSell sweeps the bid side from the best price downward, receiving
// each resting order's own price. The full base amount is escrowed up front;
// any remainder rests as an ask at the last traded price.
func (e *Engine) MarketSell(taker string, amount int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if e.bids.Len() == 0 {
		return 0, ErrNoLiquidity
	}
	if err := ledger.Transfer(e.ledger, taker, e.escrow, e.cfg.BaseAsset, amount); err != nil {
		return 0, err
	}

	o := e.newOrder(taker, MarketSell, 0, amount)
	e.match(o, 0, false)
	if o.Amount > 0 {
		o.Price = e.marketPrice
		e.rest(o)
	}
	return o.ID, nil
}

// Cancel closes an open order and refunds its unfilled escrow: remaining
// quote for a bid, remaining base for an ask. Only the maker may cancel, and
// a Filled or already-Cancelled order is rejected without state change.
func (e *Engine) Cancel(id uint64, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != Open {
		return ErrOrderNotOpen
	}
	if o.Maker != caller {
		return ErrUnauthorized
	}

	e.removeResting(o)
	if o.Type.IsBuy() {
		e.mustTransfer(e.escrow, o.Maker, e.cfg.QuoteAsset, o.Amount*o.Price)
	} else {
		e.mustTransfer(e.escrow, o.Maker, e.cfg.BaseAsset, o.Amount)
	}
	o.Status = Cancelled
	o.ClosedAt = e.cfg.Now()
	return nil
}

// BestBid returns the highest resting bid price. ok is false when no bids
// rest.
func (e *Engine) BestBid() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bestBid()
}

// BestAsk returns the lowest resting ask price. ok is false when no asks
// rest.
func (e *Engine) BestAsk() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bestAsk()
}

// MarketPrice returns the last traded price, or 0 before the first match.
func (e *Engine) MarketPrice() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marketPrice
}

// Order returns a copy of the order with the given id.
func (e *Engine) Order(id uint64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *o, nil
}

// OrdersByMaker returns copies of every order the maker has ever placed, in
// placement order.
func (e *Engine) OrdersByMaker(maker string) []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.byMaker[maker]
	out := make([]Order, len(ids))
	for i, id := range ids {
		out[i] = *e.orders[id]
	}
	return out
}

// --- matching -------------------------------------------------------------

// match consumes the opposite side best level first, FIFO within a level,
// until the taker is filled, prices stop crossing, or the sweep cap is hit.
// When limited, a bid only takes levels at or below limit and an ask
// only levels at or above it.
func (e *Engine) match(taker *Order, limit int64, limited bool) {
	opposite := e.asks
	if !taker.Type.IsBuy() {
		opposite = e.bids
	}

	steps := 0
	for taker.Amount > 0 && steps < e.cfg.MaxSweep {
		lvl, ok := opposite.MinMut()
		if !ok {
			break
		}
		if limited {
			if taker.Type.IsBuy() && lvl.price > limit {
				break
			}
			if !taker.Type.IsBuy() && lvl.price < limit {
				break
			}
		}

		consumed := 0
		for _, maker := range lvl.orders {
			if taker.Amount == 0 || steps >= e.cfg.MaxSweep {
				break
			}
			e.fill(taker, maker, lvl.price, min(taker.Amount, maker.Amount))
			steps++
			if maker.Amount > 0 {
				break
			}
			consumed++
		}

		// Slice off the fully consumed prefix, keeping the FIFO order of
		// whoever remains.
		if consumed > 0 {
			lvl.orders = lvl.orders[consumed:]
		}
		if len(lvl.orders) == 0 {
			opposite.Delete(lvl)
		}
	}
}

// fill settles qty between a bid-side and an ask-side order at the resting
// price: base moves escrow -> buyer, quote moves escrow -> seller. Whichever
// order reaches zero transitions to Filled, and the market price becomes the
// execution price.
func (e *Engine) fill(a, b *Order, price, qty int64) {
	bid, ask := a, b
	if !a.Type.IsBuy() {
		bid, ask = b, a
	}
	bid.Amount -= qty
	ask.Amount -= qty

	e.mustTransfer(e.escrow, bid.Maker, e.cfg.BaseAsset, qty)
	e.mustTransfer(e.escrow, ask.Maker, e.cfg.QuoteAsset, qty*price)

	// A limit bid escrows at its own limit price. Executing below it leaves
	// a surplus that goes straight back to the bidder, so resting-bid escrow
	// stays exactly Amount*Price.
	if bid.Type == Bid && bid.Price > price {
		e.mustTransfer(e.escrow, bid.Maker, e.cfg.QuoteAsset, qty*(bid.Price-price))
	}

	now := e.cfg.Now()
	if bid.Amount == 0 {
		bid.Status = Filled
		bid.ClosedAt = now
	}
	if ask.Amount == 0 {
		ask.Status = Filled
		ask.ClosedAt = now
	}

	e.marketPrice = price
	trade := Trade{
		ID:         uuid.New().String(),
		Pair:       e.cfg.Pair,
		Price:      price,
		Amount:     qty,
		BidOrderID: bid.ID,
		AskOrderID: ask.ID,
		Buyer:      bid.Maker,
		Seller:     ask.Maker,
		Timestamp:  now,
	}
	e.trades = append(e.trades, trade)
	if e.onTrade != nil {
		e.onTrade(trade)
	}
}

// planBuyCost walks the ask side read-only, mirroring match exactly, and
// returns the total quote cost of the sweep plus escrow for any remainder
// that would rest. Called before the taker is debited so an unaffordable
// sweep rejects without touching the book.
func (e *Engine) planBuyCost(amount int64) (int64, error) {
	var total, filled, lastPrice int64
	var werr error
	steps := 0

	e.asks.Scan(func(lvl *level) bool {
		for _, o := range lvl.orders {
			if filled == amount || steps >= e.cfg.MaxSweep {
				return false
			}
			qty := min(amount-filled, o.Amount)
			cost, err := quoteCost(qty, lvl.price)
			if err == nil {
				total, err = addCost(total, cost)
			}
			if err != nil {
				werr = err
				return false
			}
			filled += qty
			lastPrice = lvl.price
			steps++
		}
		return true
	})
	if werr != nil {
		return 0, werr
	}

	if remainder := amount - filled; remainder > 0 {
		cost, err := quoteCost(remainder, lastPrice)
		if err == nil {
			total, err = addCost(total, cost)
		}
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// --- bookkeeping ----------------------------------------------------------

func (e *Engine) newOrder(maker string, typ OrderType, price, amount int64) *Order {
	e.nextID++
	o := &Order{
		ID:             e.nextID,
		Maker:          maker,
		Type:           typ,
		Status:         Open,
		Price:          price,
		StartingAmount: amount,
		Amount:         amount,
		CreatedAt:      e.cfg.Now(),
	}
	e.orders[o.ID] = o
	e.byMaker[maker] = append(e.byMaker[maker], o.ID)
	return o
}

// rest appends an open order to its price level queue, creating the level
// (and its index entry) if this is the first order at that price.
func (e *Engine) rest(o *Order) {
	side := e.asks
	if o.Type.IsBuy() {
		side = e.bids
	}
	lvl := upsertLevel(side, o.Price)
	lvl.orders = append(lvl.orders, o)
}

// removeResting takes an open order out of its level queue, dropping the
// level from the index once empty.
func (e *Engine) removeResting(o *Order) {
	side := e.asks
	if o.Type.IsBuy() {
		side = e.bids
	}
	lvl := findLevel(side, o.Price)
	if lvl == nil {
		return
	}
	lvl.remove(o.ID)
	if len(lvl.orders) == 0 {
		side.Delete(lvl)
	}
}

func (e *Engine) bestBid() (int64, bool) {
	lvl, ok := e.bids.MinMut()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

func (e *Engine) bestAsk() (int64, bool) {
	lvl, ok := e.asks.MinMut()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// mustTransfer moves settled or refunded funds out of escrow. Escrow is
// funded before any fill can reference it, so a failure means the ledger no
// longer balances and continuing would mint or destroy funds.
func (e *Engine) mustTransfer(from, to, asset string, amount int64) {
	if err := ledger.Transfer(e.ledger, from, to, asset, amount); err != nil {
		panic(fmt.Sprintf("book: escrow transfer %d %s %s -> %s: %v", amount, asset, from, to, err))
	}
}

func quoteCost(amount, price int64) (int64, error) {
	if price > 0 && amount > math.MaxInt64/price {
		return 0, fmt.Errorf("%w: quote cost overflows", ErrInvalidAmount)
	}
	return amount * price, nil
}

func addCost(a, b int64) (int64, error) {
	if a > math.MaxInt64-b {
		return 0, fmt.Errorf("%w: quote cost overflows", ErrInvalidAmount)
	}
	return a + b, nil
}
