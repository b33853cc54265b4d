package book

import (
	"time"
)

// OrderType distinguishes resting limit orders from immediate market orders.
type OrderType int

const (
	// Bid is a limit order to buy the base asset at or below its price.
	Bid OrderType = iota
	// Ask is a limit order to sell the base asset at or above its price.
	Ask
	// MarketBuy buys immediately at whatever prices the ask side offers.
	MarketBuy
	// MarketSell sells immediately at whatever prices the bid side offers.
	MarketSell
)

func (t OrderType) String() string {
	switch t {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	case MarketBuy:
		return "market_buy"
	case MarketSell:
		return "market_sell"
	default:
		return "unknown"
	}
}

// IsBuy reports whether the order takes the bid side of a match.
func (t OrderType) IsBuy() bool {
	return t == Bid || t == MarketBuy
}

// Status is the lifecycle state of an order. Filled and Cancelled are
// terminal; an order never leaves either.
type Status int

const (
	Open Status = iota
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is a single resting or in-flight trade intent. Price is the amount of
// the quote asset's smallest unit per one base unit; Amount is the remaining
// unfilled base quantity and only ever decreases. Market orders carry Price 0
// while sweeping and are stamped with the last traded price if a remainder
// ends up resting.
type Order struct {
	ID             uint64    `json:"id"`
	Maker          string    `json:"maker"`
	Type           OrderType `json:"type"`
	Status         Status    `json:"status"`
	Price          int64     `json:"price"`
	StartingAmount int64     `json:"starting_amount"`
	Amount         int64     `json:"amount"`
	CreatedAt      time.Time `json:"created_at"`
	ClosedAt       time.Time `json:"closed_at,omitzero"`
}

// Trade records one fill between a bid-side and an ask-side order, always at
// the resting order's price.
type Trade struct {
	ID         string    `json:"id"`
	Pair       string    `json:"pair"`
	Price      int64     `json:"price"`
	Amount     int64     `json:"amount"`
	BidOrderID uint64    `json:"bid_order_id"`
	AskOrderID uint64    `json:"ask_order_id"`
	Buyer      string    `json:"buyer"`
	Seller     string    `json:"seller"`
	Timestamp  time.Time `json:"timestamp"`
}
