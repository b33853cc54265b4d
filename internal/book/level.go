package book

import (
	"github.com/tidwall/btree"
)

// level is the FIFO queue of open orders resting at one price. Orders are
// appended on arrival and matched front to back, so queue position encodes
// time priority.
type level struct {
	price  int64
	orders []*Order
}

func (l *level) totalAmount() int64 {
	var total int64
	for _, o := range l.orders {
		total += o.Amount
	}
	return total
}

// remove deletes the order with the given id from the queue, preserving the
// FIFO order of the rest. Returns false if the id is not queued here.
func (l *level) remove(id uint64) bool {
	for i, o := range l.orders {
		if o.ID == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return true
		}
	}
	return false
}

// levels indexes price levels for one side of the book. The comparator is
// chosen so that Min() is always the best price: ascending for asks,
// descending for bids.
type levels = btree.BTreeG[*level]

func newAskLevels() *levels {
	return btree.NewBTreeG(func(a, b *level) bool {
		return a.price < b.price
	})
}

func newBidLevels() *levels {
	return btree.NewBTreeG(func(a, b *level) bool {
		return a.price > b.price
	})
}

// upsertLevel returns the level at price, creating it if absent.
func upsertLevel(side *levels, price int64) *level {
	if lvl, ok := side.GetMut(&level{price: price}); ok {
		return lvl
	}
	lvl := &level{price: price}
	side.Set(lvl)
	return lvl
}

// findLevel returns the level at price, or nil.
func findLevel(side *levels, price int64) *level {
	if lvl, ok := side.GetMut(&level{price: price}); ok {
		return lvl
	}
	return nil
}
