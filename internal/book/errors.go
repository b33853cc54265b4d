package book

import "errors"

var (
	// ErrInvalidAmount rejects zero or negative quantities, and quantities
	// whose quote cost would not fit in an int64.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidPrice rejects zero prices and limit prices that cross the
	// opposite side of the book.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrNoLiquidity rejects a market order when no counter-orders rest.
	ErrNoLiquidity = errors.New("no liquidity")
	// ErrOrderNotFound means the order id has never been assigned.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotOpen means the order already reached a terminal state.
	ErrOrderNotOpen = errors.New("order not open")
	// ErrUnauthorized means the caller is not the order's maker.
	ErrUnauthorized = errors.New("unauthorized")
)
