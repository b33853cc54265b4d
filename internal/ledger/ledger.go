package ledger

import (
	"errors"
	"sync"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Ledger moves asset balances between accounts. Debit fails with
// ErrInsufficientBalance when the account cannot cover the amount; Credit
// never fails for a known asset.
type Ledger interface {
	Debit(account, asset string, amount int64) error
	Credit(account, asset string, amount int64) error
	Balance(account, asset string) (int64, error)
}

// Transfer debits from one account and credits the other as a pair. The
// credit is only attempted once the debit has succeeded.
func Transfer(l Ledger, from, to, asset string, amount int64) error {
	if err := l.Debit(from, asset, amount); err != nil {
		return err
	}
	return l.Credit(to, asset, amount)
}

// Mem is an in-memory Ledger keyed by (account, asset). It is used by tests
// and standalone runs that don't need balances to survive a restart.
type Mem struct {
	mu       sync.Mutex
	balances map[string]map[string]int64
}

func NewMem() *Mem {
	return &Mem{balances: make(map[string]map[string]int64)}
}

func (m *Mem) Debit(account, asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[account][asset] < amount {
		return ErrInsufficientBalance
	}
	m.balances[account][asset] -= amount
	return nil
}

func (m *Mem) Credit(account, asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[account] == nil {
		m.balances[account] = make(map[string]int64)
	}
	m.balances[account][asset] += amount
	return nil
}

func (m *Mem) Balance(account, asset string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account][asset], nil
}
