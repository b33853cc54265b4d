package book

import (
	"errors"
	"testing"
	"time"

	"clob/internal/ledger"
)

func newTestEngine(t *testing.T) (*Engine, *ledger.Mem) {
	t.Helper()

	l := ledger.NewMem()
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e := New(Config{
		Pair:       "ETH-USD",
		BaseAsset:  "ETH",
		QuoteAsset: "USD",
		Now: func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		},
	}, l)
	return e, l
}

func fund(t *testing.T, l *ledger.Mem, account, asset string, amount int64) {
	t.Helper()
	if err := l.Credit(account, asset, amount); err != nil {
		t.Fatalf("fund %s: %v", account, err)
	}
}

func balance(t *testing.T, l *ledger.Mem, account, asset string) int64 {
	t.Helper()
	b, err := l.Balance(account, asset)
	if err != nil {
		t.Fatalf("balance %s: %v", account, err)
	}
	return b
}

func TestLimitBidRests(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 1000)

	id, err := e.PlaceLimitBid("alice", 50, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o, err := e.Order(id)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if o.Status != Open {
		t.Errorf("expected Open, got %v", o.Status)
	}
	if o.Amount != 5 || o.StartingAmount != 5 {
		t.Errorf("expected amount 5/5, got %d/%d", o.Amount, o.StartingAmount)
	}

	if best, ok := e.BestBid(); !ok || best != 50 {
		t.Errorf("expected best bid 50, got %d ok=%v", best, ok)
	}
	if _, ok := e.BestAsk(); ok {
		t.Error("expected no best ask")
	}

	// 5*50 quote escrowed
	if got := balance(t, l, "alice", "USD"); got != 750 {
		t.Errorf("expected alice USD 750, got %d", got)
	}
	if got := balance(t, l, e.EscrowAccount(), "USD"); got != 250 {
		t.Errorf("expected escrow USD 250, got %d", got)
	}
}

func TestAskFilledByMarketBuy(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "ETH", 10)
	fund(t, l, "bob", "USD", 1000)

	askID, err := e.PlaceLimitAsk("alice", 100, 10)
	if err != nil {
		t.Fatalf("PlaceLimitAsk: %v", err)
	}

	buyID, err := e.MarketBuy("bob", 10)
	if err != nil {
		t.Fatalf("MarketBuy: %v", err)
	}

	ask, _ := e.Order(askID)
	if ask.Status != Filled || ask.Amount != 0 {
		t.Errorf("expected ask filled, got status=%v amount=%d", ask.Status, ask.Amount)
	}
	buy, _ := e.Order(buyID)
	if buy.Status != Filled {
		t.Errorf("expected buy filled, got %v", buy.Status)
	}
	if ask.ClosedAt.IsZero() {
		t.Error("expected ClosedAt stamped on filled ask")
	}

	// Bob receives 10 base, alice receives 10*100 quote.
	if got := balance(t, l, "bob", "ETH"); got != 10 {
		t.Errorf("expected bob ETH 10, got %d", got)
	}
	if got := balance(t, l, "alice", "USD"); got != 1000 {
		t.Errorf("expected alice USD 1000, got %d", got)
	}
	if got := balance(t, l, "bob", "USD"); got != 0 {
		t.Errorf("expected bob USD 0, got %d", got)
	}

	if _, ok := e.BestAsk(); ok {
		t.Error("expected no resting asks after full fill")
	}
	if got := e.MarketPrice(); got != 100 {
		t.Errorf("expected market price 100, got %d", got)
	}
}

func TestPartialFillAgainstRestingBid(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 250)
	fund(t, l, "bob", "ETH", 3)

	bidID, err := e.PlaceLimitBid("alice", 50, 5)
	if err != nil {
		t.Fatalf("PlaceLimitBid: %v", err)
	}
	if best, ok := e.BestBid(); !ok || best != 50 {
		t.Fatalf("expected best bid 50, got %d ok=%v", best, ok)
	}

	askID, err := e.PlaceLimitAsk("bob", 50, 3)
	if err != nil {
		t.Fatalf("PlaceLimitAsk: %v", err)
	}

	bid, _ := e.Order(bidID)
	if bid.Status != Open {
		t.Errorf("expected bid still Open, got %v", bid.Status)
	}
	if bid.Amount != 2 {
		t.Errorf("expected bid amount 2, got %d", bid.Amount)
	}
	ask, _ := e.Order(askID)
	if ask.Status != Filled {
		t.Errorf("expected ask filled, got %v", ask.Status)
	}

	// Still resting.
	if best, ok := e.BestBid(); !ok || best != 50 {
		t.Errorf("expected best bid still 50, got %d ok=%v", best, ok)
	}

	// Settlement at the resting bid's price: alice got 3 ETH, bob got 150 USD.
	if got := balance(t, l, "alice", "ETH"); got != 3 {
		t.Errorf("expected alice ETH 3, got %d", got)
	}
	if got := balance(t, l, "bob", "USD"); got != 150 {
		t.Errorf("expected bob USD 150, got %d", got)
	}
	// 2*50 still escrowed for the open remainder.
	if got := balance(t, l, e.EscrowAccount(), "USD"); got != 100 {
		t.Errorf("expected escrow USD 100, got %d", got)
	}
}

func TestPriceTimePriority(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "seller1", "ETH", 10)
	fund(t, l, "seller2", "ETH", 10)
	fund(t, l, "buyer", "USD", 100)

	ask1, _ := e.PlaceLimitAsk("seller1", 10, 10)
	ask2, _ := e.PlaceLimitAsk("seller2", 10, 10)

	// Bid exactly the size of the first ask: only ask1 consumed.
	if _, err := e.PlaceLimitBid("buyer", 10, 10); err != nil {
		t.Fatalf("PlaceLimitBid: %v", err)
	}

	o1, _ := e.Order(ask1)
	if o1.Status != Filled {
		t.Errorf("expected first ask filled, got %v", o1.Status)
	}
	o2, _ := e.Order(ask2)
	if o2.Status != Open || o2.Amount != 10 {
		t.Errorf("expected second ask untouched, got status=%v amount=%d", o2.Status, o2.Amount)
	}

	trades := e.RecentTrades(10)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Seller != "seller1" {
		t.Errorf("expected seller1 matched first, got %s", trades[0].Seller)
	}
	if trades[0].AskOrderID != ask1 {
		t.Errorf("expected ask %d matched, got %d", ask1, trades[0].AskOrderID)
	}
}

func TestCrossingBidRejected(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "ETH", 10)
	fund(t, l, "bob", "USD", 10000)

	if _, err := e.PlaceLimitAsk("alice", 100, 10); err != nil {
		t.Fatalf("PlaceLimitAsk: %v", err)
	}

	// Bid above the best ask is rejected, not converted to a market order.
	_, err := e.PlaceLimitBid("bob", 101, 1)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}

	// No side effects: no debit, no order.
	if got := balance(t, l, "bob", "USD"); got != 10000 {
		t.Errorf("expected bob USD untouched, got %d", got)
	}
	if got := e.OrdersByMaker("bob"); len(got) != 0 {
		t.Errorf("expected no bob orders, got %d", len(got))
	}

	// Bid at exactly the best ask matches fine.
	if _, err := e.PlaceLimitBid("bob", 100, 1); err != nil {
		t.Fatalf("bid at best ask should match: %v", err)
	}
	if got := balance(t, l, "bob", "ETH"); got != 1 {
		t.Errorf("expected bob ETH 1, got %d", got)
	}
}

func TestCrossingAskRejected(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 500)
	fund(t, l, "bob", "ETH", 10)

	if _, err := e.PlaceLimitBid("alice", 50, 10); err != nil {
		t.Fatalf("PlaceLimitBid: %v", err)
	}

	_, err := e.PlaceLimitAsk("bob", 49, 1)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if got := balance(t, l, "bob", "ETH"); got != 10 {
		t.Errorf("expected bob ETH untouched, got %d", got)
	}
}

func TestInvalidInputs(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 1000)
	fund(t, l, "alice", "ETH", 10)

	cases := []struct {
		name string
		call func() error
		want error
	}{
		{"bid zero amount", func() error { _, err := e.PlaceLimitBid("alice", 10, 0); return err }, ErrInvalidAmount},
		{"bid negative amount", func() error { _, err := e.PlaceLimitBid("alice", 10, -1); return err }, ErrInvalidAmount},
		{"bid zero price", func() error { _, err := e.PlaceLimitBid("alice", 0, 10); return err }, ErrInvalidPrice},
		{"ask zero amount", func() error { _, err := e.PlaceLimitAsk("alice", 10, 0); return err }, ErrInvalidAmount},
		{"ask zero price", func() error { _, err := e.PlaceLimitAsk("alice", 0, 10); return err }, ErrInvalidPrice},
		{"market buy zero", func() error { _, err := e.MarketBuy("alice", 0); return err }, ErrInvalidAmount},
		{"market sell zero", func() error { _, err := e.MarketSell("alice", 0); return err }, ErrInvalidAmount},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestMarketOrderNoLiquidity(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 1000)
	fund(t, l, "alice", "ETH", 10)

	if _, err := e.MarketBuy("alice", 1); !errors.Is(err, ErrNoLiquidity) {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
	if _, err := e.MarketSell("alice", 1); !errors.Is(err, ErrNoLiquidity) {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
	if got := balance(t, l, "alice", "USD"); got != 1000 {
		t.Errorf("expected alice USD untouched, got %d", got)
	}
}

func TestMarketBuySweepsLevels(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "s1", "ETH", 5)
	fund(t, l, "s2", "ETH", 5)
	fund(t, l, "buyer", "USD", 10000)

	e.PlaceLimitAsk("s1", 100, 5)
	e.PlaceLimitAsk("s2", 110, 5)

	id, err := e.MarketBuy("buyer", 8)
	if err != nil {
		t.Fatalf("MarketBuy: %v", err)
	}

	o, _ := e.Order(id)
	if o.Status != Filled {
		t.Errorf("expected buy filled, got %v", o.Status)
	}

	// Each level at its own quoted price: 5*100 + 3*110 = 830.
	if got := balance(t, l, "buyer", "USD"); got != 10000-830 {
		t.Errorf("expected buyer USD %d, got %d", 10000-830, got)
	}
	if got := balance(t, l, "buyer", "ETH"); got != 8 {
		t.Errorf("expected buyer ETH 8, got %d", got)
	}
	if got := balance(t, l, "s1", "USD"); got != 500 {
		t.Errorf("expected s1 USD 500, got %d", got)
	}
	if got := balance(t, l, "s2", "USD"); got != 330 {
		t.Errorf("expected s2 USD 330, got %d", got)
	}
	if got := e.MarketPrice(); got != 110 {
		t.Errorf("expected market price 110, got %d", got)
	}
	if best, ok := e.BestAsk(); !ok || best != 110 {
		t.Errorf("expected remaining ask at 110, got %d ok=%v", best, ok)
	}
}

func TestMarketBuyRemainderRests(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "seller", "ETH", 5)
	fund(t, l, "buyer", "USD", 10000)

	e.PlaceLimitAsk("seller", 100, 5)

	id, err := e.MarketBuy("buyer", 8)
	if err != nil {
		t.Fatalf("MarketBuy: %v", err)
	}

	o, _ := e.Order(id)
	if o.Status != Open {
		t.Errorf("expected remainder Open, got %v", o.Status)
	}
	if o.Amount != 3 {
		t.Errorf("expected remainder 3, got %d", o.Amount)
	}
	if o.Price != 100 {
		t.Errorf("expected remainder rests at last trade price 100, got %d", o.Price)
	}
	if best, ok := e.BestBid(); !ok || best != 100 {
		t.Errorf("expected best bid 100, got %d ok=%v", best, ok)
	}

	// Debited: 5*100 filled + 3*100 escrow for the resting remainder.
	if got := balance(t, l, "buyer", "USD"); got != 10000-800 {
		t.Errorf("expected buyer USD %d, got %d", 10000-800, got)
	}
	if got := balance(t, l, e.EscrowAccount(), "USD"); got != 300 {
		t.Errorf("expected escrow USD 300, got %d", got)
	}
}

func TestMarketSellRemainderRests(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "buyer", "USD", 500)
	fund(t, l, "seller", "ETH", 8)

	e.PlaceLimitBid("buyer", 50, 5)

	id, err := e.MarketSell("seller", 8)
	if err != nil {
		t.Fatalf("MarketSell: %v", err)
	}

	o, _ := e.Order(id)
	if o.Status != Open || o.Amount != 3 {
		t.Errorf("expected open remainder 3, got status=%v amount=%d", o.Status, o.Amount)
	}
	if o.Price != 50 {
		t.Errorf("expected remainder rests at 50, got %d", o.Price)
	}
	if best, ok := e.BestAsk(); !ok || best != 50 {
		t.Errorf("expected best ask 50, got %d ok=%v", best, ok)
	}

	if got := balance(t, l, "seller", "USD"); got != 250 {
		t.Errorf("expected seller USD 250, got %d", got)
	}
	// Remaining 3 ETH stay escrowed behind the resting ask.
	if got := balance(t, l, e.EscrowAccount(), "ETH"); got != 3 {
		t.Errorf("expected escrow ETH 3, got %d", got)
	}
}

func TestCancelBidRefundsQuote(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 250)

	id, _ := e.PlaceLimitBid("alice", 50, 5)
	if got := balance(t, l, "alice", "USD"); got != 0 {
		t.Fatalf("expected full escrow, alice USD %d", got)
	}

	if err := e.Cancel(id, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	o, _ := e.Order(id)
	if o.Status != Cancelled {
		t.Errorf("expected Cancelled, got %v", o.Status)
	}
	if o.Amount != 5 {
		t.Errorf("expected remaining amount frozen at 5, got %d", o.Amount)
	}
	if o.ClosedAt.IsZero() {
		t.Error("expected ClosedAt stamped")
	}
	if got := balance(t, l, "alice", "USD"); got != 250 {
		t.Errorf("expected full refund, got %d", got)
	}
	if _, ok := e.BestBid(); ok {
		t.Error("expected empty bid side after cancel")
	}
}

func TestCancelPartiallyFilledAskRefundsRemainder(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "ETH", 10)
	fund(t, l, "bob", "USD", 400)

	id, _ := e.PlaceLimitAsk("alice", 100, 10)
	if _, err := e.PlaceLimitBid("bob", 100, 4); err != nil {
		t.Fatalf("PlaceLimitBid: %v", err)
	}

	if err := e.Cancel(id, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// 4 settled to bob, 6 refunded.
	if got := balance(t, l, "alice", "ETH"); got != 6 {
		t.Errorf("expected alice ETH 6, got %d", got)
	}
	if got := balance(t, l, "bob", "ETH"); got != 4 {
		t.Errorf("expected bob ETH 4, got %d", got)
	}
	if got := balance(t, l, e.EscrowAccount(), "ETH"); got != 0 {
		t.Errorf("expected empty ETH escrow, got %d", got)
	}
}

func TestCancelRejections(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 290)
	fund(t, l, "bob", "ETH", 5)

	id, _ := e.PlaceLimitBid("alice", 50, 5)

	if err := e.Cancel(999, "alice"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	if err := e.Cancel(id, "bob"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	// Fill it, then cancel must fail without state change.
	if _, err := e.PlaceLimitAsk("bob", 50, 5); err != nil {
		t.Fatalf("PlaceLimitAsk: %v", err)
	}
	aliceETH := balance(t, l, "alice", "ETH")
	if err := e.Cancel(id, "alice"); !errors.Is(err, ErrOrderNotOpen) {
		t.Errorf("expected ErrOrderNotOpen, got %v", err)
	}
	o, _ := e.Order(id)
	if o.Status != Filled {
		t.Errorf("cancel of filled order must not change status, got %v", o.Status)
	}
	if got := balance(t, l, "alice", "ETH"); got != aliceETH {
		t.Errorf("cancel rejection must not move funds: %d != %d", got, aliceETH)
	}

	// Cancelling a cancelled order is equally rejected.
	id2, err := e.PlaceLimitBid("alice", 40, 1)
	if err != nil {
		t.Fatalf("PlaceLimitBid: %v", err)
	}
	if err := e.Cancel(id2, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := e.Cancel(id2, "alice"); !errors.Is(err, ErrOrderNotOpen) {
		t.Errorf("expected ErrOrderNotOpen on double cancel, got %v", err)
	}
}

func TestInsufficientBalance(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 100)

	_, err := e.PlaceLimitBid("alice", 50, 5) // needs 250
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := e.OrdersByMaker("alice"); len(got) != 0 {
		t.Errorf("expected no order recorded, got %d", len(got))
	}
	if got := balance(t, l, "alice", "USD"); got != 100 {
		t.Errorf("expected balance untouched, got %d", got)
	}
}

func TestMarketBuyInsufficientBalanceLeavesBookIntact(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "seller", "ETH", 5)
	fund(t, l, "buyer", "USD", 100)

	askID, _ := e.PlaceLimitAsk("seller", 100, 5)

	// Sweep would cost 500; buyer has 100. Whole call rejects atomically.
	_, err := e.MarketBuy("buyer", 5)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	o, _ := e.Order(askID)
	if o.Status != Open || o.Amount != 5 {
		t.Errorf("ask must be untouched, got status=%v amount=%d", o.Status, o.Amount)
	}
	if got := balance(t, l, "buyer", "USD"); got != 100 {
		t.Errorf("expected buyer USD untouched, got %d", got)
	}
}

func TestNoCrossingResidual(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "a", "USD", 100000)
	fund(t, l, "b", "ETH", 1000)

	check := func() {
		t.Helper()
		bid, bidOK := e.BestBid()
		ask, askOK := e.BestAsk()
		if bidOK && askOK && bid > ask {
			t.Fatalf("book crossed: best bid %d > best ask %d", bid, ask)
		}
	}

	e.PlaceLimitBid("a", 95, 3)
	check()
	e.PlaceLimitAsk("b", 100, 3)
	check()
	e.PlaceLimitBid("a", 100, 1)
	check()
	e.PlaceLimitAsk("b", 95, 2)
	check()
	e.PlaceLimitBid("a", 90, 4)
	check()
	e.PlaceLimitAsk("b", 105, 4)
	check()
}

func TestMonotonicFill(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "seller", "ETH", 10)
	fund(t, l, "buyer", "USD", 1000)

	id, _ := e.PlaceLimitAsk("seller", 100, 10)

	last := int64(10)
	for i := 0; i < 3; i++ {
		if _, err := e.PlaceLimitBid("buyer", 100, 3); err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
		o, _ := e.Order(id)
		if o.Amount > last {
			t.Fatalf("amount increased: %d > %d", o.Amount, last)
		}
		last = o.Amount
	}
	o, _ := e.Order(id)
	if o.Amount != 1 || o.Status != Open {
		t.Errorf("expected 1 remaining Open, got amount=%d status=%v", o.Amount, o.Status)
	}
	e.PlaceLimitBid("buyer", 100, 1)
	o, _ = e.Order(id)
	if o.Amount != 0 || o.Status != Filled {
		t.Errorf("expected filled at zero, got amount=%d status=%v", o.Amount, o.Status)
	}
	// Filled order never reappears in the book.
	if _, ok := e.BestAsk(); ok {
		t.Error("expected empty ask side")
	}
}

func TestConservation(t *testing.T) {
	e, l := newTestEngine(t)
	accounts := []string{"a", "b", "c", e.EscrowAccount()}
	fund(t, l, "a", "USD", 100000)
	fund(t, l, "b", "ETH", 500)
	fund(t, l, "c", "USD", 50000)
	fund(t, l, "c", "ETH", 200)

	total := func(asset string) int64 {
		var sum int64
		for _, acct := range accounts {
			sum += balance(t, l, acct, asset)
		}
		return sum
	}
	wantUSD, wantETH := total("USD"), total("ETH")

	e.PlaceLimitBid("a", 95, 10)
	e.PlaceLimitAsk("b", 100, 10)
	e.PlaceLimitBid("c", 95, 5)
	id, _ := e.PlaceLimitAsk("c", 102, 20)
	e.MarketBuy("a", 15)
	e.MarketSell("b", 12)
	e.Cancel(id, "c")
	e.MarketSell("c", 30) // partly rests
	e.MarketBuy("a", 3)

	if got := total("USD"); got != wantUSD {
		t.Errorf("USD not conserved: %d != %d", got, wantUSD)
	}
	if got := total("ETH"); got != wantETH {
		t.Errorf("ETH not conserved: %d != %d", got, wantETH)
	}
}

func TestOrdersByMaker(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 10000)
	fund(t, l, "bob", "ETH", 10)

	id1, _ := e.PlaceLimitBid("alice", 50, 5)
	id2, _ := e.PlaceLimitBid("alice", 45, 5)
	e.PlaceLimitAsk("bob", 60, 5)

	orders := e.OrdersByMaker("alice")
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != id1 || orders[1].ID != id2 {
		t.Errorf("expected ids in placement order [%d %d], got [%d %d]", id1, id2, orders[0].ID, orders[1].ID)
	}
	if len(e.OrdersByMaker("nobody")) != 0 {
		t.Error("expected no orders for unknown maker")
	}
}

func TestOrderIDsMonotonic(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "alice", "USD", 10000)

	var prev uint64
	for i := 0; i < 5; i++ {
		id, err := e.PlaceLimitBid("alice", int64(10+i), 1)
		if err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestSnapshotDepth(t *testing.T) {
	e, l := newTestEngine(t)
	fund(t, l, "a", "USD", 100000)
	fund(t, l, "b", "ETH", 100)

	e.PlaceLimitBid("a", 95, 3)
	e.PlaceLimitBid("a", 95, 2)
	e.PlaceLimitBid("a", 90, 4)
	e.PlaceLimitAsk("b", 100, 6)
	e.PlaceLimitAsk("b", 105, 1)

	snap := e.Snapshot()
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("expected 2x2 levels, got %d bids %d asks", len(snap.Bids), len(snap.Asks))
	}
	// Best first on both sides.
	if snap.Bids[0].Price != 95 || snap.Bids[0].Amount != 5 || snap.Bids[0].Orders != 2 {
		t.Errorf("unexpected top bid level: %+v", snap.Bids[0])
	}
	if snap.Bids[1].Price != 90 {
		t.Errorf("expected second bid level 90, got %d", snap.Bids[1].Price)
	}
	if snap.Asks[0].Price != 100 || snap.Asks[0].Amount != 6 {
		t.Errorf("unexpected top ask level: %+v", snap.Asks[0])
	}
}

func TestMaxSweepCapsMarketOrder(t *testing.T) {
	l := ledger.NewMem()
	e := New(Config{
		Pair:       "ETH-USD",
		BaseAsset:  "ETH",
		QuoteAsset: "USD",
		MaxSweep:   2,
	}, l)
	fund(t, l, "s", "ETH", 100)
	fund(t, l, "buyer", "USD", 100000)

	for i := int64(0); i < 5; i++ {
		if _, err := e.PlaceLimitAsk("s", 100+i, 1); err != nil {
			t.Fatalf("ask %d: %v", i, err)
		}
	}

	id, err := e.MarketBuy("buyer", 5)
	if err != nil {
		t.Fatalf("MarketBuy: %v", err)
	}
	o, _ := e.Order(id)
	// Two fills executed, remainder rests like any liquidity shortfall.
	if o.Amount != 3 || o.Status != Open {
		t.Errorf("expected 3 remaining Open, got amount=%d status=%v", o.Amount, o.Status)
	}
	if o.Price != 101 {
		t.Errorf("expected remainder at last trade 101, got %d", o.Price)
	}
}
