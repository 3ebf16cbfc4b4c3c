// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Share prices are integer currency units (CHF) by design.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinPrice is the hard floor every instrument price is clamped to.
const MinPrice int64 = 10

// Instrument is one tradable stock and its live simulation state.
// Owned exclusively by the market registry: only the price simulator and the
// event generator mutate Price and Momentum. Volatility is immutable after
// creation.
type Instrument struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Price      int64   `json:"price"`      // integer CHF, never below MinPrice
	Momentum   float64 `json:"momentum"`   // decaying directional pressure, percent-of-price scale
	Volatility float64 `json:"volatility"` // percent-of-price scale
}

// Quote is the public snapshot of an instrument.
type Quote struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// HistoryRecord is an immutable price snapshot, appended once per instrument
// per tick. Records are never modified or deleted.
type HistoryRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// EventKind classifies a market event.
type EventKind string

const (
	EventCrash  EventKind = "crash"
	EventBubble EventKind = "bubble"
)

// MarketEvent is an immutable record of a discrete market shock. The impulse
// is applied to instrument momentum, not directly to prices; its effect is
// realized gradually over subsequent ticks.
type MarketEvent struct {
	ID        int64     `json:"id"` // monotonically increasing sequence number
	Kind      EventKind `json:"kind"`
	Affected  []string  `json:"affected"` // instrument names, in selection order
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// LotStatus is the lifecycle state of a lot.
type LotStatus string

const (
	LotOpen   LotStatus = "open"
	LotClosed LotStatus = "closed"
)

// Lot is a discrete batch of shares acquired in one buy. Sells consume lots
// oldest-first; a lot transitions open→closed exactly once, when Remaining
// reaches zero, and is immutable thereafter.
type Lot struct {
	ID            string    `json:"id"`
	InstrumentID  int64     `json:"stock_id"`
	Instrument    string    `json:"stock"`
	Remaining     int64     `json:"amount"`
	InitialAmount int64     `json:"initial_amount"`
	BuyPrice      int64     `json:"buy_price"`
	SellPrice     *int64    `json:"sell_price"` // set once, when the lot closes
	Status        LotStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// LotView is a lot annotated with the instrument's live price.
type LotView struct {
	Lot
	CurrentPrice int64 `json:"current_price"`
}

// AccountView is the projection of one account returned from ledger
// operations. PortfolioValue is computed on demand from live prices and is
// never cached.
type AccountView struct {
	Owner          string           `json:"owner"`
	Capital        decimal.Decimal  `json:"capital"`
	Holdings       map[string]int64 `json:"portfolio"`
	Lots           []LotView        `json:"transactions"`
	PortfolioValue decimal.Decimal  `json:"portfolio_value"`
}

// LeaderboardEntry is one row of the leaderboard, sorted descending by
// portfolio value with ties broken by registration order.
type LeaderboardEntry struct {
	Owner          string           `json:"user"`
	Capital        decimal.Decimal  `json:"capital"`
	Holdings       map[string]int64 `json:"portfolio"`
	PortfolioValue decimal.Decimal  `json:"portfolio_value"`
}
