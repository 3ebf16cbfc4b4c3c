// Package ledger tracks per-account capital, share holdings, and FIFO lot
// history, and converts buy/sell requests into lot transactions.
//
// Affordability is strict on both sides: a buy that costs more than the
// account's capital and a sell of more shares than the account holds both
// fail without mutating any state. There are no partial fills.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpit/market-engine/internal/metrics"
	"github.com/stockpit/market-engine/internal/model"
)

var (
	// ErrAccountNotFound is returned when the owner has no ledger entry.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrInsufficientCapital is returned when a buy costs more than the
	// account's capital. No partial fill is performed.
	ErrInsufficientCapital = errors.New("ledger: insufficient capital")

	// ErrInsufficientHoldings is returned when a sell exceeds the account's
	// holdings of the instrument.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")

	// ErrInvalidAmount is returned for non-positive trade amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be a positive integer")
)

// Quoter is the market surface the ledger needs: price reads and the
// momentum perturbation hook. *market.Market implements it.
type Quoter interface {
	Quote(id int64) (model.Quote, error)
	PricesByName() map[string]int64
	AdjustMomentum(id int64, amount float64)
}

// account is the mutable ledger state for one owner. Its mutex serializes
// buys and sells against each other; capital, holdings, and lots only change
// while it is held.
type account struct {
	mu       sync.Mutex
	owner    string
	capital  decimal.Decimal
	holdings map[string]int64
	lots     []*model.Lot
}

// Ledger owns the account map. It reads instrument prices through the
// Quoter but never writes them; momentum perturbation on trades goes through
// the quoter's hook. A trade holds at most one account lock and never a
// market lock at the same time, so no lock-ordering deadlock is possible.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	order    []string // registration order; leaderboard tie-break

	quoter          Quoter
	startingCapital decimal.Decimal
	buySellEffect   float64
}

// New creates an empty ledger reading prices from quoter. buySellEffect
// scales the momentum nudge per traded share; zero disables it.
func New(quoter Quoter, startingCapital decimal.Decimal, buySellEffect float64) *Ledger {
	return &Ledger{
		accounts:        make(map[string]*account),
		quoter:          quoter,
		startingCapital: startingCapital,
		buySellEffect:   buySellEffect,
	}
}

// Register creates the default account for owner. It is an idempotent no-op
// if the owner already has one.
func (l *Ledger) Register(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[owner]; ok {
		return
	}
	l.accounts[owner] = &account{
		owner:    owner,
		capital:  l.startingCapital,
		holdings: make(map[string]int64),
	}
	l.order = append(l.order, owner)
	metrics.RegisteredAccounts.Inc()
}

func (l *Ledger) account(owner string) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[owner]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// TradeResult is the outcome of a successful buy or sell.
type TradeResult struct {
	Message string            `json:"message"`
	Account model.AccountView `json:"userData"`
}

// Buy purchases amount shares of the instrument at its current price,
// debits capital, and appends a new open lot at the end of the account's lot
// sequence — that ordering is what makes later sells FIFO.
func (l *Ledger) Buy(owner string, instrumentID int64, amount int64) (TradeResult, error) {
	if amount <= 0 {
		return TradeResult{}, ErrInvalidAmount
	}
	quote, err := l.quoter.Quote(instrumentID)
	if err != nil {
		return TradeResult{}, err
	}
	acc, err := l.account(owner)
	if err != nil {
		return TradeResult{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	cost := decimal.NewFromInt(quote.Price).Mul(decimal.NewFromInt(amount))
	if acc.capital.LessThan(cost) {
		metrics.TradeRejections.WithLabelValues("insufficient_capital").Inc()
		return TradeResult{}, ErrInsufficientCapital
	}

	acc.capital = acc.capital.Sub(cost)
	acc.holdings[quote.Name] += amount
	acc.lots = append(acc.lots, &model.Lot{
		ID:            uuid.New().String(),
		InstrumentID:  quote.ID,
		Instrument:    quote.Name,
		Remaining:     amount,
		InitialAmount: amount,
		BuyPrice:      quote.Price,
		Status:        model.LotOpen,
		CreatedAt:     time.Now().UTC(),
	})

	if l.buySellEffect != 0 {
		l.quoter.AdjustMomentum(quote.ID, float64(amount)*l.buySellEffect)
	}
	metrics.TradesTotal.WithLabelValues("buy").Inc()

	return TradeResult{
		Message: fmt.Sprintf("Bought %d of %s at CHF %d", amount, quote.Name, quote.Price),
		Account: l.viewLocked(acc),
	}, nil
}

// Sell disposes of amount shares at the instrument's current price, walking
// the account's lots oldest-first. A lot whose remaining count reaches zero
// records the sell price and closes; the proceeds of every consumed share
// are credited to capital.
func (l *Ledger) Sell(owner string, instrumentID int64, amount int64) (TradeResult, error) {
	if amount <= 0 {
		return TradeResult{}, ErrInvalidAmount
	}
	quote, err := l.quoter.Quote(instrumentID)
	if err != nil {
		return TradeResult{}, err
	}
	acc, err := l.account(owner)
	if err != nil {
		return TradeResult{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.holdings[quote.Name] < amount {
		metrics.TradeRejections.WithLabelValues("insufficient_holdings").Inc()
		return TradeResult{}, ErrInsufficientHoldings
	}

	still := amount
	proceeds := decimal.Zero
	for _, lot := range acc.lots {
		if still == 0 {
			break
		}
		if lot.Instrument != quote.Name || lot.Status != model.LotOpen {
			continue
		}
		consumed := lot.Remaining
		if consumed > still {
			consumed = still
		}
		lot.Remaining -= consumed
		if lot.Remaining == 0 {
			sellPrice := quote.Price
			lot.SellPrice = &sellPrice
			lot.Status = model.LotClosed
		}
		proceeds = proceeds.Add(decimal.NewFromInt(quote.Price).Mul(decimal.NewFromInt(consumed)))
		still -= consumed
	}
	if still != 0 {
		// Holdings said the shares exist but the lots disagree. That is a
		// logic defect, not a user error; it must not be swallowed.
		panic(fmt.Sprintf("ledger: holdings out of sync with lots for %s/%s: %d shares unaccounted",
			owner, quote.Name, still))
	}

	acc.holdings[quote.Name] -= amount
	acc.capital = acc.capital.Add(proceeds)

	if l.buySellEffect != 0 {
		l.quoter.AdjustMomentum(quote.ID, -float64(amount)*l.buySellEffect)
	}
	metrics.TradesTotal.WithLabelValues("sell").Inc()

	return TradeResult{
		Message: fmt.Sprintf("Sold %d of %s at CHF %d", amount, quote.Name, quote.Price),
		Account: l.viewLocked(acc),
	}, nil
}

// Account returns the owner's projection: capital, holdings, lots annotated
// with live prices, and the on-demand portfolio value.
func (l *Ledger) Account(owner string) (model.AccountView, error) {
	acc, err := l.account(owner)
	if err != nil {
		return model.AccountView{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return l.viewLocked(acc), nil
}

// Transactions returns the owner's lot history annotated with live prices.
func (l *Ledger) Transactions(owner string) ([]model.LotView, error) {
	view, err := l.Account(owner)
	if err != nil {
		return nil, err
	}
	return view.Lots, nil
}

// viewLocked builds the account projection. Caller holds acc.mu; prices are
// snapshotted in one market read so the valuation sees a consistent tick.
func (l *Ledger) viewLocked(acc *account) model.AccountView {
	prices := l.quoter.PricesByName()

	holdings := make(map[string]int64, len(acc.holdings))
	value := acc.capital
	for name, count := range acc.holdings {
		holdings[name] = count
		value = value.Add(decimal.NewFromInt(prices[name]).Mul(decimal.NewFromInt(count)))
	}

	lots := make([]model.LotView, 0, len(acc.lots))
	for _, lot := range acc.lots {
		lots = append(lots, model.LotView{Lot: *lot, CurrentPrice: prices[lot.Instrument]})
	}

	return model.AccountView{
		Owner:          acc.owner,
		Capital:        acc.capital,
		Holdings:       holdings,
		Lots:           lots,
		PortfolioValue: value,
	}
}

// Leaderboard returns every account's capital, holdings, and portfolio
// value, sorted descending by portfolio value. Equal values keep
// registration order.
func (l *Ledger) Leaderboard() []model.LeaderboardEntry {
	l.mu.RLock()
	owners := make([]*account, 0, len(l.order))
	for _, owner := range l.order {
		owners = append(owners, l.accounts[owner])
	}
	l.mu.RUnlock()

	prices := l.quoter.PricesByName()

	entries := make([]model.LeaderboardEntry, 0, len(owners))
	for _, acc := range owners {
		acc.mu.Lock()
		holdings := make(map[string]int64, len(acc.holdings))
		value := acc.capital
		for name, count := range acc.holdings {
			holdings[name] = count
			value = value.Add(decimal.NewFromInt(prices[name]).Mul(decimal.NewFromInt(count)))
		}
		entries = append(entries, model.LeaderboardEntry{
			Owner:          acc.owner,
			Capital:        acc.capital,
			Holdings:       holdings,
			PortfolioValue: value,
		})
		acc.mu.Unlock()
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PortfolioValue.GreaterThan(entries[j].PortfolioValue)
	})
	return entries
}
