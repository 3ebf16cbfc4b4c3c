// Package market owns the tradable instruments, the periodic price
// simulation, and the append-only history and event logs.
//
// The simulator and the event generator are the only writers of price and
// momentum. All reads return copies taken under the registry lock, so a tick
// is atomic from the perspective of external readers: a caller sees either
// the pre-tick or the fully post-tick price, never an instrument mid-update.
package market

import (
	"errors"
	"sync"

	"github.com/stockpit/market-engine/internal/config"
	"github.com/stockpit/market-engine/internal/model"
)

// ErrInstrumentNotFound is returned for quote lookups of unknown instruments.
var ErrInstrumentNotFound = errors.New("market: instrument not found")

// Market is the instrument registry plus the history and event logs.
// A single RWMutex guards all of it; the tick holds the write lock for the
// whole update so instrument-by-instrument interleaving is impossible.
type Market struct {
	mu          sync.RWMutex
	instruments []*model.Instrument // fixed set, stable order
	byID        map[int64]*model.Instrument
	history     []model.HistoryRecord
	events      []model.MarketEvent
	eventSeq    int64
}

// New creates a market seeded from the configured instruments. IDs are
// assigned from position, starting at 1.
func New(seed []config.InstrumentConfig) *Market {
	m := &Market{
		byID: make(map[int64]*model.Instrument, len(seed)),
	}
	for i, ic := range seed {
		inst := &model.Instrument{
			ID:         int64(i + 1),
			Name:       ic.Name,
			Price:      ic.Price,
			Volatility: ic.Volatility,
		}
		m.instruments = append(m.instruments, inst)
		m.byID[inst.ID] = inst
	}
	return m
}

// Quotes returns a snapshot of all instruments in registry order.
func (m *Market) Quotes() []model.Quote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quotesLocked()
}

func (m *Market) quotesLocked() []model.Quote {
	quotes := make([]model.Quote, 0, len(m.instruments))
	for _, inst := range m.instruments {
		quotes = append(quotes, model.Quote{ID: inst.ID, Name: inst.Name, Price: inst.Price})
	}
	return quotes
}

// Instruments returns a full-state snapshot of every instrument, including
// momentum, in registry order.
func (m *Market) Instruments() []model.Instrument {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Instrument, 0, len(m.instruments))
	for _, inst := range m.instruments {
		out = append(out, *inst)
	}
	return out
}

// Quote returns the current snapshot of one instrument.
func (m *Market) Quote(id int64) (model.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.byID[id]
	if !ok {
		return model.Quote{}, ErrInstrumentNotFound
	}
	return model.Quote{ID: inst.ID, Name: inst.Name, Price: inst.Price}, nil
}

// PricesByName returns all current prices keyed by instrument name, taken
// under one lock so valuations see a consistent tick.
func (m *Market) PricesByName() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prices := make(map[string]int64, len(m.instruments))
	for _, inst := range m.instruments {
		prices[inst.Name] = inst.Price
	}
	return prices
}

// AdjustMomentum adds a directional impulse to one instrument's momentum.
// Used by the trade hook; unknown ids are ignored.
func (m *Market) AdjustMomentum(id int64, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.byID[id]; ok {
		inst.Momentum += amount
	}
}

// History returns the most recent limit records, oldest first. A limit of
// zero or beyond the log length returns the full log. The returned slice is
// a copy; the log itself is append-only.
func (m *Market) History(limit int) []model.HistoryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && len(m.history) > limit {
		start = len(m.history) - limit
	}
	out := make([]model.HistoryRecord, len(m.history)-start)
	copy(out, m.history[start:])
	return out
}

// Events returns all market events, newest first.
func (m *Market) Events() []model.MarketEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.MarketEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		out = append(out, m.events[i])
	}
	return out
}
