package market

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/stockpit/market-engine/internal/config"
	"github.com/stockpit/market-engine/internal/metrics"
	"github.com/stockpit/market-engine/internal/model"
)

// Broadcaster receives tick and event notifications for real-time fan-out.
// The WebSocket hub implements it; pass nil if broadcasting is not needed.
type Broadcaster interface {
	BroadcastTick(quotes []model.Quote)
	BroadcastEvent(ev model.MarketEvent)
}

// Simulator advances instrument prices on a fixed period. Each tick applies,
// per instrument: momentum influence (clamped), random fluctuation scaled by
// volatility, mean reversion toward the baseline, the price floor, momentum
// decay, and a history append. After the price pass it rolls for a market
// event. The whole tick runs under the market write lock.
type Simulator struct {
	market *Market
	cfg    config.SimulationConfig
	rng    *rand.Rand
	hub    Broadcaster
}

// NewSimulator creates a simulator over the given market. The rand source is
// injected so tests can be deterministic. Pass nil for hub if broadcasting
// is not needed.
func NewSimulator(m *Market, cfg config.SimulationConfig, rng *rand.Rand, hub Broadcaster) *Simulator {
	return &Simulator{
		market: m,
		cfg:    cfg,
		rng:    rng,
		hub:    hub,
	}
}

// Run drives ticks on the configured interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	slog.Info("price simulation started", "interval", s.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("price simulation stopped")
			return
		case now := <-ticker.C:
			quotes, event := s.Tick(now.UTC())
			if s.hub != nil {
				s.hub.BroadcastTick(quotes)
				if event != nil {
					s.hub.BroadcastEvent(*event)
				}
			}
		}
	}
}

// Tick applies one full price update to every instrument and then rolls for
// a market event. It returns the post-tick quotes and the event, if one
// fired. Instruments are mutually independent within a tick.
func (s *Simulator) Tick(now time.Time) ([]model.Quote, *model.MarketEvent) {
	start := time.Now()

	s.market.mu.Lock()
	for _, inst := range s.market.instruments {
		s.updateInstrument(inst)
		s.market.history = append(s.market.history, model.HistoryRecord{
			ID:        inst.ID,
			Name:      inst.Name,
			Price:     inst.Price,
			Timestamp: now,
		})
	}
	event := s.maybeTriggerEvent(now)
	quotes := s.market.quotesLocked()
	s.market.mu.Unlock()

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	if event != nil {
		metrics.MarketEventsTotal.WithLabelValues(string(event.Kind)).Inc()
		slog.Info("market event fired",
			"id", event.ID,
			"kind", event.Kind,
			"affected", len(event.Affected),
		)
	}
	return quotes, event
}

// updateInstrument applies the stochastic model to one instrument.
// Caller holds the market write lock.
func (s *Simulator) updateInstrument(inst *model.Instrument) {
	cfg := s.cfg
	price := float64(inst.Price)

	randomFactor := 0.8 + s.rng.Float64()*0.4

	fluctuation := (s.rng.Float64()*2 - 1) * inst.Volatility / 100 * price * cfg.SlowingFactor

	influence := price * inst.Momentum / 100 * randomFactor * cfg.SlowingFactor
	maxChange := price * cfg.MaxChangePercent
	influence = math.Max(-maxChange, math.Min(influence, maxChange))

	reversion := (cfg.MeanPrice - price) * cfg.ReversionRate * cfg.SlowingFactor

	next := int64(math.Round(price + influence + fluctuation + reversion))
	if next < model.MinPrice {
		next = model.MinPrice
	}
	inst.Price = next

	decay := cfg.DecayMin + s.rng.Float64()*(cfg.DecayMax-cfg.DecayMin)
	inst.Momentum *= decay
}
