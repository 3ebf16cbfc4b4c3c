package market

import (
	"fmt"
	"math"
	"time"

	"github.com/stockpit/market-engine/internal/model"
)

// eventTemplates is the pool of phrasings for market event messages. Each
// template takes the event kind and the affected instrument count.
var eventTemplates = []string{
	"Market %s affecting %d stocks!",
	"Breaking: a market %s is sweeping across %d stocks",
	"Traders scramble as a %s hits %d stocks",
	"Analysts stunned: %s conditions spreading to %d stocks",
}

// maybeTriggerEvent rolls for a market event after a price tick. An event
// fires with the configured probability, but never while any instrument's
// |momentum| exceeds the guard threshold — a previous impulse must unwind
// before the next shock stacks on top of it.
//
// Caller holds the market write lock.
func (s *Simulator) maybeTriggerEvent(now time.Time) *model.MarketEvent {
	cfg := s.cfg

	if s.rng.Float64() >= cfg.EventProbability {
		return nil
	}
	for _, inst := range s.market.instruments {
		if math.Abs(inst.Momentum) > cfg.EventGuard {
			return nil
		}
	}

	kind := model.EventBubble
	if s.rng.Float64() < 0.5 {
		kind = model.EventCrash
	}

	count := int(math.Ceil(float64(len(s.market.instruments)) * cfg.EventShare))
	if count < 1 {
		count = 1
	}

	// Distinct instruments, uniformly without replacement.
	affected := make([]string, 0, count)
	for _, idx := range s.rng.Perm(len(s.market.instruments))[:count] {
		inst := s.market.instruments[idx]
		strength := cfg.EventMinStrength + s.rng.Float64()*(cfg.EventMaxStrength-cfg.EventMinStrength)
		if kind == model.EventCrash {
			strength = -strength
		}
		inst.Momentum += strength
		affected = append(affected, inst.Name)
	}

	template := eventTemplates[s.rng.Intn(len(eventTemplates))]
	s.market.eventSeq++
	event := model.MarketEvent{
		ID:        s.market.eventSeq,
		Kind:      kind,
		Affected:  affected,
		Timestamp: now,
		Message:   fmt.Sprintf(template, kind, len(affected)),
	}
	s.market.events = append(s.market.events, event)
	return &event
}
