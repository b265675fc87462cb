// Package derived computes presentation-facing state from the primary
// entity's snapshot: the current weather code and a day/night flag derived
// from sunrise and sunset, re-evaluated as real time passes.
package derived

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weatherclock/internal/domain"
)

// Consumer receives the derived (weatherCode, isDay) pair. Background
// effects and theming subscribe here; they never see raw snapshots.
type Consumer func(weatherCode int, isDay bool)

// Publisher recomputes derived state on every new primary snapshot and on
// a coarse once-per-minute re-evaluation that advances day/night between
// snapshots. It never fetches data itself.
//
// Consumers are invoked while the publisher's lock is held. They must
// therefore never call back into Subscribe, OnSnapshot, or Reevaluate.
type Publisher struct {
	clock     clockwork.Clock
	logger    *slog.Logger
	scheduler *gocron.Scheduler

	mu        sync.Mutex
	consumers []Consumer
	snap      *domain.WeatherSnapshot
	last      *derivedState
}

type derivedState struct {
	weatherCode int
	isDay       bool
}

// NewPublisher creates a publisher. Start launches the periodic
// re-evaluation job.
func NewPublisher(clock clockwork.Clock, logger *slog.Logger) *Publisher {
	return &Publisher{
		clock:     clock,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Subscribe registers a consumer. Consumers added after the first snapshot
// receive the current state immediately.
func (p *Publisher) Subscribe(c Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers = append(p.consumers, c)
	if p.last != nil {
		c(p.last.weatherCode, p.last.isDay)
	}
}

// OnSnapshot ingests a new primary snapshot and notifies consumers when
// the derived state changed.
func (p *Publisher) OnSnapshot(snap domain.WeatherSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = &snap
	p.recomputeLocked()
}

// Reevaluate recomputes day/night from the retained snapshot as wall time
// advances. Called once per minute by the scheduler; a no-op before the
// first snapshot.
func (p *Publisher) Reevaluate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recomputeLocked()
}

// Start begins the periodic re-evaluation.
func (p *Publisher) Start() error {
	if _, err := p.scheduler.Every(1).Minute().Do(p.Reevaluate); err != nil {
		return fmt.Errorf("schedule reevaluation: %w", err)
	}
	p.scheduler.StartAsync()
	return nil
}

// Stop halts the periodic re-evaluation.
func (p *Publisher) Stop() {
	p.scheduler.Stop()
}

func (p *Publisher) recomputeLocked() {
	if p.snap == nil {
		return
	}

	payload := p.snap.Payload
	if payload.Current == nil || payload.Current.WeatherCode == nil || payload.Daily == nil {
		return
	}

	isDay, err := p.computeIsDay(payload)
	if err != nil {
		p.logger.Warn("day/night computation failed", "error", err)
		return
	}

	state := derivedState{weatherCode: *payload.Current.WeatherCode, isDay: isDay}
	if p.last != nil && *p.last == state {
		return
	}
	p.last = &state

	for _, c := range p.consumers {
		c(state.weatherCode, state.isDay)
	}
}

// computeIsDay compares now against the snapshot's sunrise/sunset for the
// current day in the entity's timezone.
func (p *Publisher) computeIsDay(payload domain.ForecastPayload) (bool, error) {
	loc, err := time.LoadLocation(payload.Timezone)
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", payload.Timezone, err)
	}

	now := p.clock.Now().In(loc)
	today := now.Format(domain.DateLayout)

	daily := payload.Daily
	idx := -1
	for i, d := range daily.Time {
		if d == today {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(daily.Sunrise) || idx >= len(daily.Sunset) {
		return false, fmt.Errorf("no daily data for %s", today)
	}

	sunrise, err := time.ParseInLocation(domain.InstantLayout, daily.Sunrise[idx], loc)
	if err != nil {
		return false, fmt.Errorf("parse sunrise %q: %w", daily.Sunrise[idx], err)
	}
	sunset, err := time.ParseInLocation(domain.InstantLayout, daily.Sunset[idx], loc)
	if err != nil {
		return false, fmt.Errorf("parse sunset %q: %w", daily.Sunset[idx], err)
	}

	return !now.Before(sunrise) && now.Before(sunset), nil
}
