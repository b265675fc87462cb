package forecast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weatherclock/internal/domain"
	"github.com/couchcryptid/weatherclock/internal/observability"
)

// Fetcher retrieves a raw forecast payload for a coordinate pair.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (*domain.ForecastPayload, error)
}

// SnapshotFunc receives a validated snapshot for an entity.
type SnapshotFunc func(entityID string, snap domain.WeatherSnapshot)

// ErrorFunc receives a fetch or validation failure for an entity. The
// entity's previous snapshot is left untouched by the caller.
type ErrorFunc func(entityID string, err error)

// Poller starts independent per-entity fetch loops. Each entity gets its
// own Handle; one entity's failures never stop or delay another's loop.
type Poller struct {
	fetcher   Fetcher
	validator *Validator
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewPoller creates a poller factory sharing one fetcher and validator
// across all entity loops.
func NewPoller(fetcher Fetcher, validator *Validator, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		fetcher:   fetcher,
		validator: validator,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start begins polling for one entity: an immediate first fetch, then one
// fetch per interval. Callbacks fire serially per handle and never after
// Cancel returns.
func (p *Poller) Start(entity domain.ClockEntity, interval time.Duration, onSnapshot SnapshotFunc, onError ErrorFunc) *Handle {
	h := &Handle{
		poller:     p,
		entity:     entity,
		onSnapshot: onSnapshot,
		onError:    onError,
		interval:   interval,
		stop:       make(chan struct{}),
		wake:       make(chan struct{}, 1),
	}
	p.metrics.ActivePollers.Inc()
	go h.run()
	return h
}

// Handle controls one entity's fetch loop.
//
// The mutex serializes state transitions and callback delivery: deliver
// invokes callbacks while holding mu, and Cancel acquires mu before marking
// the handle cancelled, so once Cancel returns no callback can be running
// or ever fire again. Callbacks must therefore never call back into Cancel.
type Handle struct {
	poller     *Poller
	entity     domain.ClockEntity
	onSnapshot SnapshotFunc
	onError    ErrorFunc

	mu          sync.Mutex
	interval    time.Duration
	seq         uint64 // latest issued fetch sequence
	inFlight    bool
	cancelled   bool
	cancelFetch context.CancelFunc

	stop chan struct{}
	wake chan struct{}
}

// EntityID reports which entity this handle polls.
func (h *Handle) EntityID() string { return h.entity.ID }

// Cancel stops the loop and guarantees no further onSnapshot/onError calls
// fire after it returns, even with a fetch in flight: the in-flight
// response is discarded on arrival, not merely the timer stopped.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	if h.cancelFetch != nil {
		h.cancelFetch()
		h.cancelFetch = nil
	}
	close(h.stop)
	h.poller.metrics.ActivePollers.Dec()
}

// SetInterval changes the polling interval. It takes effect when the next
// tick is scheduled; the currently pending tick and any in-flight fetch are
// not restarted.
func (h *Handle) SetInterval(interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interval = interval
}

// RefreshNow requests one out-of-band fetch. It follows the single-flight
// rule: if a fetch is already in flight, the request is dropped.
func (h *Handle) RefreshNow() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Handle) run() {
	h.fire()
	for {
		h.mu.Lock()
		interval := h.interval
		h.mu.Unlock()

		timer := h.poller.clock.NewTimer(interval)
		select {
		case <-h.stop:
			timer.Stop()
			return
		case <-h.wake:
			timer.Stop()
			h.fire()
		case <-timer.Chan():
			h.fire()
		}
	}
}

// fire issues one fetch unless one is already in flight (single-flight per
// entity: a tick arriving mid-fetch is skipped, never queued).
func (h *Handle) fire() {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	if h.inFlight {
		h.mu.Unlock()
		h.poller.metrics.PollTicksSkipped.Inc()
		h.poller.logger.Debug("tick skipped, fetch in flight", "entity_id", h.entity.ID)
		return
	}
	h.inFlight = true
	h.seq++
	seq := h.seq
	ctx, cancel := context.WithCancel(context.Background())
	h.cancelFetch = cancel
	h.mu.Unlock()

	go h.fetch(ctx, cancel, seq)
}

func (h *Handle) fetch(ctx context.Context, cancel context.CancelFunc, seq uint64) {
	defer cancel()

	payload, err := h.poller.fetcher.Fetch(ctx, h.entity.Latitude, h.entity.Longitude)
	if err == nil {
		err = h.poller.validator.Validate(payload)
	}
	h.deliver(seq, payload, err)
}

// deliver applies one fetch result. Responses are discarded when the handle
// was cancelled or when a newer fetch has been issued since (last sequence
// wins, defending against out-of-order completion).
func (h *Handle) deliver(seq uint64, payload *domain.ForecastPayload, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.inFlight = false
	h.cancelFetch = nil

	if h.cancelled || seq != h.seq {
		return
	}

	if err != nil {
		h.poller.metrics.ForecastFetches.WithLabelValues(outcomeLabel(err)).Inc()
		h.poller.logger.Warn("forecast fetch failed", "entity_id", h.entity.ID, "error", err)
		if h.onError != nil {
			h.onError(h.entity.ID, err)
		}
		return
	}

	h.poller.metrics.ForecastFetches.WithLabelValues("success").Inc()
	if h.onSnapshot != nil {
		h.onSnapshot(h.entity.ID, domain.WeatherSnapshot{
			EntityID:  h.entity.ID,
			Payload:   *payload,
			FetchedAt: h.poller.clock.Now(),
		})
	}
}

func outcomeLabel(err error) string {
	if _, ok := err.(*domain.ValidationError); ok {
		return "validation_error"
	}
	return "network_error"
}
