package geosearch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weatherclock/internal/domain"
	"github.com/couchcryptid/weatherclock/internal/observability"
)

// Searcher resolves query text to location candidates.
type Searcher interface {
	Search(ctx context.Context, text string) ([]domain.SearchResult, error)
}

// ResultsFunc receives the resolved candidates for a query. A nil slice
// means the query was too short or was cleared.
type ResultsFunc func(query string, results []domain.SearchResult)

// SearchErrorFunc receives a search transport failure. By contract the
// result list has already been cleared when it fires: a caller never sees
// stale results alongside an error.
type SearchErrorFunc func(err *domain.SearchError)

// DefaultDelay is the debounce quiet period used when the options leave
// Delay unset.
const DefaultDelay = 300 * time.Millisecond

// Debouncer turns a stream of keystrokes into at most one network search
// per quiet period. Each Query supersedes the previous one: the pending
// debounce timer restarts, any in-flight request is cancelled, and a stale
// response can never surface (last generation wins).
//
// Callbacks are invoked while the debouncer's lock is held, so Query and
// Stop are quiescent once a callback fires. Callbacks must therefore never
// call back into Query or Stop.
type Debouncer struct {
	searcher  Searcher
	clock     clockwork.Clock
	delay     time.Duration
	minLength int
	onResults ResultsFunc
	onError   SearchErrorFunc
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	gen      uint64
	timer    clockwork.Timer
	inFlight context.CancelFunc
}

// DebouncerOptions configures a Debouncer.
type DebouncerOptions struct {
	Delay     time.Duration
	MinLength int
	OnResults ResultsFunc
	OnError   SearchErrorFunc
}

// NewDebouncer wires a searcher behind a debounce window.
func NewDebouncer(searcher Searcher, clock clockwork.Clock, opts DebouncerOptions, metrics *observability.Metrics, logger *slog.Logger) *Debouncer {
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		searcher:  searcher,
		clock:     clock,
		delay:     delay,
		minLength: opts.MinLength,
		onResults: opts.OnResults,
		onError:   opts.OnError,
		metrics:   metrics,
		logger:    logger,
	}
}

// Query registers the latest text of the input stream. No network call is
// issued until the text stops changing for the debounce delay. Queries
// below the minimum length resolve immediately to an empty result set
// without touching the network.
func (d *Debouncer) Query(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	d.supersedeLocked()

	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < d.minLength {
		if d.onResults != nil {
			d.onResults(trimmed, nil)
		}
		return
	}

	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.search(gen, trimmed)
	})
}

// Stop cancels any pending debounce window and in-flight request.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.supersedeLocked()
}

// supersedeLocked tears down the previous query's timer and request.
func (d *Debouncer) supersedeLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.inFlight != nil {
		d.inFlight()
		d.inFlight = nil
	}
}

func (d *Debouncer) search(gen uint64, text string) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.inFlight = cancel
	d.mu.Unlock()

	results, err := d.searcher.Search(ctx, text)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		// Superseded while in flight: discard, a newer query owns the surface.
		return
	}
	d.inFlight = nil

	if err != nil {
		d.metrics.SearchRequests.WithLabelValues("error").Inc()
		d.logger.Warn("search failed", "query", text, "error", err)
		if d.onError != nil {
			d.onError(&domain.SearchError{Query: text, Err: err})
		}
		return
	}

	d.metrics.SearchRequests.WithLabelValues("success").Inc()
	if d.onResults != nil {
		d.onResults(text, results)
	}
}
