package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/weatherclock/internal/domain"
)

// KV is the durable store the registry persists to. Implemented by Store;
// tests substitute an in-memory fake.
type KV interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Put(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// PollerHandle controls one entity's live fetch loop.
type PollerHandle interface {
	Cancel()
	SetInterval(time.Duration)
	RefreshNow()
}

// StartPoller launches a fetch loop for an entity. The forecast poller's
// Start satisfies this through a small adapter in the wiring layer.
type StartPoller func(entity domain.ClockEntity, interval time.Duration,
	onSnapshot func(entityID string, snap domain.WeatherSnapshot),
	onError func(entityID string, err error)) PollerHandle

// PrimaryObserver is notified of every snapshot applied to the primary
// entity (the derived-state publisher subscribes here).
type PrimaryObserver func(snap domain.WeatherSnapshot)

// Registry owns the ordered list of clock entities and reconciles poller
// lifecycles with every mutation: one live poller per entity, started on
// add, cancelled before the entity is dropped on remove. Secondary entities
// and settings persist to the KV store on every mutation; the primary is
// persisted under its own override key and never restored from the generic
// list.
//
// All mutations are serialized through one mutex. Handle cancellation
// happens outside that mutex: a poller delivers callbacks under its own
// lock, so cancelling while holding the registry lock could deadlock
// against an in-progress snapshot delivery.
type Registry struct {
	kv      KV
	start   StartPoller
	logger  *slog.Logger
	onPrime PrimaryObserver

	mu          sync.Mutex
	primary     *domain.ClockEntity
	secondaries []domain.ClockEntity
	handles     map[string]PollerHandle
	snapshots   map[string]domain.WeatherSnapshot
	lastErrs    map[string]error
	settings    domain.Settings
}

// New creates a registry. Settings provide the initial refresh interval;
// persisted settings override them during Load.
func New(kv KV, start StartPoller, settings domain.Settings, logger *slog.Logger) *Registry {
	return &Registry{
		kv:        kv,
		start:     start,
		logger:    logger,
		handles:   make(map[string]PollerHandle),
		snapshots: make(map[string]domain.WeatherSnapshot),
		lastErrs:  make(map[string]error),
		settings:  settings,
	}
}

// SetPrimaryObserver registers the consumer of primary snapshots. Must be
// called before Load.
func (r *Registry) SetPrimaryObserver(fn PrimaryObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPrime = fn
}

// Load rehydrates persisted state and starts pollers for every restored
// entity. Called once at startup.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var settings domain.Settings
	if ok, err := r.kv.Get(ctx, keySettings, &settings); err != nil {
		return fmt.Errorf("load settings: %w", err)
	} else if ok {
		r.settings = settings
	}

	var secondaries []domain.ClockEntity
	if _, err := r.kv.Get(ctx, keyEntities, &secondaries); err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	for _, e := range secondaries {
		e.IsPrimary = false
		r.secondaries = append(r.secondaries, e)
		r.startLocked(e)
	}

	// The primary comes only from a previously confirmed override, never
	// from the generic list; absent an override it is resolved at runtime.
	var primary domain.ClockEntity
	if ok, err := r.kv.Get(ctx, keyPrimary, &primary); err != nil {
		return fmt.Errorf("load primary override: %w", err)
	} else if ok {
		primary.IsPrimary = true
		r.primary = &primary
		r.startLocked(primary)
	}

	r.logger.Info("registry loaded",
		"secondaries", len(r.secondaries),
		"has_primary", r.primary != nil,
		"refresh_interval", r.settings.RefreshInterval)
	return nil
}

// Add inserts a secondary entity and starts its poller. Without override,
// a candidate whose normalized display name matches an existing secondary
// is not inserted; a DuplicateError carrying both entities is returned and
// the caller must confirm by re-adding with override set.
func (r *Registry) Add(ctx context.Context, candidate domain.ClockEntity, override bool) (domain.ClockEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !override {
		norm := domain.NormalizeName(candidate.DisplayName)
		for _, e := range r.secondaries {
			if domain.NormalizeName(e.DisplayName) == norm {
				return domain.ClockEntity{}, &domain.DuplicateError{Candidate: candidate, Existing: e}
			}
		}
	}

	entity := candidate
	entity.ID = domain.NewEntityID()
	entity.IsPrimary = false

	next := append(append([]domain.ClockEntity(nil), r.secondaries...), entity)
	if err := r.kv.Put(ctx, keyEntities, next); err != nil {
		return domain.ClockEntity{}, fmt.Errorf("persist entities: %w", err)
	}
	r.secondaries = next
	r.startLocked(entity)

	r.logger.Info("entity added", "entity_id", entity.ID, "display_name", entity.DisplayName)
	return entity, nil
}

// Remove deletes a secondary entity, cancelling its poller before the
// entity is dropped so a late response cannot resurrect the id. Removing
// the primary is an InvalidOperation.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.primary != nil && r.primary.ID == id {
		r.mu.Unlock()
		return fmt.Errorf("%w: the primary entity cannot be removed", domain.ErrInvalidOperation)
	}

	idx := -1
	for i, e := range r.secondaries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: unknown entity %q", domain.ErrInvalidOperation, id)
	}
	entity := r.secondaries[idx]

	handle := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	// Cancel before drop, outside the registry lock (see type comment).
	if handle != nil {
		handle.Cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]domain.ClockEntity, 0, len(r.secondaries))
	for _, e := range r.secondaries {
		if e.ID != id {
			next = append(next, e)
		}
	}
	if err := r.kv.Put(ctx, keyEntities, next); err != nil {
		// The entity stays mounted, so it must not be left without a live
		// poller: the cancelled one is replaced before reporting failure.
		r.startLocked(entity)
		return fmt.Errorf("persist entities: %w", err)
	}
	r.secondaries = next
	delete(r.snapshots, id)
	delete(r.lastErrs, id)

	r.logger.Info("entity removed", "entity_id", id)
	return nil
}

// Reorder moves an entity before another in the secondary ordering. An
// empty beforeID moves it to the end.
func (r *Registry) Reorder(ctx context.Context, id, beforeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	moved := -1
	for i, e := range r.secondaries {
		if e.ID == id {
			moved = i
			break
		}
	}
	if moved < 0 {
		return fmt.Errorf("%w: unknown entity %q", domain.ErrInvalidOperation, id)
	}

	entity := r.secondaries[moved]
	rest := append(append([]domain.ClockEntity(nil), r.secondaries[:moved]...), r.secondaries[moved+1:]...)

	insert := len(rest)
	if beforeID != "" {
		insert = -1
		for i, e := range rest {
			if e.ID == beforeID {
				insert = i
				break
			}
		}
		if insert < 0 {
			return fmt.Errorf("%w: unknown entity %q", domain.ErrInvalidOperation, beforeID)
		}
	}

	next := make([]domain.ClockEntity, 0, len(r.secondaries))
	next = append(next, rest[:insert]...)
	next = append(next, entity)
	next = append(next, rest[insert:]...)

	if err := r.kv.Put(ctx, keyEntities, next); err != nil {
		return fmt.Errorf("persist entities: %w", err)
	}
	r.secondaries = next
	return nil
}

// SetPrimary replaces the primary entity wholesale: the candidate gets a
// fresh id, the old primary's poller is cancelled and its snapshot
// invalidated, and the new primary is persisted under the override key.
// This is the only way the primary's coordinates change.
func (r *Registry) SetPrimary(ctx context.Context, candidate domain.ClockEntity) (domain.ClockEntity, error) {
	r.mu.Lock()
	var oldID string
	var oldHandle PollerHandle
	if r.primary != nil {
		oldID = r.primary.ID
		oldHandle = r.handles[oldID]
		delete(r.handles, oldID)
	}
	r.mu.Unlock()

	if oldHandle != nil {
		oldHandle.Cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entity := candidate
	entity.ID = domain.NewEntityID()
	entity.IsPrimary = true

	if err := r.kv.Put(ctx, keyPrimary, entity); err != nil {
		// Same rule as Remove: the retained old primary must keep polling.
		if r.primary != nil {
			r.startLocked(*r.primary)
		}
		return domain.ClockEntity{}, fmt.Errorf("persist primary: %w", err)
	}
	if oldID != "" {
		delete(r.snapshots, oldID)
		delete(r.lastErrs, oldID)
	}
	r.primary = &entity
	r.startLocked(entity)

	r.logger.Info("primary replaced", "entity_id", entity.ID, "display_name", entity.DisplayName)
	return entity, nil
}

// ResetPrimary forgets the resolved primary: its poller is cancelled, its
// snapshot dropped, and the persisted override deleted so the next startup
// resolves the device location afresh. A no-op when no primary is set.
func (r *Registry) ResetPrimary(ctx context.Context) error {
	r.mu.Lock()
	if r.primary == nil {
		r.mu.Unlock()
		return nil
	}
	id := r.primary.ID
	handle := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.kv.Delete(ctx, keyPrimary); err != nil {
		// Same rule as Remove: a still-mounted primary keeps polling.
		if r.primary != nil {
			r.startLocked(*r.primary)
		}
		return fmt.Errorf("delete primary override: %w", err)
	}
	r.primary = nil
	delete(r.snapshots, id)
	delete(r.lastErrs, id)

	r.logger.Info("primary reset", "entity_id", id)
	return nil
}

// List returns the current ordering: primary first (when resolved), then
// secondaries in display order.
func (r *Registry) List() []domain.ClockEntity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ClockEntity, 0, len(r.secondaries)+1)
	if r.primary != nil {
		out = append(out, *r.primary)
	}
	return append(out, r.secondaries...)
}

// Snapshot returns the last-known-good snapshot for an entity, if any.
// Snapshots survive fetch failures: a transient error never blanks the
// previous data, it only records a staleness error alongside it.
func (r *Registry) Snapshot(id string) (domain.WeatherSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[id]
	return snap, ok
}

// LastError returns the most recent fetch failure for an entity, cleared
// by the next successful snapshot.
func (r *Registry) LastError(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErrs[id]
}

// SetRefreshInterval updates the shared settings, persists them, and fans
// the new interval out to every live poller.
func (r *Registry) SetRefreshInterval(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: refresh interval must be positive", domain.ErrInvalidOperation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.settings
	next.RefreshInterval = interval
	if err := r.kv.Put(ctx, keySettings, next); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	r.settings = next
	for _, h := range r.handles {
		h.SetInterval(interval)
	}
	return nil
}

// Settings returns a copy of the current settings.
func (r *Registry) Settings() domain.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// CheckReadiness reports ready once a primary is resolved and its first
// snapshot has been applied.
func (r *Registry) CheckReadiness(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.primary == nil {
		return fmt.Errorf("primary entity not resolved")
	}
	if _, ok := r.snapshots[r.primary.ID]; !ok {
		return fmt.Errorf("no snapshot for primary entity yet")
	}
	return nil
}

// Close cancels every live poller. The registry is unusable afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	handles := make([]PollerHandle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[string]PollerHandle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

// startLocked launches a poller for an entity. Caller holds r.mu.
func (r *Registry) startLocked(entity domain.ClockEntity) {
	r.handles[entity.ID] = r.start(entity, r.settings.RefreshInterval, r.applySnapshot, r.recordError)
}

// applySnapshot is the shared snapshot sink for all pollers. Membership is
// re-checked under the registry lock: a late response for an entity removed
// since the fetch was issued is discarded, never resurrected.
func (r *Registry) applySnapshot(entityID string, snap domain.WeatherSnapshot) {
	r.mu.Lock()
	if !r.containsLocked(entityID) {
		r.mu.Unlock()
		r.logger.Debug("snapshot for unknown entity discarded", "entity_id", entityID)
		return
	}
	r.snapshots[entityID] = snap
	delete(r.lastErrs, entityID)
	isPrimary := r.primary != nil && r.primary.ID == entityID
	observer := r.onPrime
	r.mu.Unlock()

	if isPrimary && observer != nil {
		observer(snap)
	}
}

// recordError is the shared error sink. The previous snapshot is left
// untouched; the error is kept so a UI can show staleness.
func (r *Registry) recordError(entityID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.containsLocked(entityID) {
		return
	}
	r.lastErrs[entityID] = err
}

func (r *Registry) containsLocked(id string) bool {
	if r.primary != nil && r.primary.ID == id {
		return true
	}
	for _, e := range r.secondaries {
		if e.ID == id {
			return true
		}
	}
	return false
}
