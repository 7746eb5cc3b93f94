// Package engine holds the anchor synchronization and progress-gating core:
// the registry mirroring the remote anchor collection, the per-user progress
// tracker, and the dispatcher routing anchor taps.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/huntforge/anchorhunt/internal/presenter"
	"github.com/huntforge/anchorhunt/internal/store"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// Gate supplies the registry with the current visibility inputs: whether the
// session is in admin mode and which clue stage is unlocked.
type Gate interface {
	AdminMode() bool
	UnlockedIndex() int
}

// Registry is the authoritative local mirror of all anchors for one active
// map. It owns the store subscription lifecycle and drives the presenter's
// spawn, move and visibility calls. Bulk loads and live events converge on
// the same idempotent upsert-by-id path, so their completion order does not
// matter.
type Registry struct {
	store    store.Store
	pres     presenter.Presenter
	logger   *slog.Logger
	defaults anchor.Defaults

	mu       sync.Mutex
	anchors  map[string]*anchor.Anchor
	spawned  map[string]struct{}
	mapID    int // active subscription, -1 when none
	cancel   func()
	gate     Gate
	onChange func()
}

// NewRegistry creates a registry with no active subscription.
func NewRegistry(s store.Store, pres presenter.Presenter, defaults anchor.Defaults, logger *slog.Logger) *Registry {
	return &Registry{
		store:    s,
		pres:     pres,
		logger:   logger,
		defaults: defaults,
		anchors:  make(map[string]*anchor.Anchor),
		spawned:  make(map[string]struct{}),
		mapID:    -1,
	}
}

// SetGate wires the visibility inputs. Without a gate the registry falls
// back to each anchor's base visible flag.
func (r *Registry) SetGate(g Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = g
}

// SetOnChange registers a hook invoked after any record changes (bulk load,
// live event, local upsert, delete). The hook runs outside the registry lock.
func (r *Registry) SetOnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Subscribe attaches to the anchor collection of one map: a one-time bulk
// fetch of existing records, then live child-added and child-changed
// listeners. Subscribing to the already-active map is a no-op; switching
// maps detaches the prior subscription first.
func (r *Registry) Subscribe(ctx context.Context, mapID int) error {
	r.mu.Lock()
	if r.mapID == mapID && r.cancel != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.Unsubscribe()

	events, cancel, err := r.store.Subscribe(ctx, mapID)
	if err != nil {
		r.logger.Error("Failed to subscribe to anchor events", "map_id", mapID, "error", err)
		return fmt.Errorf("failed to subscribe to map %d: %w", mapID, err)
	}

	r.mu.Lock()
	r.mapID = mapID
	r.cancel = cancel
	r.mu.Unlock()

	// Bulk-load existing anchors. A failure here is logged and abandoned;
	// live events still flow and repair the mirror record by record.
	records, err := r.store.ListAnchors(ctx, mapID)
	if err != nil {
		r.logger.Error("Failed to load existing anchors", "map_id", mapID, "error", err)
	} else {
		for _, rec := range records {
			r.applyRecord(rec, mapID)
		}
		r.logger.Info("Loaded existing anchors", "map_id", mapID, "count", len(records))
	}
	r.notify()

	go r.consume(events, mapID)
	return nil
}

// Unsubscribe detaches the live listeners. Detaching listeners that were
// never attached is a no-op.
func (r *Registry) Unsubscribe() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mapID = -1
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reset tears down the current subscription, clears all local state and
// visuals, and subscribes to the given map. It replaces a full runtime
// restart on map switch; unrelated session state survives.
func (r *Registry) Reset(ctx context.Context, mapID int) error {
	r.Unsubscribe()

	r.mu.Lock()
	for id := range r.spawned {
		r.pres.Destroy(id)
	}
	r.anchors = make(map[string]*anchor.Anchor)
	r.spawned = make(map[string]struct{})
	r.mu.Unlock()

	return r.Subscribe(ctx, mapID)
}

func (r *Registry) consume(events <-chan store.AnchorEvent, mapID int) {
	for ev := range events {
		if ev.MapID != mapID {
			continue
		}
		r.applyRecord(ev.Record, mapID)
		r.notify()
	}
}

// applyRecord parses a raw record and upserts it, spawning or moving the
// visual. Both the bulk load and the live listeners land here, which makes
// receiving the same record twice harmless. Records for a map that is no
// longer active are dropped: a completion can arrive after the subscription
// it belonged to was torn down.
func (r *Registry) applyRecord(rec map[string]any, mapID int) {
	a, err := anchor.ParseRecord(rec, mapID, r.defaults)
	if err != nil {
		r.logger.Warn("Skipping unparseable anchor record", "map_id", mapID, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mapID != mapID {
		r.logger.Debug("Dropping record for inactive map", "map_id", mapID, "anchor_id", a.ID)
		return
	}

	r.anchors[a.ID] = a
	r.spawnLocked(a)
}

// spawnLocked issues the spawn-or-move call for an anchor. Caller holds r.mu.
func (r *Registry) spawnLocked(a *anchor.Anchor) {
	r.spawned[a.ID] = struct{}{}
	r.pres.SpawnOrMove(a.ID, a.PrefabKey, a.LocalPos, a.LocalRot, r.visibleLocked(a))
}

func (r *Registry) visibleLocked(a *anchor.Anchor) bool {
	if r.gate == nil {
		return a.Visible
	}
	return anchor.Visible(a, r.gate.AdminMode(), r.gate.UnlockedIndex())
}

func (r *Registry) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// UpsertLocal applies an optimistic local write: the in-memory mirror and
// the visual update immediately, without waiting for a store round-trip.
func (r *Registry) UpsertLocal(a *anchor.Anchor) {
	r.mu.Lock()
	r.anchors[a.ID] = a
	r.spawnLocked(a)
	r.mu.Unlock()
	r.notify()
}

// Get returns the anchor with the given id, if known.
func (r *Registry) Get(id string) (*anchor.Anchor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anchors[id]
	return a, ok
}

// Snapshot returns all known anchors.
func (r *Registry) Snapshot() []*anchor.Anchor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*anchor.Anchor, 0, len(r.anchors))
	for _, a := range r.anchors {
		out = append(out, a)
	}
	return out
}

// Len returns the number of known anchors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.anchors)
}

// ActiveMap returns the currently subscribed map id, or -1.
func (r *Registry) ActiveMap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mapID
}

// RefreshVisibility recomputes and applies the show/hide state of every
// spawned anchor. Run after initial load, after every live event and after
// every solve.
func (r *Registry) RefreshVisibility() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.spawned {
		a, ok := r.anchors[id]
		if !ok {
			continue
		}
		r.pres.SetVisible(id, r.visibleLocked(a))
	}
}

// Delete removes an anchor from the store, destroys its visual and drops it
// from the mirror. An unknown id is a reported no-op. Returns whether a
// local entry was removed; a failed remote delete still removes locally and
// is reconciled on the next full load.
func (r *Registry) Delete(ctx context.Context, id string) bool {
	r.mu.Lock()
	a, ok := r.anchors[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Cannot delete, anchor not found", "anchor_id", id)
		return false
	}
	mapID := a.MapID
	delete(r.anchors, id)
	if _, spawnedHere := r.spawned[id]; spawnedHere {
		delete(r.spawned, id)
		r.pres.Destroy(id)
	}
	r.mu.Unlock()

	if err := r.store.RemoveAnchor(ctx, mapID, id); err != nil {
		r.logger.Error("Failed to remove anchor from store", "anchor_id", id, "error", err)
	} else {
		r.logger.Info("Anchor deleted", "anchor_id", id)
	}
	r.notify()
	return true
}
