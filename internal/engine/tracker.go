package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/huntforge/anchorhunt/internal/store"
	"github.com/huntforge/anchorhunt/pkg/anchor"
	"github.com/huntforge/anchorhunt/pkg/progress"
)

// Tracker caches the current user's solved set for the active map and keeps
// the derived unlocked clue index up to date. Solves are written through to
// the store; the local set is updated first and never rolled back.
type Tracker struct {
	store  store.Store
	logger *slog.Logger

	mu       sync.Mutex
	userID   string
	mapID    int
	solved   progress.SolvedSet
	unlocked int
}

// NewTracker creates a tracker with an empty solved set.
func NewTracker(s store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:    s,
		logger:   logger,
		solved:   progress.NewSolvedSet(),
		unlocked: 1,
	}
}

// Load fetches the user's solved set for a map. An empty user id means
// guest: the tracker proceeds with an empty set and skips persistence, it
// does not fail.
func (t *Tracker) Load(ctx context.Context, userID string, mapID int, anchors []*anchor.Anchor) error {
	t.mu.Lock()
	t.userID = userID
	t.mapID = mapID
	t.solved = progress.NewSolvedSet()
	t.unlocked = 1
	t.mu.Unlock()

	if userID == "" {
		t.logger.Warn("No user id, progress not loaded; showing base visibility only")
		t.Recompute(anchors)
		return nil
	}

	ids, err := t.store.SolvedAnchors(ctx, userID, mapID)
	if err != nil {
		t.logger.Error("Failed to load user progress", "user_id", userID, "map_id", mapID, "error", err)
		t.Recompute(anchors)
		return err
	}

	t.mu.Lock()
	t.solved = progress.NewSolvedSet(ids...)
	t.mu.Unlock()

	t.Recompute(anchors)
	t.logger.Info("Progress loaded", "user_id", userID, "map_id", mapID,
		"solved_count", len(ids), "unlocked_index", t.UnlockedIndex())
	return nil
}

// Reset clears the cached progress, for an explicit map switch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userID = ""
	t.mapID = -1
	t.solved = progress.NewSolvedSet()
	t.unlocked = 1
}

// Recompute re-derives the unlocked index from an anchor snapshot. Must run
// after every solve and after every registry refresh.
func (t *Tracker) Recompute(anchors []*anchor.Anchor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unlocked = progress.UnlockedIndex(anchors, t.solved)
}

// UnlockedIndex returns the currently unlocked clue stage.
func (t *Tracker) UnlockedIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unlocked
}

// Solved reports whether the user has solved the given anchor.
func (t *Tracker) Solved(anchorID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.solved.Has(anchorID)
}

// SolvedCount returns the size of the cached solved set.
func (t *Tracker) SolvedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.solved)
}

// MarkSolved records a solve: local set first (idempotent), then one
// boolean-true leaf write to the store, then a recompute against the given
// snapshot. Guests keep the solve in memory only. Calling it again for an
// already-solved anchor changes nothing and writes nothing.
func (t *Tracker) MarkSolved(ctx context.Context, mapID int, anchorID string, anchors []*anchor.Anchor) {
	t.mu.Lock()
	already := t.solved.Has(anchorID)
	t.solved.Add(anchorID)
	userID := t.userID
	t.mu.Unlock()

	if userID == "" {
		t.logger.Warn("Cannot persist solve, no user id", "anchor_id", anchorID)
	} else if !already {
		if err := t.store.MarkSolved(ctx, userID, mapID, anchorID); err != nil {
			// Local state stands; the store catches up on the next
			// successful write or reload.
			t.logger.Error("Failed to persist solve", "anchor_id", anchorID, "error", err)
		}
	}

	t.Recompute(anchors)
	t.logger.Info("Marked solved", "anchor_id", anchorID, "unlocked_index", t.UnlockedIndex())
}
