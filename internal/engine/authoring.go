package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// Admin authoring operations. All of them update the local mirror first and
// then write to the store; a failed write is logged and the optimistic local
// state is kept until the next full reload.

// Place creates a new anchor at the given map-local pose with the configured
// defaults and writes it to the store. The id is generated client-side, so
// the visual appears immediately.
func (r *Registry) Place(ctx context.Context, pos anchor.Vec3, rot anchor.Quat) (*anchor.Anchor, error) {
	mapID := r.ActiveMap()
	if mapID < 0 {
		r.logger.Warn("Cannot place anchor, no active map subscription")
		return nil, fmt.Errorf("no active map subscription")
	}

	a := anchor.New(mapID, pos, rot, r.defaults)
	r.UpsertLocal(a)

	if err := r.store.SetAnchor(ctx, mapID, a.ID, a.Record()); err != nil {
		r.logger.Error("Failed to save placed anchor", "anchor_id", a.ID, "error", err)
	}
	return a, nil
}

// SavePoses writes every known anchor's current pose back to the store, in
// the same map-local space placement uses.
func (r *Registry) SavePoses(ctx context.Context) {
	for _, a := range r.Snapshot() {
		updates := map[string]any{
			"localPos": map[string]any{"x": a.LocalPos.X, "y": a.LocalPos.Y, "z": a.LocalPos.Z},
			"localRot": map[string]any{"x": a.LocalRot.X, "y": a.LocalRot.Y, "z": a.LocalRot.Z, "w": a.LocalRot.W},
		}
		if err := r.store.UpdateAnchor(ctx, a.MapID, a.ID, updates); err != nil {
			r.logger.Error("Failed to save anchor pose", "anchor_id", a.ID, "error", err)
		}
	}
	r.logger.Info("Anchor poses saved", "count", r.Len())
}

// MoveLocal updates an anchor's pose in the mirror only, for drag-style
// editing. SavePoses persists the result.
func (r *Registry) MoveLocal(id string, pos anchor.Vec3, rot anchor.Quat) {
	r.mu.Lock()
	a, ok := r.anchors[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Cannot move, anchor not found", "anchor_id", id)
		return
	}
	a.LocalPos = pos
	a.LocalRot = rot
	r.spawnLocked(a)
	r.mu.Unlock()
	r.notify()
}

// ChangePrefab swaps the visual representation of an anchor.
func (r *Registry) ChangePrefab(ctx context.Context, id, prefabKey string) {
	r.mu.Lock()
	a, ok := r.anchors[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Cannot change prefab, anchor not found", "anchor_id", id)
		return
	}
	a.PrefabKey = prefabKey
	mapID := a.MapID
	// Re-instantiate under the new prefab, keeping the pose.
	if _, spawnedHere := r.spawned[id]; spawnedHere {
		r.pres.Destroy(id)
	}
	r.spawnLocked(a)
	r.mu.Unlock()

	if err := r.store.UpdateAnchor(ctx, mapID, id, map[string]any{"prefabKey": prefabKey}); err != nil {
		r.logger.Error("Failed to save prefab change", "anchor_id", id, "error", err)
	} else {
		r.logger.Info("Prefab changed", "anchor_id", id, "prefab_key", prefabKey)
	}
}

// ClueName returns the display name of an anchor, if known.
func (r *Registry) ClueName(id string) string {
	a, ok := r.Get(id)
	if !ok {
		return ""
	}
	return a.ClueName
}

// SetClueName updates an anchor's display name.
func (r *Registry) SetClueName(ctx context.Context, id, name string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	a, ok := r.anchors[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Cannot set clue name, anchor not found", "anchor_id", id)
		return
	}
	a.ClueName = name
	mapID := a.MapID
	r.mu.Unlock()

	if err := r.store.UpdateAnchor(ctx, mapID, id, map[string]any{"clueName": name}); err != nil {
		r.logger.Error("Failed to save clue name", "anchor_id", id, "error", err)
	} else {
		r.logger.Info("Clue name updated", "anchor_id", id, "clue_name", name)
	}
}

// LinkAnchors puts two anchors on the same unlock stage by setting both clue
// indices to the smaller of the two.
func (r *Registry) LinkAnchors(ctx context.Context, idA, idB string) {
	r.mu.Lock()
	a, okA := r.anchors[idA]
	b, okB := r.anchors[idB]
	if !okA || !okB {
		r.mu.Unlock()
		r.logger.Warn("One or both anchor ids not found for link", "anchor_a", idA, "anchor_b", idB)
		return
	}

	linked := a.ClueIndex
	if b.ClueIndex < linked {
		linked = b.ClueIndex
	}
	a.ClueIndex = linked
	b.ClueIndex = linked
	mapID := a.MapID
	r.mu.Unlock()

	for _, id := range []string{idA, idB} {
		if err := r.store.UpdateAnchor(ctx, mapID, id, map[string]any{"clueIndex": linked}); err != nil {
			r.logger.Error("Failed to save linked clue index", "anchor_id", id, "error", err)
		}
	}
	r.logger.Info("Anchors linked", "anchor_a", idA, "anchor_b", idB, "clue_index", linked)
	r.notify()
}

// SetPopupMessage writes or clears the popup message of a message clue.
// Puzzle anchors reject the edit: a puzzle clue can never carry a plain
// popup message. An empty message removes the popup and resets the clue
// type to default.
func (r *Registry) SetPopupMessage(ctx context.Context, id, message string) error {
	r.mu.Lock()
	a, ok := r.anchors[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Cannot set popup message, anchor not found", "anchor_id", id)
		return fmt.Errorf("anchor %s not found", id)
	}
	if a.EffectiveType() == anchor.TypePuzzle {
		r.mu.Unlock()
		r.logger.Warn("Popup message rejected, anchor is a puzzle clue", "anchor_id", id)
		return fmt.Errorf("anchor %s is a puzzle clue", id)
	}

	mapID := a.MapID
	empty := strings.TrimSpace(message) == ""
	if empty {
		a.PopupMessage = ""
		a.ClueType = anchor.TypeDefault
	} else {
		a.PopupMessage = message
		a.ClueType = anchor.TypeMessage
	}
	r.mu.Unlock()

	var updates map[string]any
	if empty {
		updates = map[string]any{"popupMessage": nil, "clueType": string(anchor.TypeDefault)}
	} else {
		updates = map[string]any{"popupMessage": message, "clueType": string(anchor.TypeMessage)}
	}
	if err := r.store.UpdateAnchor(ctx, mapID, id, updates); err != nil {
		r.logger.Error("Failed to save popup message", "anchor_id", id, "error", err)
	} else if empty {
		r.logger.Info("Popup message cleared", "anchor_id", id)
	} else {
		r.logger.Info("Popup message saved", "anchor_id", id)
	}
	return nil
}

// SetPuzzle attaches or updates the puzzle of an anchor as one batch of
// sibling field updates.
func (r *Registry) SetPuzzle(ctx context.Context, id, hint, password, solvedMessage string) error {
	r.mu.Lock()
	a, ok := r.anchors[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Cannot set puzzle, anchor not found", "anchor_id", id)
		return fmt.Errorf("anchor %s not found", id)
	}
	a.ClueType = anchor.TypePuzzle
	a.Puzzle = &anchor.Puzzle{Hint: hint, Password: password, SolvedMessage: solvedMessage}
	mapID := a.MapID
	r.mu.Unlock()

	updates := map[string]any{
		"clueType":             string(anchor.TypePuzzle),
		"puzzle/hint":          hint,
		"puzzle/password":      password,
		"puzzle/solvedMessage": solvedMessage,
	}
	if err := r.store.UpdateAnchor(ctx, mapID, id, updates); err != nil {
		r.logger.Error("Failed to save puzzle", "anchor_id", id, "error", err)
	} else {
		r.logger.Info("Puzzle saved", "anchor_id", id)
	}
	return nil
}

// PopupMessage fetches the stored popup message for an anchor from the
// store. Missing anchors and fetch failures both yield an empty message, so
// the tap flow treats them like a message-less clue.
func (r *Registry) PopupMessage(ctx context.Context, mapID int, id string) string {
	rec, err := r.store.GetAnchor(ctx, mapID, id)
	if err != nil {
		r.logger.Warn("Failed to load popup message", "anchor_id", id, "error", err)
		return ""
	}
	if rec == nil {
		return ""
	}
	msg, _ := rec["popupMessage"].(string)
	return msg
}
