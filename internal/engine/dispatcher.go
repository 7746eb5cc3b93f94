package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/huntforge/anchorhunt/internal/identity"
	"github.com/huntforge/anchorhunt/internal/presenter"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// WrongAnswerFeedback is shown inside the puzzle prompt after a mismatch.
const WrongAnswerFeedback = "Wrong answer, try again."

// Mode is the exclusive admin edit mode. Entering any mode exits all others
// and clears stale edit targets, so at most one edit target is ever live.
type Mode int

const (
	ModeIdle Mode = iota
	ModeLink
	ModeDelete
	ModeLocationEdit
	ModePrefabEdit
	ModeClueNameEdit
	ModeAwaitPopupAnchor
	ModeAwaitPuzzleAnchor
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeLink:
		return "link"
	case ModeDelete:
		return "delete"
	case ModeLocationEdit:
		return "location-edit"
	case ModePrefabEdit:
		return "prefab-edit"
	case ModeClueNameEdit:
		return "name-edit"
	case ModeAwaitPopupAnchor:
		return "await-popup-anchor"
	case ModeAwaitPuzzleAnchor:
		return "await-puzzle-anchor"
	}
	return "unknown"
}

// Collaborators are the editor surfaces notified when an admin selects an
// anchor for them. All callbacks are optional.
type Collaborators struct {
	PrefabSelected func(anchorID string)
	NameSelected   func(anchorID string)
	PopupSelected  func(anchorID string)
	PuzzleSelected func(anchorID string)
}

// Dispatcher routes anchor-tap events. Admins are routed through the
// exclusive edit modes in a fixed priority order; regular users are routed
// by the tapped anchor's clue type. The dispatcher is also the registry's
// visibility gate.
type Dispatcher struct {
	reg    *Registry
	trk    *Tracker
	pres   presenter.Presenter
	prompt presenter.PuzzlePrompt
	ident  identity.Provider
	logger *slog.Logger
	collab Collaborators

	adminMode bool

	mu           sync.Mutex
	mode         Mode
	pendingLink  string
	prefabTarget string
	nameTarget   string
	popupTarget  string
	puzzleTarget string
}

// Ensure Dispatcher implements the registry's visibility gate
var _ Gate = (*Dispatcher)(nil)

// NewDispatcher wires the dispatcher into the registry as its gate and
// change hook. Admin mode is derived from the identity's role.
func NewDispatcher(reg *Registry, trk *Tracker, pres presenter.Presenter, prompt presenter.PuzzlePrompt, ident identity.Provider, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		reg:       reg,
		trk:       trk,
		pres:      pres,
		prompt:    prompt,
		ident:     ident,
		logger:    logger,
		adminMode: ident.Role() == identity.RoleAdmin,
	}
	reg.SetGate(d)
	reg.SetOnChange(d.Refresh)
	return d
}

// SetCollaborators registers the editor notification callbacks.
func (d *Dispatcher) SetCollaborators(c Collaborators) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collab = c
}

// AdminMode reports whether this session authors anchors instead of playing.
func (d *Dispatcher) AdminMode() bool {
	return d.adminMode
}

// UnlockedIndex returns the tracker's current unlocked stage.
func (d *Dispatcher) UnlockedIndex() int {
	return d.trk.UnlockedIndex()
}

// Refresh recomputes progress against the current registry snapshot and
// re-applies visibility. Runs after every registry change and every solve.
func (d *Dispatcher) Refresh() {
	d.trk.Recompute(d.reg.Snapshot())
	d.reg.RefreshVisibility()
}

// Start subscribes to a map and loads the user's progress for it.
func (d *Dispatcher) Start(ctx context.Context, mapID int) error {
	if err := d.reg.Subscribe(ctx, mapID); err != nil {
		return err
	}

	if d.adminMode {
		// Admins bypass progression gating; nothing to load.
		d.Refresh()
		return nil
	}

	if err := d.trk.Load(ctx, d.ident.UserID(), mapID, d.reg.Snapshot()); err != nil {
		// Degraded to an empty solved set; gating still applies.
		d.logger.Warn("Continuing without persisted progress", "error", err)
	}
	d.Refresh()
	return nil
}

// SwitchMap tears down the current map session and starts the new one.
// Switching to the already-active map is a no-op.
func (d *Dispatcher) SwitchMap(ctx context.Context, mapID int) error {
	if d.reg.ActiveMap() == mapID {
		return nil
	}

	d.logger.Info("Map changed", "map_id", mapID)
	d.pres.HidePopup()
	d.prompt.Hide()
	d.ExitModes()
	d.trk.Reset()

	if err := d.reg.Reset(ctx, mapID); err != nil {
		return err
	}

	if d.adminMode {
		d.Refresh()
		return nil
	}
	if err := d.trk.Load(ctx, d.ident.UserID(), mapID, d.reg.Snapshot()); err != nil {
		d.logger.Warn("Continuing without persisted progress", "error", err)
	}
	d.Refresh()
	return nil
}

// Mode returns the active admin edit mode.
func (d *Dispatcher) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// setModeLocked switches modes and clears every stale edit target. Caller
// holds d.mu.
func (d *Dispatcher) setModeLocked(m Mode) {
	d.mode = m
	d.pendingLink = ""
	d.prefabTarget = ""
	d.nameTarget = ""
	d.popupTarget = ""
	d.puzzleTarget = ""
}

func (d *Dispatcher) enterMode(m Mode) {
	if !d.adminMode {
		return
	}
	d.mu.Lock()
	d.setModeLocked(m)
	d.mu.Unlock()
	d.logger.Info("Admin mode changed", "mode", m.String())
}

// EnterLinkMode starts linking two anchors onto one unlock stage.
func (d *Dispatcher) EnterLinkMode() { d.enterMode(ModeLink) }

// EnterDeleteMode arms a single-shot delete: the next tapped anchor is
// deleted and the mode reverts to idle.
func (d *Dispatcher) EnterDeleteMode() { d.enterMode(ModeDelete) }

// ExitDeleteMode disarms delete mode.
func (d *Dispatcher) ExitDeleteMode() {
	d.mu.Lock()
	if d.mode == ModeDelete {
		d.setModeLocked(ModeIdle)
	}
	d.mu.Unlock()
	d.logger.Info("Delete mode off")
}

// EnterLocationEditMode enables drag-to-move editing.
func (d *Dispatcher) EnterLocationEditMode() { d.enterMode(ModeLocationEdit) }

// EnterPrefabEditMode makes the next tap select a prefab-change target.
func (d *Dispatcher) EnterPrefabEditMode() { d.enterMode(ModePrefabEdit) }

// EnterClueNameEditMode makes the next tap select a rename target.
func (d *Dispatcher) EnterClueNameEditMode() { d.enterMode(ModeClueNameEdit) }

// BeginPopupSelection makes the next tap select the popup-message target.
func (d *Dispatcher) BeginPopupSelection() { d.enterMode(ModeAwaitPopupAnchor) }

// BeginPuzzleSelection makes the next tap select the puzzle target.
func (d *Dispatcher) BeginPuzzleSelection() { d.enterMode(ModeAwaitPuzzleAnchor) }

// ExitModes returns to idle and clears all edit targets.
func (d *Dispatcher) ExitModes() {
	d.mu.Lock()
	d.setModeLocked(ModeIdle)
	d.mu.Unlock()
	d.logger.Info("Admin modes off")
}

// InLocationEditMode reports whether dragging anchors is currently allowed.
func (d *Dispatcher) InLocationEditMode() bool {
	return d.Mode() == ModeLocationEdit
}

// PendingLink returns the first anchor selected in link mode, if any.
func (d *Dispatcher) PendingLink() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingLink
}

// PrefabTarget returns the anchor selected for a prefab change.
func (d *Dispatcher) PrefabTarget() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prefabTarget
}

// NameTarget returns the anchor selected for renaming.
func (d *Dispatcher) NameTarget() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nameTarget
}

// PopupTarget returns the anchor selected for popup-message editing.
func (d *Dispatcher) PopupTarget() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.popupTarget
}

// PuzzleTarget returns the anchor selected for puzzle editing.
func (d *Dispatcher) PuzzleTarget() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.puzzleTarget
}

// HandleTap resolves one anchor-tap event against the current mode and role.
func (d *Dispatcher) HandleTap(ctx context.Context, anchorID string) {
	if d.adminMode {
		d.handleAdminTap(ctx, anchorID)
		return
	}
	d.handleUserTap(ctx, anchorID)
}

func (d *Dispatcher) handleAdminTap(ctx context.Context, anchorID string) {
	d.mu.Lock()
	mode := d.mode
	d.mu.Unlock()

	switch mode {
	case ModeDelete:
		d.logger.Info("Deleting anchor in delete mode", "anchor_id", anchorID)
		if d.reg.Delete(ctx, anchorID) {
			// Single-shot: one successful delete reverts to idle.
			d.ExitDeleteMode()
		}

	case ModeLink:
		d.handleLinkTap(ctx, anchorID)

	case ModePrefabEdit:
		d.mu.Lock()
		d.prefabTarget = anchorID
		d.mu.Unlock()
		d.logger.Info("Anchor selected for prefab edit", "anchor_id", anchorID)
		if d.collab.PrefabSelected != nil {
			d.collab.PrefabSelected(anchorID)
		}

	case ModeClueNameEdit:
		if _, ok := d.reg.Get(anchorID); !ok {
			d.logger.Warn("Tapped anchor not in registry for name edit", "anchor_id", anchorID)
			return
		}
		d.mu.Lock()
		d.nameTarget = anchorID
		d.mu.Unlock()
		d.logger.Info("Anchor selected for clue name edit", "anchor_id", anchorID)
		if d.collab.NameSelected != nil {
			d.collab.NameSelected(anchorID)
		}

	case ModeAwaitPopupAnchor:
		if a, ok := d.reg.Get(anchorID); ok && a.EffectiveType() == anchor.TypePuzzle {
			// Puzzle clues can never receive a plain popup message.
			// Stay in awaiting state so the admin can pick another.
			d.logger.Warn("Puzzle clue rejected as popup target", "anchor_id", anchorID)
			return
		}
		d.mu.Lock()
		d.setModeLocked(ModeIdle)
		d.popupTarget = anchorID
		d.mu.Unlock()
		d.logger.Info("Popup anchor selected", "anchor_id", anchorID)
		if d.collab.PopupSelected != nil {
			d.collab.PopupSelected(anchorID)
		}

	case ModeAwaitPuzzleAnchor:
		d.mu.Lock()
		d.setModeLocked(ModeIdle)
		d.puzzleTarget = anchorID
		d.mu.Unlock()
		d.logger.Info("Puzzle anchor selected", "anchor_id", anchorID)
		if d.collab.PuzzleSelected != nil {
			d.collab.PuzzleSelected(anchorID)
		}

	default:
		// No mode active.
		d.logger.Debug("Anchor tapped", "anchor_id", anchorID)
	}
}

func (d *Dispatcher) handleLinkTap(ctx context.Context, anchorID string) {
	if _, ok := d.reg.Get(anchorID); !ok {
		d.logger.Warn("Tapped anchor not in registry for link", "anchor_id", anchorID)
		return
	}

	d.mu.Lock()
	pending := d.pendingLink
	if pending == "" {
		d.pendingLink = anchorID
		d.mu.Unlock()
		d.logger.Info("First anchor selected for link", "anchor_id", anchorID)
		return
	}
	if pending == anchorID {
		// Same anchor twice cancels the selection.
		d.pendingLink = ""
		d.mu.Unlock()
		d.logger.Info("Link selection cleared")
		return
	}
	d.pendingLink = ""
	d.mu.Unlock()

	d.logger.Info("Linking anchors", "anchor_a", pending, "anchor_b", anchorID)
	d.reg.LinkAnchors(ctx, pending, anchorID)
}

func (d *Dispatcher) handleUserTap(ctx context.Context, anchorID string) {
	a, ok := d.reg.Get(anchorID)
	if !ok {
		d.logger.Warn("No metadata for tapped anchor", "anchor_id", anchorID)
		return
	}

	title := a.DisplayName()

	switch a.EffectiveType() {
	case anchor.TypePuzzle:
		d.handlePuzzleTap(ctx, a, title)

	default:
		// Message and default clues share one path: fetch the stored
		// message, show it if there is one, mark solved either way.
		msg := d.reg.PopupMessage(ctx, a.MapID, a.ID)
		if msg != "" {
			d.pres.ShowPopup(msg, title)
		}
		d.markSolved(ctx, a.MapID, a.ID)
	}
}

func (d *Dispatcher) handlePuzzleTap(ctx context.Context, a *anchor.Anchor, title string) {
	// Already solved: show the result directly, never re-prompt.
	if d.trk.Solved(a.ID) {
		d.pres.ShowPopup(a.PuzzleSolvedMessage(), title)
		return
	}

	// No password configured: the puzzle is inert. Show the hint only.
	if a.Puzzle == nil || a.Puzzle.Password == "" {
		d.logger.Warn("Puzzle clue has no password configured, showing hint only", "anchor_id", a.ID)
		d.pres.ShowPopup(a.PuzzleHint(), title)
		return
	}

	password := a.Puzzle.Password
	mapID := a.MapID
	anchorID := a.ID
	solvedMsg := a.PuzzleSolvedMessage()

	d.prompt.SetFeedback("")
	d.prompt.Show(a.PuzzleHint(), title, func(entered string) {
		if !answersMatch(entered, password) {
			d.logger.Info("Wrong puzzle password", "anchor_id", anchorID)
			d.prompt.SetFeedback(WrongAnswerFeedback)
			return
		}

		d.prompt.Hide()
		d.pres.ShowPopup(solvedMsg, title)
		d.markSolved(ctx, mapID, anchorID)
	})
}

// markSolved is a no-op for admins; progression gating does not apply to
// them and their taps are authoring actions.
func (d *Dispatcher) markSolved(ctx context.Context, mapID int, anchorID string) {
	if d.adminMode {
		return
	}
	d.trk.MarkSolved(ctx, mapID, anchorID, d.reg.Snapshot())
	d.reg.RefreshVisibility()
}

// answersMatch compares a submitted answer against the stored password,
// trimming whitespace and folding case so "open" matches "OPEN".
func answersMatch(entered, password string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(entered)) == fold.String(strings.TrimSpace(password))
}
