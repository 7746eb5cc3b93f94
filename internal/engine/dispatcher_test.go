package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntforge/anchorhunt/internal/identity"
	"github.com/huntforge/anchorhunt/internal/presenter"
	"github.com/huntforge/anchorhunt/internal/store"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

type dispatcherFixture struct {
	d      *Dispatcher
	reg    *Registry
	trk    *Tracker
	ms     *store.MockStore
	mp     *presenter.MockPresenter
	prompt *presenter.MockPuzzlePrompt
}

func newDispatcherFixture(t *testing.T, ident identity.Provider) *dispatcherFixture {
	t.Helper()
	logger := testLogger()
	ms := store.NewMockStore()
	mp := presenter.NewMockPresenter()
	prompt := &presenter.MockPuzzlePrompt{}
	reg := NewRegistry(ms, mp, anchor.StandardDefaults(), logger)
	trk := NewTracker(ms, logger)
	d := NewDispatcher(reg, trk, mp, prompt, ident, logger)

	t.Cleanup(reg.Unsubscribe)
	return &dispatcherFixture{d: d, reg: reg, trk: trk, ms: ms, mp: mp, prompt: prompt}
}

func userFixture(t *testing.T) *dispatcherFixture {
	return newDispatcherFixture(t, identity.Static{ID: "u1", UserRole: identity.RoleUser})
}

func adminFixture(t *testing.T) *dispatcherFixture {
	return newDispatcherFixture(t, identity.Static{ID: "boss", UserRole: identity.RoleAdmin})
}

func (f *dispatcherFixture) seed(t *testing.T, mapID int, a *anchor.Anchor) {
	t.Helper()
	if a.LocalRot == (anchor.Quat{}) {
		a.LocalRot = anchor.Identity()
	}
	a.MapID = mapID
	require.NoError(t, f.ms.SetAnchor(context.Background(), mapID, a.ID, a.Record()))
}

// Scenario: a default clue without a popup message solves silently and the
// next stage becomes visible.
func TestDispatcher_SilentSolveAdvancesStage(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	f.seed(t, 1, &anchor.Anchor{ID: "a2", ClueIndex: 2, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	assert.True(t, f.mp.VisibleState("a1"))
	assert.False(t, f.mp.VisibleState("a2"))

	f.d.HandleTap(context.Background(), "a1")

	// No popup, but the solve registered and stage 2 opened
	_, shown := f.mp.LastPopup()
	assert.False(t, shown)
	assert.True(t, f.trk.Solved("a1"))
	assert.Equal(t, 2, f.d.UnlockedIndex())
	assert.True(t, f.mp.VisibleState("a2"))
	assert.Equal(t, 1, f.ms.SolvedCount("u1", 1))
}

func TestDispatcher_MessageCluePopup(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 1, &anchor.Anchor{
		ID: "a1", ClueIndex: 1, Visible: true, ClueName: "The Bench",
		ClueType: anchor.TypeMessage, PopupMessage: "Check under the seat",
	})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "a1")

	popup, shown := f.mp.LastPopup()
	require.True(t, shown)
	assert.Equal(t, "Check under the seat", popup.Message)
	assert.Equal(t, "The Bench", popup.Title)
	assert.True(t, f.trk.Solved("a1"))
}

func TestDispatcher_TapUnknownAnchorIgnored(t *testing.T) {
	f := userFixture(t)
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "ghost")

	_, shown := f.mp.LastPopup()
	assert.False(t, shown)
	assert.Equal(t, 0, f.trk.SolvedCount())
}

// Scenario: the full puzzle round trip, including a wrong attempt.
func TestDispatcher_PuzzleFlow(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 1, &anchor.Anchor{
		ID: "p1", ClueIndex: 1, Visible: true, ClueName: "Clock Tower",
		ClueType: anchor.TypePuzzle,
		Puzzle:   &anchor.Puzzle{Hint: "How many bells?", Password: "Twelve", SolvedMessage: "The tower chimes."},
	})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "p1")
	require.True(t, f.prompt.Open)
	assert.Equal(t, "How many bells?", f.prompt.Hint)
	assert.Equal(t, "Clock Tower", f.prompt.Title)
	// Feedback is reset when the prompt opens
	require.NotEmpty(t, f.prompt.Feedback)
	assert.Equal(t, "", f.prompt.Feedback[0])

	// Wrong answer keeps the prompt open with feedback
	f.prompt.Submit("eleven")
	assert.True(t, f.prompt.Open)
	assert.Equal(t, WrongAnswerFeedback, f.prompt.Feedback[len(f.prompt.Feedback)-1])
	assert.False(t, f.trk.Solved("p1"))

	// Trim and case folding make " TWELVE " match
	f.prompt.Submit("  TWELVE ")
	assert.False(t, f.prompt.Open)
	popup, shown := f.mp.LastPopup()
	require.True(t, shown)
	assert.Equal(t, "The tower chimes.", popup.Message)
	assert.True(t, f.trk.Solved("p1"))
	assert.Equal(t, 1, f.ms.SolvedCount("u1", 1))
}

func TestDispatcher_SolvedPuzzleNeverReprompts(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 1, &anchor.Anchor{
		ID: "p1", ClueIndex: 1, Visible: true, ClueType: anchor.TypePuzzle,
		Puzzle: &anchor.Puzzle{Password: "pw", SolvedMessage: "Done."},
	})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "p1")
	f.prompt.Submit("pw")
	require.True(t, f.trk.Solved("p1"))
	assert.Equal(t, 1, f.prompt.ShowCount)

	// Tapping again goes straight to the solved message
	f.d.HandleTap(context.Background(), "p1")
	assert.Equal(t, 1, f.prompt.ShowCount)
	popup, shown := f.mp.LastPopup()
	require.True(t, shown)
	assert.Equal(t, "Done.", popup.Message)
}

func TestDispatcher_PuzzleWithoutPasswordIsInert(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 1, &anchor.Anchor{
		ID: "p1", ClueIndex: 1, Visible: true, ClueType: anchor.TypePuzzle,
		Puzzle: &anchor.Puzzle{Hint: "someday"},
	})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "p1")

	// Hint shows but nothing solves and no prompt opens
	assert.False(t, f.prompt.Open)
	popup, shown := f.mp.LastPopup()
	require.True(t, shown)
	assert.Equal(t, "someday", popup.Message)
	assert.False(t, f.trk.Solved("p1"))
}

func TestDispatcher_GuestSolvesStayLocal(t *testing.T) {
	f := newDispatcherFixture(t, identity.Static{})
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	f.seed(t, 1, &anchor.Anchor{ID: "a2", ClueIndex: 2, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "a1")

	// Gating works in memory, nothing persists
	assert.True(t, f.trk.Solved("a1"))
	assert.Equal(t, 2, f.d.UnlockedIndex())
	assert.True(t, f.mp.VisibleState("a2"))
	assert.Equal(t, 0, f.ms.SolvedCount("", 1))
}

func TestDispatcher_AdminSeesAllStages(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	f.seed(t, 1, &anchor.Anchor{ID: "a2", ClueIndex: 9, Visible: true})
	f.seed(t, 1, &anchor.Anchor{ID: "a3", ClueIndex: 2, Visible: false})
	require.NoError(t, f.d.Start(context.Background(), 1))

	assert.True(t, f.mp.VisibleState("a1"))
	assert.True(t, f.mp.VisibleState("a2"))
	// The base flag still hides anchors from admins
	assert.False(t, f.mp.VisibleState("a3"))
}

func TestDispatcher_AdminTapsDoNotSolve(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "a1")

	assert.False(t, f.trk.Solved("a1"))
	assert.Equal(t, 0, f.ms.SolvedCount("boss", 1))
}

// Delete mode is single-shot: one successful delete reverts to idle.
func TestDispatcher_DeleteModeSingleShot(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	f.seed(t, 1, &anchor.Anchor{ID: "a2", ClueIndex: 2, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.EnterDeleteMode()
	assert.Equal(t, ModeDelete, f.d.Mode())

	// A miss keeps the mode armed
	f.d.HandleTap(context.Background(), "ghost")
	assert.Equal(t, ModeDelete, f.d.Mode())

	f.d.HandleTap(context.Background(), "a1")
	assert.Equal(t, ModeIdle, f.d.Mode())
	_, ok := f.reg.Get("a1")
	assert.False(t, ok)

	// Mode is off, so the next tap is a normal one
	f.d.HandleTap(context.Background(), "a2")
	_, ok = f.reg.Get("a2")
	assert.True(t, ok)
}

func TestDispatcher_LinkMode(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 4, Visible: true})
	f.seed(t, 1, &anchor.Anchor{ID: "a2", ClueIndex: 2, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.EnterLinkMode()

	// Unknown anchor leaves the selection untouched
	f.d.HandleTap(context.Background(), "ghost")
	assert.Empty(t, f.d.PendingLink())

	f.d.HandleTap(context.Background(), "a1")
	assert.Equal(t, "a1", f.d.PendingLink())

	// Tapping the same anchor again cancels the selection
	f.d.HandleTap(context.Background(), "a1")
	assert.Empty(t, f.d.PendingLink())

	f.d.HandleTap(context.Background(), "a1")
	f.d.HandleTap(context.Background(), "a2")
	assert.Empty(t, f.d.PendingLink())

	a1, _ := f.reg.Get("a1")
	a2, _ := f.reg.Get("a2")
	assert.Equal(t, 2, a1.ClueIndex)
	assert.Equal(t, 2, a2.ClueIndex)
}

func TestDispatcher_ModesAreExclusive(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.EnterLinkMode()
	f.d.HandleTap(context.Background(), "a1")
	require.Equal(t, "a1", f.d.PendingLink())

	// Switching modes clears the half-finished link selection
	f.d.EnterDeleteMode()
	assert.Equal(t, ModeDelete, f.d.Mode())
	assert.Empty(t, f.d.PendingLink())

	f.d.ExitModes()
	assert.Equal(t, ModeIdle, f.d.Mode())
}

func TestDispatcher_ModeEntryRequiresAdmin(t *testing.T) {
	f := userFixture(t)
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.EnterDeleteMode()
	f.d.EnterLinkMode()
	f.d.BeginPopupSelection()

	assert.Equal(t, ModeIdle, f.d.Mode())
}

// Scenario: popup editing target selection rejects puzzle anchors and stays
// in the awaiting state until a valid anchor is tapped.
func TestDispatcher_PopupSelectionRejectsPuzzleAnchor(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{
		ID: "p1", ClueIndex: 1, Visible: true, ClueType: anchor.TypePuzzle,
		Puzzle: &anchor.Puzzle{Password: "pw"},
	})
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	var selected string
	f.d.SetCollaborators(Collaborators{PopupSelected: func(id string) { selected = id }})

	f.d.BeginPopupSelection()
	assert.Equal(t, ModeAwaitPopupAnchor, f.d.Mode())

	// Puzzle anchor refused, still awaiting
	f.d.HandleTap(context.Background(), "p1")
	assert.Equal(t, ModeAwaitPopupAnchor, f.d.Mode())
	assert.Empty(t, f.d.PopupTarget())
	assert.Empty(t, selected)

	f.d.HandleTap(context.Background(), "a1")
	assert.Equal(t, ModeIdle, f.d.Mode())
	assert.Equal(t, "a1", f.d.PopupTarget())
	assert.Equal(t, "a1", selected)

	// The selected target takes the message edit
	require.NoError(t, f.reg.SetPopupMessage(context.Background(), f.d.PopupTarget(), "New hint"))
	a, _ := f.reg.Get("a1")
	assert.Equal(t, "New hint", a.PopupMessage)
}

func TestDispatcher_PuzzleSelection(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	var selected string
	f.d.SetCollaborators(Collaborators{PuzzleSelected: func(id string) { selected = id }})

	f.d.BeginPuzzleSelection()
	f.d.HandleTap(context.Background(), "a1")

	assert.Equal(t, ModeIdle, f.d.Mode())
	assert.Equal(t, "a1", f.d.PuzzleTarget())
	assert.Equal(t, "a1", selected)
}

func TestDispatcher_PrefabAndNameSelection(t *testing.T) {
	f := adminFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.EnterPrefabEditMode()
	f.d.HandleTap(context.Background(), "a1")
	assert.Equal(t, "a1", f.d.PrefabTarget())

	f.d.EnterClueNameEditMode()
	assert.Empty(t, f.d.PrefabTarget())

	// Renaming requires a known anchor
	f.d.HandleTap(context.Background(), "ghost")
	assert.Empty(t, f.d.NameTarget())
	f.d.HandleTap(context.Background(), "a1")
	assert.Equal(t, "a1", f.d.NameTarget())
}

func TestDispatcher_SwitchMapResetsSession(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	f.seed(t, 2, &anchor.Anchor{ID: "b1", ClueIndex: 1, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	f.d.HandleTap(context.Background(), "a1")
	require.True(t, f.trk.Solved("a1"))

	require.NoError(t, f.d.SwitchMap(context.Background(), 2))

	assert.Equal(t, 2, f.reg.ActiveMap())
	assert.False(t, f.trk.Solved("a1"))
	_, ok := f.reg.Get("b1")
	assert.True(t, ok)
	assert.True(t, f.mp.WasDestroyed("a1"))
	assert.False(t, f.mp.PopupVisible())

	// Switching to the active map is a no-op
	require.NoError(t, f.d.SwitchMap(context.Background(), 2))
	assert.Equal(t, 2, f.reg.ActiveMap())
}

func TestDispatcher_SwitchMapLoadsPerMapProgress(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 2, &anchor.Anchor{ID: "b1", ClueIndex: 1, Visible: true})
	f.seed(t, 2, &anchor.Anchor{ID: "b2", ClueIndex: 2, Visible: true})
	require.NoError(t, f.ms.MarkSolved(context.Background(), "u1", 2, "b1"))
	require.NoError(t, f.d.Start(context.Background(), 1))

	require.NoError(t, f.d.SwitchMap(context.Background(), 2))

	assert.True(t, f.trk.Solved("b1"))
	assert.Equal(t, 2, f.d.UnlockedIndex())
	assert.True(t, f.mp.VisibleState("b2"))
}

// Live events land in the mirror and visibility reacts without a manual
// refresh.
func TestDispatcher_LiveEventRefreshesVisibility(t *testing.T) {
	f := userFixture(t)
	f.seed(t, 1, &anchor.Anchor{ID: "a1", ClueIndex: 1, Visible: true})
	require.NoError(t, f.d.Start(context.Background(), 1))

	// An admin elsewhere places a stage-1 anchor
	f.seed(t, 1, &anchor.Anchor{ID: "a2", ClueIndex: 1, Visible: true})

	require.Eventually(t, func() bool {
		return f.mp.IsSpawned("a2") && f.mp.VisibleState("a2")
	}, 2*time.Second, 10*time.Millisecond)
}
