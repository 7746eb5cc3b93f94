package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntforge/anchorhunt/internal/presenter"
	"github.com/huntforge/anchorhunt/internal/store"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRegistry(t *testing.T) (*Registry, *store.MockStore, *presenter.MockPresenter) {
	t.Helper()
	ms := store.NewMockStore()
	mp := presenter.NewMockPresenter()
	reg := NewRegistry(ms, mp, anchor.StandardDefaults(), testLogger())
	return reg, ms, mp
}

// fixedGate is a static visibility gate for registry tests.
type fixedGate struct {
	admin    bool
	unlocked int
}

func (g fixedGate) AdminMode() bool    { return g.admin }
func (g fixedGate) UnlockedIndex() int { return g.unlocked }

func seedAnchor(t *testing.T, ms *store.MockStore, mapID int, id string, clueIndex int) {
	t.Helper()
	a := &anchor.Anchor{
		ID: id, MapID: mapID, ClueIndex: clueIndex, Visible: true,
		PrefabKey: "cube", ClueName: "Clue", LocalRot: anchor.Identity(),
	}
	require.NoError(t, ms.SetAnchor(context.Background(), mapID, id, a.Record()))
}

func TestRegistry_SubscribeBulkLoad(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	seedAnchor(t, ms, 1, "a2", 2)
	seedAnchor(t, ms, 2, "b1", 1) // other map, must not load

	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 1, reg.ActiveMap())
	assert.True(t, mp.IsSpawned("a1"))
	assert.True(t, mp.IsSpawned("a2"))
	assert.False(t, mp.IsSpawned("b1"))
}

func TestRegistry_SubscribeSameMapNoOp(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)

	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()
	first := mp.Spawns("a1")

	// Re-subscribing to the active map must not reload or respawn
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	assert.Equal(t, first, mp.Spawns("a1"))
}

func TestRegistry_LiveEventsUpsert(t *testing.T) {
	reg, ms, _ := newTestRegistry(t)

	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()
	assert.Equal(t, 0, reg.Len())

	// A write after subscribe arrives as a live child event
	seedAnchor(t, ms, 1, "a1", 1)
	require.Eventually(t, func() bool {
		_, ok := reg.Get("a1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// The same record delivered again converges on one entry
	seedAnchor(t, ms, 1, "a1", 3)
	require.Eventually(t, func() bool {
		a, ok := reg.Get("a1")
		return ok && a.ClueIndex == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_DropsRecordsForInactiveMap(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	// A bulk-load completion can land after a map switch; the stale map id
	// keeps it out of the mirror.
	reg.applyRecord(map[string]any{"id": "stale", "clueIndex": 1}, 99)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_VisibilityGate(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	seedAnchor(t, ms, 1, "a2", 2)

	reg.SetGate(fixedGate{admin: false, unlocked: 1})
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	assert.True(t, mp.VisibleState("a1"))
	assert.False(t, mp.VisibleState("a2"))

	// Unlocking the next stage flips a2 on refresh
	reg.SetGate(fixedGate{admin: false, unlocked: 2})
	reg.RefreshVisibility()
	assert.True(t, mp.VisibleState("a2"))
}

func TestRegistry_Delete(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	// Unknown id is a reported no-op
	assert.False(t, reg.Delete(context.Background(), "ghost"))
	assert.Equal(t, 1, reg.Len())

	assert.True(t, reg.Delete(context.Background(), "a1"))
	assert.Equal(t, 0, reg.Len())
	assert.True(t, mp.WasDestroyed("a1"))

	rec, err := ms.GetAnchor(context.Background(), 1, "a1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRegistry_Reset(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	seedAnchor(t, ms, 2, "b1", 1)

	require.NoError(t, reg.Subscribe(context.Background(), 1))
	require.NoError(t, reg.Reset(context.Background(), 2))
	defer reg.Unsubscribe()

	assert.Equal(t, 2, reg.ActiveMap())
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("b1")
	assert.True(t, ok)
	assert.True(t, mp.WasDestroyed("a1"))
}

func TestRegistry_Place(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	a, err := reg.Place(context.Background(), anchor.Vec3{X: 1}, anchor.Identity())
	require.NoError(t, err)
	require.NotNil(t, a)

	// Visual appears immediately, before any store round-trip
	assert.True(t, mp.IsSpawned(a.ID))

	rec, err := ms.GetAnchor(context.Background(), 1, a.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, a.ID, rec["id"])
}

func TestRegistry_PlaceWithoutSubscription(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.Place(context.Background(), anchor.Vec3{}, anchor.Identity())
	assert.Error(t, err)
}

func TestRegistry_LinkAnchors(t *testing.T) {
	reg, ms, _ := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 5)
	seedAnchor(t, ms, 1, "a2", 2)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	reg.LinkAnchors(context.Background(), "a1", "a2")

	a1, _ := reg.Get("a1")
	a2, _ := reg.Get("a2")
	assert.Equal(t, 2, a1.ClueIndex)
	assert.Equal(t, 2, a2.ClueIndex)

	rec, err := ms.GetAnchor(context.Background(), 1, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec["clueIndex"])
}

func TestRegistry_SetPopupMessage(t *testing.T) {
	reg, ms, _ := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	require.NoError(t, reg.SetPopupMessage(context.Background(), "a1", "Look behind the statue"))
	a, _ := reg.Get("a1")
	assert.Equal(t, anchor.TypeMessage, a.EffectiveType())
	assert.Equal(t, "Look behind the statue", a.PopupMessage)

	// Clearing resets the type and removes the stored field
	require.NoError(t, reg.SetPopupMessage(context.Background(), "a1", "  "))
	a, _ = reg.Get("a1")
	assert.Equal(t, anchor.TypeDefault, a.EffectiveType())
	assert.Empty(t, a.PopupMessage)

	rec, err := ms.GetAnchor(context.Background(), 1, "a1")
	require.NoError(t, err)
	_, present := rec["popupMessage"]
	assert.False(t, present)

	// Unknown anchor is an error
	assert.Error(t, reg.SetPopupMessage(context.Background(), "ghost", "hi"))
}

func TestRegistry_SetPopupMessageRejectsPuzzle(t *testing.T) {
	reg, ms, _ := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	require.NoError(t, reg.SetPuzzle(context.Background(), "a1", "hint", "pw", "done"))
	assert.Error(t, reg.SetPopupMessage(context.Background(), "a1", "plain message"))

	a, _ := reg.Get("a1")
	assert.Equal(t, anchor.TypePuzzle, a.EffectiveType())
}

func TestRegistry_SetPuzzle(t *testing.T) {
	reg, ms, _ := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	require.NoError(t, reg.SetPuzzle(context.Background(), "a1", "count the steps", "42", "Exactly."))

	a, _ := reg.Get("a1")
	require.NotNil(t, a.Puzzle)
	assert.Equal(t, anchor.TypePuzzle, a.EffectiveType())
	assert.Equal(t, "42", a.Puzzle.Password)

	rec, err := ms.GetAnchor(context.Background(), 1, "a1")
	require.NoError(t, err)
	puzzle, ok := rec["puzzle"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "count the steps", puzzle["hint"])
}

func TestRegistry_ChangePrefab(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	reg.ChangePrefab(context.Background(), "a1", "lantern")

	a, _ := reg.Get("a1")
	assert.Equal(t, "lantern", a.PrefabKey)
	// Old visual destroyed and a new one spawned under the new prefab
	assert.True(t, mp.WasDestroyed("a1"))
	call, ok := mp.LastSpawn("a1")
	require.True(t, ok)
	assert.Equal(t, "lantern", call.PrefabKey)
}

func TestRegistry_MoveLocalAndSavePoses(t *testing.T) {
	reg, ms, mp := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	reg.MoveLocal("a1", anchor.Vec3{X: 2, Y: 1, Z: -3}, anchor.Identity())

	// Visual follows immediately, store untouched until SavePoses
	call, ok := mp.LastSpawn("a1")
	require.True(t, ok)
	assert.Equal(t, 2.0, call.Pos.X)
	rec, err := ms.GetAnchor(context.Background(), 1, "a1")
	require.NoError(t, err)
	stored, _ := rec["localPos"].(map[string]any)
	assert.NotEqual(t, 2.0, stored["x"])

	reg.SavePoses(context.Background())
	rec, err = ms.GetAnchor(context.Background(), 1, "a1")
	require.NoError(t, err)
	stored = rec["localPos"].(map[string]any)
	assert.Equal(t, 2.0, stored["x"])
	assert.Equal(t, -3.0, stored["z"])
}

func TestRegistry_MoveLocalUnknownAnchorIgnored(t *testing.T) {
	reg, _, mp := newTestRegistry(t)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	reg.MoveLocal("ghost", anchor.Vec3{X: 1}, anchor.Identity())
	assert.False(t, mp.IsSpawned("ghost"))
}

func TestRegistry_SetClueName(t *testing.T) {
	reg, ms, _ := newTestRegistry(t)
	seedAnchor(t, ms, 1, "a1", 1)
	require.NoError(t, reg.Subscribe(context.Background(), 1))
	defer reg.Unsubscribe()

	reg.SetClueName(context.Background(), "a1", "The Fountain")
	assert.Equal(t, "The Fountain", reg.ClueName("a1"))

	rec, err := ms.GetAnchor(context.Background(), 1, "a1")
	require.NoError(t, err)
	assert.Equal(t, "The Fountain", rec["clueName"])

	// Unknown anchor is a no-op
	reg.SetClueName(context.Background(), "ghost", "x")
	assert.Empty(t, reg.ClueName("ghost"))
}
