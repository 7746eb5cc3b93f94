package anchor

import (
	"fmt"

	"github.com/google/uuid"
)

// ClueType is the tap behavior of an anchor.
type ClueType string

const (
	TypeDefault ClueType = "default"
	TypeMessage ClueType = "message"
	TypePuzzle  ClueType = "puzzle"
)

// Vec3 is a position in map-local space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is a rotation in map-local space.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity returns the no-rotation quaternion.
func Identity() Quat {
	return Quat{W: 1}
}

// Puzzle is the optional password gate attached to a puzzle clue.
type Puzzle struct {
	Hint          string `json:"hint,omitempty"`
	Password      string `json:"password,omitempty"`
	SolvedMessage string `json:"solvedMessage,omitempty"`
}

// Anchor is one spatially placed clue, tied to map-local coordinates.
type Anchor struct {
	ID           string   `json:"id"`                     // Opaque unique id, generated client-side
	MapID        int      `json:"mapId"`                  // Owning map
	ClueIndex    int      `json:"clueIndex"`              // Unlock stage, >= 0
	Visible      bool     `json:"visible"`                // Base visibility flag set by admin
	PrefabKey    string   `json:"prefabKey,omitempty"`    // Which visual to instantiate
	ClueName     string   `json:"clueName,omitempty"`     // Display name
	ClueType     ClueType `json:"clueType,omitempty"`     // default | message | puzzle
	PopupMessage string   `json:"popupMessage,omitempty"` // Message clues only
	Puzzle       *Puzzle  `json:"puzzle,omitempty"`       // Puzzle clues only
	LocalPos     Vec3     `json:"localPos"`
	LocalRot     Quat     `json:"localRot"`
}

// Defaults are applied when a stored record omits optional fields.
type Defaults struct {
	ClueIndex int
	Visible   bool
	PrefabKey string
}

// StandardDefaults matches the values a fresh deployment places anchors with.
func StandardDefaults() Defaults {
	return Defaults{ClueIndex: 1, Visible: true, PrefabKey: "cube"}
}

// New creates an anchor for a freshly placed clue. The id is generated
// client-side so placement never waits on the store.
func New(mapID int, pos Vec3, rot Quat, d Defaults) *Anchor {
	a := &Anchor{
		ID:        uuid.New().String(),
		MapID:     mapID,
		ClueIndex: d.ClueIndex,
		Visible:   d.Visible,
		PrefabKey: d.PrefabKey,
		ClueType:  TypeDefault,
		LocalPos:  pos,
		LocalRot:  rot,
	}
	a.ClueName = fmt.Sprintf("Clue %d", a.ClueIndex)
	return a
}

// DisplayName returns the clue name, falling back to "Clue {index}".
func (a *Anchor) DisplayName() string {
	if a.ClueName != "" {
		return a.ClueName
	}
	return fmt.Sprintf("Clue %d", a.ClueIndex)
}

// EffectiveType resolves the clue type. A non-empty puzzle password forces
// the type to puzzle regardless of the stored tag; a stale "message" or
// "default" tag never hides a configured puzzle.
func (a *Anchor) EffectiveType() ClueType {
	if a.Puzzle != nil && a.Puzzle.Password != "" {
		return TypePuzzle
	}
	switch a.ClueType {
	case TypeMessage, TypePuzzle:
		return a.ClueType
	}
	return TypeDefault
}

// PuzzleHint returns the configured hint, or a fallback literal.
func (a *Anchor) PuzzleHint() string {
	if a.Puzzle != nil && a.Puzzle.Hint != "" {
		return a.Puzzle.Hint
	}
	return "(Puzzle)"
}

// PuzzleSolvedMessage returns the configured solved message, or a fallback.
func (a *Anchor) PuzzleSolvedMessage() string {
	if a.Puzzle != nil && a.Puzzle.SolvedMessage != "" {
		return a.Puzzle.SolvedMessage
	}
	return "Correct!"
}

// Visible decides whether an anchor should currently be shown.
// Admins see every anchor whose base flag is set; regular users additionally
// require the clue stage to be unlocked.
func Visible(a *Anchor, adminMode bool, unlockedIndex int) bool {
	if a == nil {
		return false
	}
	if adminMode {
		return a.Visible
	}
	if !a.Visible {
		return false
	}
	return a.ClueIndex <= unlockedIndex
}
