package anchor

import (
	"testing"
)

func TestParseRecord_RequiresID(t *testing.T) {
	_, err := ParseRecord(map[string]any{"clueIndex": 2}, 1, StandardDefaults())
	if err == nil {
		t.Fatal("Expected error for record without id")
	}
}

func TestParseRecord_Defaults(t *testing.T) {
	d := StandardDefaults()
	a, err := ParseRecord(map[string]any{"id": "a1"}, 3, d)
	if err != nil {
		t.Fatalf("Failed to parse minimal record: %v", err)
	}

	if a.MapID != 3 {
		t.Errorf("Expected fallback map 3, got %d", a.MapID)
	}
	if a.ClueIndex != d.ClueIndex {
		t.Errorf("Expected default clue index %d, got %d", d.ClueIndex, a.ClueIndex)
	}
	if a.Visible != d.Visible {
		t.Errorf("Expected default visible %v, got %v", d.Visible, a.Visible)
	}
	if a.PrefabKey != d.PrefabKey {
		t.Errorf("Expected default prefab %q, got %q", d.PrefabKey, a.PrefabKey)
	}
	if a.ClueName != "Clue 1" {
		t.Errorf("Expected generated clue name, got %q", a.ClueName)
	}
	if a.LocalRot != Identity() {
		t.Errorf("Expected identity rotation, got %+v", a.LocalRot)
	}
	if a.EffectiveType() != TypeDefault {
		t.Errorf("Expected default type, got %s", a.EffectiveType())
	}
}

func TestParseRecord_Coercion(t *testing.T) {
	// JSON decoding delivers numbers as float64 and some legacy writers
	// stored numerics and booleans as strings.
	rec := map[string]any{
		"id":        "a2",
		"mapId":     float64(5),
		"clueIndex": "3",
		"visible":   "false",
		"localPos":  map[string]any{"x": float64(1.5), "y": "2.5", "z": 3},
	}
	a, err := ParseRecord(rec, 1, StandardDefaults())
	if err != nil {
		t.Fatalf("Failed to parse record: %v", err)
	}

	if a.MapID != 5 {
		t.Errorf("Expected map 5, got %d", a.MapID)
	}
	if a.ClueIndex != 3 {
		t.Errorf("Expected clue index 3, got %d", a.ClueIndex)
	}
	if a.Visible {
		t.Error("Expected visible false")
	}
	if a.LocalPos != (Vec3{X: 1.5, Y: 2.5, Z: 3}) {
		t.Errorf("Unexpected position %+v", a.LocalPos)
	}
}

func TestParseRecord_LegacyPopupMessage(t *testing.T) {
	// Records predating the clueType field carry only a popupMessage.
	rec := map[string]any{"id": "a3", "popupMessage": "You found it!"}
	a, err := ParseRecord(rec, 1, StandardDefaults())
	if err != nil {
		t.Fatalf("Failed to parse record: %v", err)
	}

	if a.EffectiveType() != TypeMessage {
		t.Errorf("Expected message type, got %s", a.EffectiveType())
	}
	if a.PopupMessage != "You found it!" {
		t.Errorf("Unexpected popup message %q", a.PopupMessage)
	}
}

func TestParseRecord_PasswordForcesPuzzle(t *testing.T) {
	rec := map[string]any{
		"id":       "a4",
		"clueType": "message",
		"puzzle": map[string]any{
			"hint":          "What walks on four legs?",
			"password":      "man",
			"solvedMessage": "The sphinx nods.",
		},
	}
	a, err := ParseRecord(rec, 1, StandardDefaults())
	if err != nil {
		t.Fatalf("Failed to parse record: %v", err)
	}

	if a.EffectiveType() != TypePuzzle {
		t.Errorf("Expected puzzle type, got %s", a.EffectiveType())
	}
	if a.Puzzle == nil || a.Puzzle.Password != "man" {
		t.Fatalf("Expected puzzle payload, got %+v", a.Puzzle)
	}
	if a.PuzzleHint() != "What walks on four legs?" {
		t.Errorf("Unexpected hint %q", a.PuzzleHint())
	}
}

func TestParseRecord_CaseInsensitiveClueType(t *testing.T) {
	rec := map[string]any{"id": "a5", "clueType": "Puzzle"}
	a, err := ParseRecord(rec, 1, StandardDefaults())
	if err != nil {
		t.Fatalf("Failed to parse record: %v", err)
	}
	if a.EffectiveType() != TypePuzzle {
		t.Errorf("Expected puzzle type, got %s", a.EffectiveType())
	}
}

func TestRecordRoundTrip(t *testing.T) {
	orig := &Anchor{
		ID:        "a6",
		MapID:     2,
		ClueIndex: 4,
		Visible:   true,
		PrefabKey: "chest",
		ClueName:  "Hidden Chest",
		ClueType:  TypePuzzle,
		Puzzle:    &Puzzle{Hint: "hint", Password: "pw", SolvedMessage: "done"},
		LocalPos:  Vec3{X: 1, Y: 2, Z: 3},
		LocalRot:  Quat{X: 0, Y: 0.7, Z: 0, W: 0.7},
	}

	parsed, err := ParseRecord(orig.Record(), 99, StandardDefaults())
	if err != nil {
		t.Fatalf("Failed to parse own record: %v", err)
	}

	if parsed.ID != orig.ID || parsed.MapID != orig.MapID || parsed.ClueIndex != orig.ClueIndex {
		t.Errorf("Identity fields changed: %+v", parsed)
	}
	if parsed.PrefabKey != orig.PrefabKey || parsed.ClueName != orig.ClueName {
		t.Errorf("Display fields changed: %+v", parsed)
	}
	if parsed.EffectiveType() != TypePuzzle {
		t.Errorf("Expected puzzle type, got %s", parsed.EffectiveType())
	}
	if parsed.Puzzle == nil || *parsed.Puzzle != *orig.Puzzle {
		t.Errorf("Puzzle changed: %+v", parsed.Puzzle)
	}
	if parsed.LocalPos != orig.LocalPos || parsed.LocalRot != orig.LocalRot {
		t.Errorf("Pose changed: pos=%+v rot=%+v", parsed.LocalPos, parsed.LocalRot)
	}
}
