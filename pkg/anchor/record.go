package anchor

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRecord builds an Anchor from a raw store record. Missing optional
// fields fall back to the supplied defaults, and numeric fields are coerced
// from whatever representation the store delivered (int, float, numeric
// string). A record without an id is rejected; everything else parses.
func ParseRecord(rec map[string]any, fallbackMapID int, d Defaults) (*Anchor, error) {
	id := asString(rec["id"])
	if id == "" {
		return nil, fmt.Errorf("anchor record has no id")
	}

	a := &Anchor{
		ID:        id,
		MapID:     asInt(rec["mapId"], fallbackMapID),
		ClueIndex: asInt(rec["clueIndex"], d.ClueIndex),
		Visible:   asBool(rec["visible"], d.Visible),
		PrefabKey: d.PrefabKey,
	}

	if s := asString(rec["prefabKey"]); s != "" {
		a.PrefabKey = s
	}
	if s := asString(rec["clueName"]); s != "" {
		a.ClueName = s
	} else {
		a.ClueName = fmt.Sprintf("Clue %d", a.ClueIndex)
	}
	a.PopupMessage = asString(rec["popupMessage"])

	clueType := TypeDefault
	if s := asString(rec["clueType"]); s != "" {
		clueType = ClueType(strings.ToLower(s))
	} else if a.PopupMessage != "" {
		// Legacy records predate the clueType field; a stored popup
		// message marks them as message clues.
		clueType = TypeMessage
	}

	if p, ok := rec["puzzle"].(map[string]any); ok {
		a.Puzzle = &Puzzle{
			Hint:          asString(p["hint"]),
			Password:      asString(p["password"]),
			SolvedMessage: asString(p["solvedMessage"]),
		}
		// Password presence wins over whatever tag was stored.
		if a.Puzzle.Password != "" {
			clueType = TypePuzzle
		}
	}
	a.ClueType = clueType

	if lp, ok := rec["localPos"].(map[string]any); ok {
		a.LocalPos = Vec3{
			X: asFloat(lp["x"], 0),
			Y: asFloat(lp["y"], 0),
			Z: asFloat(lp["z"], 0),
		}
	}
	if lr, ok := rec["localRot"].(map[string]any); ok {
		a.LocalRot = Quat{
			X: asFloat(lr["x"], 0),
			Y: asFloat(lr["y"], 0),
			Z: asFloat(lr["z"], 0),
			W: asFloat(lr["w"], 1),
		}
	} else {
		a.LocalRot = Identity()
	}

	return a, nil
}

// Record converts the anchor back into the raw document shape written to the
// store. The inverse of ParseRecord for well-formed anchors.
func (a *Anchor) Record() map[string]any {
	rec := map[string]any{
		"id":        a.ID,
		"mapId":     a.MapID,
		"clueIndex": a.ClueIndex,
		"visible":   a.Visible,
		"prefabKey": a.PrefabKey,
		"clueName":  a.ClueName,
		"clueType":  string(a.ClueType),
		"localPos":  map[string]any{"x": a.LocalPos.X, "y": a.LocalPos.Y, "z": a.LocalPos.Z},
		"localRot":  map[string]any{"x": a.LocalRot.X, "y": a.LocalRot.Y, "z": a.LocalRot.Z, "w": a.LocalRot.W},
	}
	if a.PopupMessage != "" {
		rec["popupMessage"] = a.PopupMessage
	}
	if a.Puzzle != nil {
		rec["puzzle"] = map[string]any{
			"hint":          a.Puzzle.Hint,
			"password":      a.Puzzle.Password,
			"solvedMessage": a.Puzzle.SolvedMessage,
		}
	}
	return rec
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case nil:
		return fallback
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(f)
		}
	}
	return fallback
}

func asFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case nil:
		return fallback
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return fallback
}

func asBool(v any, fallback bool) bool {
	switch b := v.(type) {
	case nil:
		return fallback
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
		if b == "1" {
			return true
		}
		if b == "0" {
			return false
		}
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return fallback
}
