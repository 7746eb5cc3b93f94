package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/huntforge/anchorhunt/internal/seedfile"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// Validates a seed fixture offline, before anything touches the store.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <seed.json>\n", os.Args[0])
		os.Exit(1)
	}

	filename := os.Args[1]
	validator := &SeedValidator{}

	if err := validator.validateFile(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Seed file is valid!")
}

type SeedValidator struct {
	errors []string
}

func (v *SeedValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	if !strings.HasSuffix(filepath.Base(filename), ".json") {
		return fmt.Errorf("seed file must have .json extension: %s", filepath.Base(filename))
	}

	fixture, err := seedfile.Load(filename)
	if err != nil {
		return err
	}

	v.errors = nil
	v.validateFixture(fixture)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *SeedValidator) validateFixture(f *seedfile.Fixture) {
	mapIDs := make(map[int]struct{}, len(f.Maps))
	for i, m := range f.Maps {
		if m.MapID <= 0 {
			v.addError(fmt.Sprintf("map %d has non-positive id %d", i, m.MapID))
			continue
		}
		if _, dup := mapIDs[m.MapID]; dup {
			v.addError(fmt.Sprintf("duplicate map id %d", m.MapID))
		}
		mapIDs[m.MapID] = struct{}{}

		if m.Latitude < -90 || m.Latitude > 90 {
			v.addError(fmt.Sprintf("map %d latitude %v out of range", m.MapID, m.Latitude))
		}
		if m.Longitude < -180 || m.Longitude > 180 {
			v.addError(fmt.Sprintf("map %d longitude %v out of range", m.MapID, m.Longitude))
		}
	}

	anchorIDs := make(map[string]struct{}, len(f.Anchors))
	for i, rec := range f.Anchors {
		a, err := anchor.ParseRecord(rec, -1, anchor.StandardDefaults())
		if err != nil {
			v.addError(fmt.Sprintf("anchor record %d: %v", i, err))
			continue
		}
		v.validateAnchor(a, mapIDs)

		if _, dup := anchorIDs[a.ID]; dup {
			v.addError(fmt.Sprintf("duplicate anchor id %s", a.ID))
		}
		anchorIDs[a.ID] = struct{}{}
	}

	for i, u := range f.Users {
		if u.ID == "" {
			v.addError(fmt.Sprintf("user %d has no id", i))
		}
		switch u.Role {
		case "admin", "user", "guest":
		default:
			v.addError(fmt.Sprintf("user %s has unknown role %q", u.ID, u.Role))
		}
	}
}

func (v *SeedValidator) validateAnchor(a *anchor.Anchor, mapIDs map[int]struct{}) {
	if a.MapID < 0 {
		v.addError(fmt.Sprintf("anchor %s has no mapId", a.ID))
	} else if _, ok := mapIDs[a.MapID]; !ok {
		v.addError(fmt.Sprintf("anchor %s references unseeded map %d", a.ID, a.MapID))
	}

	if a.ClueIndex < 0 {
		v.addError(fmt.Sprintf("anchor %s has negative clue index %d", a.ID, a.ClueIndex))
	}

	switch a.EffectiveType() {
	case anchor.TypePuzzle:
		if a.Puzzle == nil || a.Puzzle.Password == "" {
			v.addError(fmt.Sprintf("puzzle anchor %s has no password; it can never be solved", a.ID))
		}
	case anchor.TypeMessage:
		if a.PopupMessage == "" {
			v.addError(fmt.Sprintf("message anchor %s has no popup message", a.ID))
		}
	}
}

func (v *SeedValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}
