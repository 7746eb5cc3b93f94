// Package seedfile reads the JSON fixtures used to populate a fresh store:
// map records, anchor records and optional user roles.
package seedfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/huntforge/anchorhunt/pkg/worldmap"
)

// User is one seeded user record.
type User struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Fixture is the full contents of one seed file. Anchor records stay raw so
// the seeding path exercises the same parsing the engine uses at runtime.
type Fixture struct {
	Maps    []worldmap.Info  `json:"maps"`
	Anchors []map[string]any `json:"anchors"`
	Users   []User           `json:"users,omitempty"`
}

// Load reads and strictly decodes a seed file. Unknown fields are rejected
// so typos in fixtures fail loudly instead of seeding half a record.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var f Fixture
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}
	return &f, nil
}
