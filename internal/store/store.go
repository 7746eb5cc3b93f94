// Package store adapts a tree-structured document store for the anchor
// engine. Anchor records live under anchors/{mapId}/{anchorId}, per-user
// progress under users/{userId}/progress/{mapId}/solved/{anchorId}, and map
// metadata under maps/{mapId}.
package store

import (
	"context"

	"github.com/huntforge/anchorhunt/pkg/worldmap"
)

// EventKind distinguishes live child events on an anchor subtree.
type EventKind string

const (
	EventChildAdded   EventKind = "child_added"
	EventChildChanged EventKind = "child_changed"
)

// AnchorEvent is a live notification for one anchor. Every event carries the
// full child record, not a diff.
type AnchorEvent struct {
	Kind     EventKind      `json:"kind"`
	MapID    int            `json:"mapId"`
	AnchorID string         `json:"anchorId"`
	Record   map[string]any `json:"record"`
}

// Store is the remote state store the engine reads from and writes to.
// All operations are last-write-wins; there are no transactions.
type Store interface {
	// Ping tests the store connection
	Ping(ctx context.Context) error

	// WaitReady blocks until the store answers, or the context expires
	WaitReady(ctx context.Context) error

	// Close closes the store connection
	Close() error

	// ListAnchors fetches every anchor record under a map, keyed by anchor id
	ListAnchors(ctx context.Context, mapID int) (map[string]map[string]any, error)

	// GetAnchor fetches a single anchor record.
	// Returns nil if the record doesn't exist
	GetAnchor(ctx context.Context, mapID int, anchorID string) (map[string]any, error)

	// SetAnchor writes a whole anchor record
	SetAnchor(ctx context.Context, mapID int, anchorID string, rec map[string]any) error

	// UpdateAnchor applies a batch of sibling field updates to one record.
	// Keys may be slash-separated paths ("puzzle/hint"); a nil value removes
	// the field
	UpdateAnchor(ctx context.Context, mapID int, anchorID string, updates map[string]any) error

	// RemoveAnchor deletes an anchor record and its index entry
	RemoveAnchor(ctx context.Context, mapID int, anchorID string) error

	// Subscribe attaches child-added and child-changed listeners for a map.
	// The returned cancel func detaches them; calling it more than once is
	// a no-op
	Subscribe(ctx context.Context, mapID int) (<-chan AnchorEvent, func(), error)

	// SolvedAnchors returns the anchor ids the user has solved in a map
	SolvedAnchors(ctx context.Context, userID string, mapID int) ([]string, error)

	// MarkSolved writes the single boolean-true solved leaf for an anchor
	MarkSolved(ctx context.Context, userID string, mapID int, anchorID string) error

	// ListMaps returns all known map records
	ListMaps(ctx context.Context) ([]worldmap.Info, error)

	// UserRole returns the stored role for a user, or "guest" when the
	// user record doesn't exist
	UserRole(ctx context.Context, userID string) (string, error)
}
