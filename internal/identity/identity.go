// Package identity exposes the signed-in user to the engine. An empty user
// id means "guest": progress is tracked in memory only and nothing persists.
package identity

import (
	"context"
	"log/slog"

	"github.com/huntforge/anchorhunt/internal/store"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
)

// Provider yields the current user id and role. Implementations are injected
// into the engine rather than looked up globally.
type Provider interface {
	// UserID returns the stable id of the signed-in user, or "" for guests
	UserID() string

	// Role returns the user's role (admin, user, guest)
	Role() string
}

// Static is a fixed identity, useful for tests and local tooling.
type Static struct {
	ID       string
	UserRole string
}

var _ Provider = Static{}

func (s Static) UserID() string { return s.ID }

func (s Static) Role() string {
	if s.UserRole != "" {
		return s.UserRole
	}
	if s.ID == "" {
		return RoleGuest
	}
	return RoleUser
}

// FromStore resolves a user's role from the store's user record and returns
// a fixed Provider for the session. A missing record degrades to guest.
func FromStore(ctx context.Context, s store.Store, userID string, logger *slog.Logger) Provider {
	if userID == "" {
		return Static{}
	}

	role, err := s.UserRole(ctx, userID)
	if err != nil {
		logger.Warn("Failed to resolve user role, treating as regular user", "user_id", userID, "error", err)
		role = RoleUser
	}
	return Static{ID: userID, UserRole: role}
}
