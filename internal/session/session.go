// Package session carries the authenticated caller through the services.
package session

import (
	"context"
	"errors"

	"tiffin/internal/core"
)

var (
	ErrNoSession   = errors.New("no session")
	ErrNotApproved = errors.New("account pending approval")
	ErrForbidden   = errors.New("admin role required")
)

// Session identifies the caller of a service operation.
type Session struct {
	UserID   string
	Role     core.Role
	Approved bool
}

// FromProfile builds the session for a stored profile.
func FromProfile(p core.UserProfile) Session {
	return Session{UserID: p.UID, Role: p.Role, Approved: p.IsApproved}
}

func (s Session) IsAdmin() bool {
	return s.Role == core.RoleAdmin
}

// RequireApproved fails unless the caller may use the logger. Admins are
// always let through.
func (s Session) RequireApproved() error {
	if s.UserID == "" {
		return ErrNoSession
	}
	if !s.Approved && !s.IsAdmin() {
		return ErrNotApproved
	}
	return nil
}

func (s Session) RequireAdmin() error {
	if s.UserID == "" {
		return ErrNoSession
	}
	if !s.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
