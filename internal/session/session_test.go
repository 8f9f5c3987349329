package session

import (
	"context"
	"errors"
	"testing"

	"tiffin/internal/core"
)

func TestRequireApproved(t *testing.T) {
	tests := []struct {
		name string
		s    Session
		want error
	}{
		{"anonymous", Session{}, ErrNoSession},
		{"pending user", Session{UserID: "u", Role: core.RoleUser}, ErrNotApproved},
		{"approved user", Session{UserID: "u", Role: core.RoleUser, Approved: true}, nil},
		{"unapproved admin", Session{UserID: "a", Role: core.RoleAdmin}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.RequireApproved(); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := (Session{UserID: "u", Role: core.RoleUser, Approved: true}).RequireAdmin(); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user: %v", err)
	}
	if err := (Session{UserID: "a", Role: core.RoleAdmin}).RequireAdmin(); err != nil {
		t.Fatalf("admin: %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("empty context should carry no session")
	}
	p := core.UserProfile{UID: "u1", Role: core.RoleUser, IsApproved: true}
	ctx := WithSession(context.Background(), FromProfile(p))
	s, ok := FromContext(ctx)
	if !ok || s.UserID != "u1" || !s.Approved {
		t.Fatalf("got %+v %v", s, ok)
	}
}
