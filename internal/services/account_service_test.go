package services

import (
	"context"
	"errors"
	"testing"

	"tiffin/internal/core"
	"tiffin/internal/repository"
	"tiffin/internal/repository/memory"
	"tiffin/internal/session"
)

var admin = session.Session{UserID: "root", Role: core.RoleAdmin, Approved: true}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewAccountService(store, store)

	p, err := svc.Register(ctx, "u1", " a@example.com ", "Asha")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Role != core.RoleUser || p.IsApproved || p.Email != "a@example.com" {
		t.Fatalf("profile = %+v", p)
	}
	if p.Settings != core.DefaultSettings || p.Pricing != core.DefaultPriceTable {
		t.Fatalf("defaults not applied: %+v", p)
	}

	alerts, _ := store.ListAlerts(ctx)
	if len(alerts) != 1 || alerts[0].Type != AlertNewSignup || alerts[0].UserID != "u1" || alerts[0].ID == "" {
		t.Fatalf("alerts = %+v", alerts)
	}

	if _, err := svc.Register(ctx, "u1", "a@example.com", ""); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := svc.Register(ctx, "", "x@example.com", ""); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("empty uid: %v", err)
	}

	sess, err := svc.Session(ctx, "u1")
	if err != nil || sess.Approved || sess.RequireApproved() == nil {
		t.Fatalf("session = %+v %v", sess, err)
	}
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewAccountService(store, store)
	if _, err := svc.Register(ctx, "u1", "a@example.com", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	user := session.Session{UserID: "u1", Role: core.RoleUser, Approved: true}
	if _, err := svc.ListUsers(ctx, user); !errors.Is(err, session.ErrForbidden) {
		t.Fatalf("user listing: %v", err)
	}
	if err := svc.SetApproval(ctx, user, "u1", true); !errors.Is(err, session.ErrForbidden) {
		t.Fatalf("self approval: %v", err)
	}

	if err := svc.SetApproval(ctx, admin, "u1", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := svc.SetRole(ctx, admin, "u1", core.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := svc.SetRole(ctx, admin, "u1", core.Role("owner")); !errors.Is(err, core.ErrInvalidRole) {
		t.Fatalf("bad role: %v", err)
	}
	if err := svc.SetApproval(ctx, admin, "ghost", true); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing user: %v", err)
	}

	users, err := svc.ListUsers(ctx, admin)
	if err != nil || len(users) != 1 || !users[0].IsApproved || users[0].Role != core.RoleAdmin {
		t.Fatalf("users = %+v %v", users, err)
	}

	alerts, _ := svc.Alerts(ctx, admin)
	if err := svc.MarkAlertRead(ctx, admin, alerts[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	alerts, _ = svc.Alerts(ctx, admin)
	if !alerts[0].Read {
		t.Fatalf("alert not read: %+v", alerts[0])
	}
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewAccountService(store, store)
	_, _ = svc.Register(ctx, "u1", "a@example.com", "")
	pending := session.Session{UserID: "u1", Role: core.RoleUser}

	got, err := svc.UpdateSettings(ctx, pending, core.UserSettings{UITheme: "dark", ReminderTime: "20:30"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DefaultCategory != core.DefaultCategory {
		t.Fatalf("default category = %q", got.DefaultCategory)
	}
	p, _ := svc.Profile(ctx, "u1")
	if p.Settings.UITheme != "dark" || p.Settings.ReminderTime != "20:30" {
		t.Fatalf("settings = %+v", p.Settings)
	}

	for _, bad := range []core.UserSettings{{UITheme: "neon"}, {ReminderTime: "25:99"}} {
		if _, err := svc.UpdateSettings(ctx, pending, bad); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("%+v: %v", bad, err)
		}
	}
}
