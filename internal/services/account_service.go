package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/repository"
	"tiffin/internal/session"
)

// AlertNewSignup is raised for admins whenever an account is registered.
const AlertNewSignup = "new_signup"

var (
	ErrInvalidAccount  = errors.New("uid and email are required")
	ErrInvalidSettings = errors.New("invalid settings")
)

var themes = map[string]bool{"light": true, "dark": true, "system": true}

// AccountService owns profiles, approval and roles.
type AccountService struct {
	profiles repository.ProfileStore
	alerts   repository.AlertStore
	now      func() time.Time
	newID    func() string
}

func NewAccountService(profiles repository.ProfileStore, alerts repository.AlertStore) *AccountService {
	return &AccountService{
		profiles: profiles,
		alerts:   alerts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Register creates a pending user account with default settings and prices
// and raises a signup alert for the admins.
func (s *AccountService) Register(ctx context.Context, uid, email, displayName string) (core.UserProfile, error) {
	uid, email = strings.TrimSpace(uid), strings.TrimSpace(email)
	if uid == "" || email == "" {
		return core.UserProfile{}, ErrInvalidAccount
	}

	p := core.UserProfile{
		UID:         uid,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Role:        core.RoleUser,
		IsApproved:  false,
		CreatedAt:   s.now(),
		Settings:    core.DefaultSettings,
		Pricing:     core.DefaultPriceTable,
	}
	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		return core.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}

	alert := core.Alert{
		ID:        s.newID(),
		Type:      AlertNewSignup,
		UserID:    p.UID,
		Email:     p.Email,
		Name:      p.DisplayName,
		CreatedAt: p.CreatedAt,
	}
	if err := s.alerts.AddAlert(ctx, alert); err != nil {
		slog.ErrorContext(ctx, "Failed to record signup alert",
			applog.FieldComponent, applog.ComponentAccounts,
			applog.FieldUserID, uid,
			applog.FieldError, err)
	}

	slog.InfoContext(ctx, "Account registered",
		applog.FieldComponent, applog.ComponentAccounts,
		applog.FieldUserID, uid)
	return p, nil
}

func (s *AccountService) Profile(ctx context.Context, uid string) (core.UserProfile, error) {
	return s.profiles.GetProfile(ctx, uid)
}

// Session resolves the session for uid from its stored profile.
func (s *AccountService) Session(ctx context.Context, uid string) (session.Session, error) {
	p, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		return session.Session{}, err
	}
	return session.FromProfile(p), nil
}

// UpdateSettings stores the caller's preferences. Pending users may do this.
func (s *AccountService) UpdateSettings(ctx context.Context, sess session.Session, settings core.UserSettings) (core.UserSettings, error) {
	if sess.UserID == "" {
		return core.UserSettings{}, session.ErrNoSession
	}
	if settings.UITheme == "" {
		settings.UITheme = core.DefaultSettings.UITheme
	}
	if !themes[settings.UITheme] {
		return core.UserSettings{}, fmt.Errorf("%w: theme %q", ErrInvalidSettings, settings.UITheme)
	}
	if settings.ReminderTime != "" {
		if _, err := time.Parse("15:04", settings.ReminderTime); err != nil {
			return core.UserSettings{}, fmt.Errorf("%w: reminder time %q", ErrInvalidSettings, settings.ReminderTime)
		}
	}
	if strings.TrimSpace(settings.DefaultCategory) == "" {
		settings.DefaultCategory = core.DefaultCategory
	}
	if err := s.profiles.UpdateSettings(ctx, sess.UserID, settings); err != nil {
		return core.UserSettings{}, fmt.Errorf("update settings: %w", err)
	}
	return settings, nil
}

// ListUsers returns every profile, newest first.
func (s *AccountService) ListUsers(ctx context.Context, sess session.Session) ([]core.UserProfile, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.profiles.ListProfiles(ctx)
}

func (s *AccountService) SetApproval(ctx context.Context, sess session.Session, uid string, approved bool) error {
	if err := sess.RequireAdmin(); err != nil {
		return err
	}
	if err := s.profiles.SetApproval(ctx, uid, approved); err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	slog.InfoContext(ctx, "Account approval changed",
		applog.FieldComponent, applog.ComponentAccounts,
		applog.FieldUserID, uid,
		"approved", approved,
		"by", sess.UserID)
	return nil
}

func (s *AccountService) SetRole(ctx context.Context, sess session.Session, uid string, role core.Role) error {
	if err := sess.RequireAdmin(); err != nil {
		return err
	}
	if err := role.Validate(); err != nil {
		return err
	}
	if err := s.profiles.SetRole(ctx, uid, role); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	slog.InfoContext(ctx, "Account role changed",
		applog.FieldComponent, applog.ComponentAccounts,
		applog.FieldUserID, uid,
		"role", role,
		"by", sess.UserID)
	return nil
}

func (s *AccountService) Alerts(ctx context.Context, sess session.Session) ([]core.Alert, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.alerts.ListAlerts(ctx)
}

func (s *AccountService) MarkAlertRead(ctx context.Context, sess session.Session, id string) error {
	if err := sess.RequireAdmin(); err != nil {
		return err
	}
	return s.alerts.MarkAlertRead(ctx, id)
}
