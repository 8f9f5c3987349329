// Package repository defines the storage ports the services depend on.
package repository

import (
	"context"
	"errors"

	"tiffin/internal/core"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// LogQuery bounds a log listing. Zero dates leave that side open.
type LogQuery struct {
	From core.Date
	To   core.Date
}

// Ports for outbound adapters.
type (
	LogStore interface {
		GetLog(ctx context.Context, userID string, date core.Date) (core.DayLog, error)
		// ListLogs returns logs with From <= date <= To ordered by date.
		ListLogs(ctx context.Context, userID string, q LogQuery) ([]core.DayLog, error)
		// PutLog replaces the log stored under log.Date.
		PutLog(ctx context.Context, userID string, log core.DayLog) error
		// PutLogs replaces every given log in one all-or-nothing batch.
		PutLogs(ctx context.Context, userID string, logs []core.DayLog) error
		DeleteLog(ctx context.Context, userID string, date core.Date) error
	}

	PricingStore interface {
		GetPricing(ctx context.Context, userID string) (core.PriceTable, error)
		// UpdatePricing merges patch over the stored table and returns the result.
		UpdatePricing(ctx context.Context, userID string, patch core.PricePatch) (core.PriceTable, error)
		SetPricing(ctx context.Context, userID string, p core.PriceTable) error
	}

	ProfileStore interface {
		CreateProfile(ctx context.Context, p core.UserProfile) error
		GetProfile(ctx context.Context, userID string) (core.UserProfile, error)
		// ListProfiles returns every profile, newest first.
		ListProfiles(ctx context.Context) ([]core.UserProfile, error)
		SetApproval(ctx context.Context, userID string, approved bool) error
		SetRole(ctx context.Context, userID string, role core.Role) error
		UpdateSettings(ctx context.Context, userID string, s core.UserSettings) error
	}

	AlertStore interface {
		AddAlert(ctx context.Context, a core.Alert) error
		// ListAlerts returns alerts newest first.
		ListAlerts(ctx context.Context) ([]core.Alert, error)
		MarkAlertRead(ctx context.Context, id string) error
	}

	// Store is the full persistence collaborator.
	Store interface {
		LogStore
		PricingStore
		ProfileStore
		AlertStore
		Close() error
	}
)

// ErrDuplicate is returned when creating a record whose key already exists.
var ErrDuplicate = errors.New("already exists")
