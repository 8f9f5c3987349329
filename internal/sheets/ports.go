// Package sheets defines the spreadsheet export port used by the sync worker.
package sheets

import (
	"context"
	"fmt"
	"time"

	"tiffin/internal/core"
)

// MonthExporter replaces the exported copy of one user's month.
type MonthExporter interface {
	ExportMonth(ctx context.Context, userID string, year int, month time.Month, logs []core.DayLog) error
}

// SheetTitle names the tab holding a user's month, e.g. "u1 2024-03".
func SheetTitle(userID string, year int, month time.Month) string {
	return fmt.Sprintf("%s %04d-%02d", userID, year, int(month))
}
