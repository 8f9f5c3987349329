// Package google exports month sheets to a Google spreadsheet through the
// Sheets v4 API using a service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tiffin/internal/core"
	"tiffin/internal/export"
	applog "tiffin/internal/log"
	ports "tiffin/internal/sheets"
)

// Sheets allows 60 write requests per minute per user; one export costs up
// to four calls.
const defaultRequestsPerMinute = 50

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	limiter       *rate.Limiter
}

var _ ports.MonthExporter = (*Client)(nil)

// NewClient creates a Sheets client authenticated with the service account
// key in credentialsJSON.
func NewClient(ctx context.Context, spreadsheetID string, credentialsJSON []byte) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if len(credentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created",
		applog.FieldComponent, applog.ComponentSheets,
		"spreadsheet_id", spreadsheetID)
	return newClient(svc, spreadsheetID, defaultRequestsPerMinute), nil
}

func newClient(svc *gsheet.Service, spreadsheetID string, perMinute int) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 4),
	}
}

// LoadCredentials returns the service account key from inline JSON, a file,
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	if s := strings.TrimSpace(inlineJSON); s != "" {
		return []byte(s), nil
	}
	file = strings.TrimSpace(file)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// ExportMonth rewrites the user's month tab, creating it on first use.
func (c *Client) ExportMonth(ctx context.Context, userID string, year int, month time.Month, logs []core.DayLog) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := ports.SheetTitle(userID, year, month)

	if err := c.ensureSheet(ctx, title); err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	clearRange := sheetRange(title, "A:F")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rows := export.Rows(logs)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	writeRange := sheetRange(title, "A1")
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, &gsheet.ValueRange{Values: toValues(rows)}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", writeRange, err)
	}

	slog.InfoContext(ctx, "Exported month sheet",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldUserID, userID,
		applog.FieldSheet, title,
		applog.FieldRows, len(rows)-2)
	return nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	slog.InfoContext(ctx, "Created month sheet",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldSheet, title)
	return nil
}

// sheetRange quotes title for A1 notation: 'u1 2024-03'!A1.
func sheetRange(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

func toValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, cell := range row {
			vals[j] = cell
		}
		out[i] = vals
	}
	return out
}
