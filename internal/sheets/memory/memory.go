// Package memory is an in-process MonthExporter for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"tiffin/internal/core"
	"tiffin/internal/export"
	"tiffin/internal/sheets"
)

var _ sheets.MonthExporter = (*Exporter)(nil)

// Exporter keeps the last rows written to each sheet title.
type Exporter struct {
	mu     sync.Mutex
	sheets map[string][][]string
	writes int
	fail   error
}

func New() *Exporter {
	return &Exporter{sheets: make(map[string][][]string)}
}

// FailWith makes every following export return err. Pass nil to recover.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

func (e *Exporter) ExportMonth(ctx context.Context, userID string, year int, month time.Month, logs []core.DayLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" {
		return errors.New("missing user id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.sheets[sheets.SheetTitle(userID, year, month)] = export.Rows(logs)
	e.writes++
	return nil
}

// Sheet returns the rows last written under title.
func (e *Exporter) Sheet(title string) ([][]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows, ok := e.sheets[title]
	return rows, ok
}

// Titles lists the written sheets in name order.
func (e *Exporter) Titles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.sheets))
	for t := range e.sheets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Writes counts successful exports, including rewrites of the same sheet.
func (e *Exporter) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}
