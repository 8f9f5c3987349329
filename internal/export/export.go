// Package export renders day logs as a flat table for CSV downloads and
// spreadsheet sync.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"tiffin/internal/core"
)

// Header is the first row of every export.
var Header = []string{"Date", "Items", "Custom Items", "Category", "Notes", "Total"}

// Rows returns the header, one row per log in date order and a closing
// total row.
func Rows(logs []core.DayLog) [][]string {
	sorted := make([]core.DayLog, len(logs))
	copy(sorted, logs)
	core.SortByDate(sorted)

	rows := make([][]string, 0, len(sorted)+2)
	rows = append(rows, Header)

	var total core.Money
	for _, l := range sorted {
		total = total.Add(l.TotalCost)
		rows = append(rows, []string{
			l.Date.Key(),
			DescribeFlags(l.Flags),
			describeItems(l.CustomItems),
			l.CategoryOrDefault(),
			l.Notes,
			l.TotalCost.Fixed(),
		})
	}
	rows = append(rows, []string{"Total", "", "", "", "", total.Fixed()})
	return rows
}

// WriteCSV writes Rows(logs) to w. Cells a spreadsheet would read as a
// formula are prefixed with a single quote.
func WriteCSV(w io.Writer, logs []core.DayLog) error {
	rows := Rows(logs)
	for _, row := range rows {
		for i, cell := range row {
			row[i] = escapeFormula(cell)
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// DescribeFlags lists the selected items in a fixed order, e.g.
// "full tiffin, curd, extra chapati x3".
func DescribeFlags(f core.Flags) string {
	if f.NoTiffin {
		return "no tiffin"
	}
	if !f.HasConsumption() {
		return ""
	}
	var parts []string
	add := func(on bool, label string) {
		if on {
			parts = append(parts, label)
		}
	}
	add(f.FullTiffin, "full tiffin")
	add(f.HalfTiffin, "half tiffin")
	add(f.ExtraTiffin, "extra tiffin")
	add(f.OnlyChapati, "chapati")
	add(f.OnlyRice, "rice")
	add(f.OnlySabzi, "sabzi")
	add(f.Curd, "curd")
	if f.ExtraChapatiQty > 0 {
		parts = append(parts, fmt.Sprintf("extra chapati x%d", f.ExtraChapatiQty))
	}
	add(f.Sweet, "sweet")
	add(f.BreakfastOnly, "breakfast")
	add(f.DinnerOnly, "dinner")
	return strings.Join(parts, ", ")
}

// escapeFormula quotes text starting with a formula trigger.
func escapeFormula(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}

func describeItems(items []core.CustomItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s (%s)", item.Name, item.Price.Fixed())
	}
	return strings.Join(parts, "; ")
}
