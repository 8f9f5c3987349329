package storage

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the table columns one to one.

type DayLogRow struct {
	UserID          string
	Date            string
	FullTiffin      bool
	HalfTiffin      bool
	ExtraTiffin     bool
	NoTiffin        bool
	OnlyChapati     bool
	ExtraChapatiQty int64
	OnlyRice        bool
	OnlySabzi       bool
	Curd            bool
	Sweet           bool
	BreakfastOnly   bool
	DinnerOnly      bool
	Notes           string
	Category        string
	TotalCostCents  int64
	CreatedAt       string
	UpdatedAt       string
}

type CustomItemRow struct {
	Date       string
	ItemID     string
	Position   int64
	Name       string
	PriceCents int64
}

type PriceTableRow struct {
	UserID            string
	FullTiffinCents   int64
	HalfTiffinCents   int64
	ExtraTiffinCents  int64
	ChapatiCents      int64
	ExtraChapatiCents int64
	RiceCents         int64
	SabziCents        int64
	CurdCents         int64
	SweetCents        int64
	BreakfastCents    int64
	DinnerCents       int64
	UpdatedAt         string
}

type ProfileRow struct {
	UID             string
	Email           string
	DisplayName     string
	Role            string
	IsApproved      bool
	UITheme         string
	ReminderTime    string
	DefaultCategory string
	CreatedAt       string
}

type AlertRow struct {
	ID          string
	Type        string
	UserID      string
	Email       string
	DisplayName string
	Read        bool
	CreatedAt   string
}

const dayLogColumns = `user_id, date, full_tiffin, half_tiffin, extra_tiffin, no_tiffin, only_chapati,
  extra_chapati_qty, only_rice, only_sabzi, curd, sweet, breakfast_only, dinner_only,
  notes, category, total_cost_cents, created_at, updated_at`

func scanDayLog(s interface{ Scan(...any) error }) (DayLogRow, error) {
	var r DayLogRow
	err := s.Scan(
		&r.UserID, &r.Date, &r.FullTiffin, &r.HalfTiffin, &r.ExtraTiffin, &r.NoTiffin, &r.OnlyChapati,
		&r.ExtraChapatiQty, &r.OnlyRice, &r.OnlySabzi, &r.Curd, &r.Sweet, &r.BreakfastOnly, &r.DinnerOnly,
		&r.Notes, &r.Category, &r.TotalCostCents, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

const upsertDayLog = `-- name: UpsertDayLog :exec
INSERT INTO day_logs (` + dayLogColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, date) DO UPDATE SET
  full_tiffin = excluded.full_tiffin,
  half_tiffin = excluded.half_tiffin,
  extra_tiffin = excluded.extra_tiffin,
  no_tiffin = excluded.no_tiffin,
  only_chapati = excluded.only_chapati,
  extra_chapati_qty = excluded.extra_chapati_qty,
  only_rice = excluded.only_rice,
  only_sabzi = excluded.only_sabzi,
  curd = excluded.curd,
  sweet = excluded.sweet,
  breakfast_only = excluded.breakfast_only,
  dinner_only = excluded.dinner_only,
  notes = excluded.notes,
  category = excluded.category,
  total_cost_cents = excluded.total_cost_cents,
  updated_at = excluded.updated_at
`

// UpsertDayLog overwrites every column of an existing row except created_at.
func (q *Queries) UpsertDayLog(ctx context.Context, r DayLogRow) error {
	_, err := q.db.ExecContext(ctx, upsertDayLog,
		r.UserID, r.Date, r.FullTiffin, r.HalfTiffin, r.ExtraTiffin, r.NoTiffin, r.OnlyChapati,
		r.ExtraChapatiQty, r.OnlyRice, r.OnlySabzi, r.Curd, r.Sweet, r.BreakfastOnly, r.DinnerOnly,
		r.Notes, r.Category, r.TotalCostCents, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

const getDayLog = `-- name: GetDayLog :one
SELECT ` + dayLogColumns + ` FROM day_logs WHERE user_id = ? AND date = ?
`

func (q *Queries) GetDayLog(ctx context.Context, userID, date string) (DayLogRow, error) {
	return scanDayLog(q.db.QueryRowContext(ctx, getDayLog, userID, date))
}

const listDayLogs = `-- name: ListDayLogs :many
SELECT ` + dayLogColumns + ` FROM day_logs
WHERE user_id = ?
  AND (? = '' OR date >= ?)
  AND (? = '' OR date <= ?)
ORDER BY date ASC
`

// ListDayLogs returns the user's rows between from and to inclusive. An
// empty bound is open.
func (q *Queries) ListDayLogs(ctx context.Context, userID, from, to string) ([]DayLogRow, error) {
	rows, err := q.db.QueryContext(ctx, listDayLogs, userID, from, from, to, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DayLogRow
	for rows.Next() {
		r, err := scanDayLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteDayLog = `-- name: DeleteDayLog :exec
DELETE FROM day_logs WHERE user_id = ? AND date = ?
`

func (q *Queries) DeleteDayLog(ctx context.Context, userID, date string) error {
	_, err := q.db.ExecContext(ctx, deleteDayLog, userID, date)
	return err
}

const deleteCustomItems = `-- name: DeleteCustomItems :exec
DELETE FROM custom_items WHERE user_id = ? AND date = ?
`

func (q *Queries) DeleteCustomItems(ctx context.Context, userID, date string) error {
	_, err := q.db.ExecContext(ctx, deleteCustomItems, userID, date)
	return err
}

const insertCustomItem = `-- name: InsertCustomItem :exec
INSERT INTO custom_items (user_id, date, item_id, position, name, price_cents)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertCustomItem(ctx context.Context, userID string, r CustomItemRow) error {
	_, err := q.db.ExecContext(ctx, insertCustomItem, userID, r.Date, r.ItemID, r.Position, r.Name, r.PriceCents)
	return err
}

const listCustomItems = `-- name: ListCustomItems :many
SELECT date, item_id, position, name, price_cents FROM custom_items
WHERE user_id = ?
  AND (? = '' OR date >= ?)
  AND (? = '' OR date <= ?)
ORDER BY date ASC, position ASC
`

func (q *Queries) ListCustomItems(ctx context.Context, userID, from, to string) ([]CustomItemRow, error) {
	rows, err := q.db.QueryContext(ctx, listCustomItems, userID, from, from, to, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CustomItemRow
	for rows.Next() {
		var r CustomItemRow
		if err := rows.Scan(&r.Date, &r.ItemID, &r.Position, &r.Name, &r.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertPriceTable = `-- name: UpsertPriceTable :exec
INSERT INTO price_tables (user_id, full_tiffin_cents, half_tiffin_cents, extra_tiffin_cents,
  chapati_cents, extra_chapati_cents, rice_cents, sabzi_cents, curd_cents, sweet_cents,
  breakfast_cents, dinner_cents, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  full_tiffin_cents = excluded.full_tiffin_cents,
  half_tiffin_cents = excluded.half_tiffin_cents,
  extra_tiffin_cents = excluded.extra_tiffin_cents,
  chapati_cents = excluded.chapati_cents,
  extra_chapati_cents = excluded.extra_chapati_cents,
  rice_cents = excluded.rice_cents,
  sabzi_cents = excluded.sabzi_cents,
  curd_cents = excluded.curd_cents,
  sweet_cents = excluded.sweet_cents,
  breakfast_cents = excluded.breakfast_cents,
  dinner_cents = excluded.dinner_cents,
  updated_at = excluded.updated_at
`

func (q *Queries) UpsertPriceTable(ctx context.Context, r PriceTableRow) error {
	_, err := q.db.ExecContext(ctx, upsertPriceTable,
		r.UserID, r.FullTiffinCents, r.HalfTiffinCents, r.ExtraTiffinCents,
		r.ChapatiCents, r.ExtraChapatiCents, r.RiceCents, r.SabziCents, r.CurdCents, r.SweetCents,
		r.BreakfastCents, r.DinnerCents, r.UpdatedAt,
	)
	return err
}

const getPriceTable = `-- name: GetPriceTable :one
SELECT user_id, full_tiffin_cents, half_tiffin_cents, extra_tiffin_cents,
  chapati_cents, extra_chapati_cents, rice_cents, sabzi_cents, curd_cents, sweet_cents,
  breakfast_cents, dinner_cents, updated_at
FROM price_tables WHERE user_id = ?
`

func (q *Queries) GetPriceTable(ctx context.Context, userID string) (PriceTableRow, error) {
	var r PriceTableRow
	err := q.db.QueryRowContext(ctx, getPriceTable, userID).Scan(
		&r.UserID, &r.FullTiffinCents, &r.HalfTiffinCents, &r.ExtraTiffinCents,
		&r.ChapatiCents, &r.ExtraChapatiCents, &r.RiceCents, &r.SabziCents, &r.CurdCents, &r.SweetCents,
		&r.BreakfastCents, &r.DinnerCents, &r.UpdatedAt,
	)
	return r, err
}

const profileColumns = `uid, email, display_name, role, is_approved, ui_theme, reminder_time, default_category, created_at`

func scanProfile(s interface{ Scan(...any) error }) (ProfileRow, error) {
	var r ProfileRow
	err := s.Scan(&r.UID, &r.Email, &r.DisplayName, &r.Role, &r.IsApproved,
		&r.UITheme, &r.ReminderTime, &r.DefaultCategory, &r.CreatedAt)
	return r, err
}

const insertProfile = `-- name: InsertProfile :exec
INSERT INTO profiles (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertProfile(ctx context.Context, r ProfileRow) error {
	_, err := q.db.ExecContext(ctx, insertProfile, r.UID, r.Email, r.DisplayName, r.Role, r.IsApproved,
		r.UITheme, r.ReminderTime, r.DefaultCategory, r.CreatedAt)
	return err
}

const getProfile = `-- name: GetProfile :one
SELECT ` + profileColumns + ` FROM profiles WHERE uid = ?
`

func (q *Queries) GetProfile(ctx context.Context, uid string) (ProfileRow, error) {
	return scanProfile(q.db.QueryRowContext(ctx, getProfile, uid))
}

const listProfiles = `-- name: ListProfiles :many
SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC, uid ASC
`

func (q *Queries) ListProfiles(ctx context.Context) ([]ProfileRow, error) {
	rows, err := q.db.QueryContext(ctx, listProfiles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProfileRow
	for rows.Next() {
		r, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setApproval = `-- name: SetApproval :execrows
UPDATE profiles SET is_approved = ? WHERE uid = ?
`

func (q *Queries) SetApproval(ctx context.Context, uid string, approved bool) (int64, error) {
	res, err := q.db.ExecContext(ctx, setApproval, approved, uid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setRole = `-- name: SetRole :execrows
UPDATE profiles SET role = ? WHERE uid = ?
`

func (q *Queries) SetRole(ctx context.Context, uid, role string) (int64, error) {
	res, err := q.db.ExecContext(ctx, setRole, role, uid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateSettings = `-- name: UpdateSettings :execrows
UPDATE profiles SET ui_theme = ?, reminder_time = ?, default_category = ? WHERE uid = ?
`

func (q *Queries) UpdateSettings(ctx context.Context, uid, theme, reminder, category string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateSettings, theme, reminder, category, uid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertAlert = `-- name: InsertAlert :exec
INSERT INTO alerts (id, type, user_id, email, display_name, read, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertAlert(ctx context.Context, r AlertRow) error {
	_, err := q.db.ExecContext(ctx, insertAlert, r.ID, r.Type, r.UserID, r.Email, r.DisplayName, r.Read, r.CreatedAt)
	return err
}

const listAlerts = `-- name: ListAlerts :many
SELECT id, type, user_id, email, display_name, read, created_at FROM alerts
ORDER BY created_at DESC, rowid DESC
`

func (q *Queries) ListAlerts(ctx context.Context) ([]AlertRow, error) {
	rows, err := q.db.QueryContext(ctx, listAlerts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AlertRow
	for rows.Next() {
		var r AlertRow
		if err := rows.Scan(&r.ID, &r.Type, &r.UserID, &r.Email, &r.DisplayName, &r.Read, &r.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markAlertRead = `-- name: MarkAlertRead :execrows
UPDATE alerts SET read = 1 WHERE id = ?
`

func (q *Queries) MarkAlertRead(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAlertRead, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
