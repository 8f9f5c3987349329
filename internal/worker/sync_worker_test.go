package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"tiffin/internal/amqp"
	"tiffin/internal/core"
	"tiffin/internal/repository/memory"
	sheetsmem "tiffin/internal/sheets/memory"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, p := range []core.UserProfile{
		{UID: "approved", Role: core.RoleUser, IsApproved: true},
		{UID: "pending", Role: core.RoleUser},
		{UID: "admin", Role: core.RoleAdmin},
	} {
		p.Pricing = core.DefaultPriceTable
		p.Settings = core.DefaultSettings
		if err := store.CreateProfile(ctx, p); err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}
	logs := []core.DayLog{
		{Date: core.NewDate(2024, 3, 1), Category: "mess", TotalCost: core.Units(80)},
		{Date: core.NewDate(2024, 3, 31), Category: "mess", TotalCost: core.Units(50)},
		{Date: core.NewDate(2024, 4, 1), Category: "mess", TotalCost: core.Units(20)},
	}
	if err := store.PutLogs(ctx, "approved", logs); err != nil {
		t.Fatalf("put logs: %v", err)
	}
	return store
}

func TestHandleSyncMessageExportsOneMonth(t *testing.T) {
	exporter := sheetsmem.New()
	w := NewSyncWorker(seedStore(t), exporter, 2)

	msg := amqp.NewLogSyncMessage("approved", 2024, time.March, "save")
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	rows, ok := exporter.Sheet("approved 2024-03")
	if !ok {
		t.Fatalf("sheet missing, have %v", exporter.Titles())
	}
	if len(rows) != 4 || rows[3][5] != "130.00" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestHandleSyncMessageReturnsExportError(t *testing.T) {
	exporter := sheetsmem.New()
	boom := errors.New("quota exceeded")
	exporter.FailWith(boom)
	w := NewSyncWorker(seedStore(t), exporter, 1)

	err := w.HandleSyncMessage(context.Background(), amqp.NewLogSyncMessage("approved", 2024, time.March, "save"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if synced, failed := w.Stats(); synced != 0 || failed != 1 {
		t.Fatalf("stats = %d/%d", synced, failed)
	}
}

func TestResyncCurrentMonthSkipsPendingUsers(t *testing.T) {
	exporter := sheetsmem.New()
	w := NewSyncWorker(seedStore(t), exporter, 2)
	w.now = func() time.Time { return time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC) }

	if err := w.ResyncCurrentMonth(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	titles := exporter.Titles()
	if len(titles) != 2 || titles[0] != "admin 2024-04" || titles[1] != "approved 2024-04" {
		t.Fatalf("titles = %v", titles)
	}
	rows, _ := exporter.Sheet("approved 2024-04")
	if len(rows) != 3 || rows[1][0] != "2024-04-01" {
		t.Fatalf("april rows = %v", rows)
	}
}

type fakeConsumer struct {
	messages []*amqp.LogSyncMessage
	errs     []error
}

func (f *fakeConsumer) ConsumeLogSync(ctx context.Context, handler func(context.Context, *amqp.LogSyncMessage) error) error {
	for _, m := range f.messages {
		f.errs = append(f.errs, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunStopsOnCancel(t *testing.T) {
	exporter := sheetsmem.New()
	w := NewSyncWorker(seedStore(t), exporter, 1)
	w.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }
	consumer := &fakeConsumer{messages: []*amqp.LogSyncMessage{
		amqp.NewLogSyncMessage("approved", 2024, time.April, "leave"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for exporter.Writes() < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out, titles = %v", exporter.Titles())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := exporter.Sheet("approved 2024-04"); !ok {
		t.Fatalf("consumed message not exported: %v", exporter.Titles())
	}
	if _, ok := exporter.Sheet("admin 2024-03"); !ok {
		t.Fatalf("startup resync missing: %v", exporter.Titles())
	}
}
