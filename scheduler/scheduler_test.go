package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kardboard/kardboard/database"
	"github.com/kardboard/kardboard/integrations"
	"github.com/kardboard/kardboard/internal/models"
)

func newScheduler(t *testing.T) (*Scheduler, *database.Cards, *database.DailyRecords) {
	t.Helper()
	db := database.Init(filepath.Join(t.TempDir(), "test.db"))
	cards := database.NewCards(db)
	records := database.NewDailyRecords(db, cards)
	s := New(cards, records, integrations.NewTestHelper(),
		"0 1 * * *", "*/30 * * * *", 7, time.Hour)
	return s, cards, records
}

func TestUpdateRecordsBackfills(t *testing.T) {
	s, _, records := newScheduler(t)
	ctx := context.Background()

	s.updateRecords(ctx)

	n, err := records.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Errorf("record count = %d, want 7", n)
	}

	// A second run stays idempotent.
	s.updateRecords(ctx)
	n, err = records.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Errorf("record count after rerun = %d, want 7", n)
	}
}

func TestSyncTicketsRefreshesStaleCards(t *testing.T) {
	s, cards, _ := newScheduler(t)
	ctx := context.Background()

	c := &models.Card{
		Key:         "CMSAD-1",
		Title:       "placeholder",
		BacklogDate: time.Date(2011, 6, 11, 0, 0, 0, 0, time.UTC),
	}
	if err := cards.Create(ctx, c); err != nil {
		t.Fatal(err)
	}

	s.syncTickets(ctx)

	got, err := cards.GetByKey(ctx, "CMSAD-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TicketTitle != "Dummy Title from Dummy Ticket System" {
		t.Errorf("TicketTitle = %q", got.TicketTitle)
	}
	if got.TicketUpdatedAt == nil {
		t.Fatal("TicketUpdatedAt not set")
	}

	// A freshly synced card is skipped on the next pass.
	stamp := *got.TicketUpdatedAt
	s.syncTickets(ctx)
	again, err := cards.GetByKey(ctx, "CMSAD-1")
	if err != nil {
		t.Fatal(err)
	}
	if !again.TicketUpdatedAt.Equal(stamp) {
		t.Error("fresh card was refreshed again")
	}
}

func TestStartAndStop(t *testing.T) {
	s, _, _ := newScheduler(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}
