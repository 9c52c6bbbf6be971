// Package scheduler runs the background jobs: nightly daily-record
// snapshots and periodic refresh of cached ticket-system data.
package scheduler

import (
	"context"
	"time"

	"github.com/kardboard/kardboard/database"
	"github.com/kardboard/kardboard/integrations"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Scheduler struct {
	cronEngine *cron.Cron
	cards      *database.Cards
	records    *database.DailyRecords
	ticket     integrations.TicketHelper

	recordsCronSpec string
	ticketsCronSpec string
	backfillDays    int
	ticketMaxAge    time.Duration
	ticketBatchSize int
}

func New(
	cards *database.Cards,
	records *database.DailyRecords,
	ticket integrations.TicketHelper,
	recordsCronSpec string, // e.g. "0 1 * * *" (01:00 nightly)
	ticketsCronSpec string, // e.g. "*/30 * * * *" (every 30 minutes)
	backfillDays int,
	ticketMaxAge time.Duration,
) *Scheduler {
	return &Scheduler{
		cronEngine:      cron.New(cron.WithLocation(time.Local)),
		cards:           cards,
		records:         records,
		ticket:          ticket,
		recordsCronSpec: recordsCronSpec,
		ticketsCronSpec: ticketsCronSpec,
		backfillDays:    backfillDays,
		ticketMaxAge:    ticketMaxAge,
		ticketBatchSize: 50,
	}
}

// Start registers the cron jobs and runs an immediate daily-record
// backfill so charts have data right after boot.
func (s *Scheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.recordsCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.updateRecords(ctx)
	})
	if err != nil {
		return err
	}

	_, err = s.cronEngine.AddFunc(s.ticketsCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.syncTickets(ctx)
	})
	if err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.updateRecords(ctx)
	}()

	s.cronEngine.Start()
	zap.L().Info("Scheduler started",
		zap.String("recordsCron", s.recordsCronSpec),
		zap.String("ticketsCron", s.ticketsCronSpec))
	return nil
}

// Stop halts the cron engine and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	zap.L().Info("Scheduler stopped")
}

func (s *Scheduler) updateRecords(ctx context.Context) {
	if err := s.records.BatchUpdate(ctx, s.backfillDays, time.Now()); err != nil {
		zap.L().Error("Daily record update failed", zap.Error(err))
		return
	}
	zap.L().Info("Daily records updated", zap.Int("days", s.backfillDays))
}

func (s *Scheduler) syncTickets(ctx context.Context) {
	cutoff := time.Now().Add(-s.ticketMaxAge)
	stale, err := s.cards.StaleTickets(ctx, cutoff, s.ticketBatchSize)
	if err != nil {
		zap.L().Error("Stale ticket lookup failed", zap.Error(err))
		return
	}

	for i := range stale {
		card := &stale[i]
		if err := s.ticket.Update(ctx, card); err != nil {
			zap.L().Warn("Ticket refresh failed", zap.String("key", card.Key), zap.Error(err))
			continue
		}
		if card.TicketTitle != "" && card.Title == "" {
			card.Title = card.TicketTitle
		}
		if err := s.cards.Save(ctx, card); err != nil {
			zap.L().Error("Saving refreshed card failed", zap.String("key", card.Key), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		zap.L().Info("Ticket data refreshed", zap.Int("cards", len(stale)))
	}
}
