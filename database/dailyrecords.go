package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kardboard/kardboard/internal/models"
	"github.com/kardboard/kardboard/internal/timeutil"
	"gorm.io/gorm"
)

// DailyRecords maintains the per-date board snapshots behind the trend
// charts.
type DailyRecords struct {
	db    *gorm.DB
	cards *Cards
}

func NewDailyRecords(db *gorm.DB, cards *Cards) *DailyRecords {
	return &DailyRecords{db: db, cards: cards}
}

// Calculate recomputes the snapshot for one calendar date and upserts
// it, so recalculating the same date any number of times leaves exactly
// one row.
func (r *DailyRecords) Calculate(ctx context.Context, date time.Time) error {
	day := timeutil.StartOfDay(date)

	backlogged, err := r.cards.Backlogged(ctx, day)
	if err != nil {
		return err
	}
	inProgress, err := r.cards.InProgress(ctx, day)
	if err != nil {
		return err
	}
	doneTotal, err := r.cards.DoneBy(ctx, day)
	if err != nil {
		return err
	}
	completed, err := r.cards.DoneInRange(ctx, day, timeutil.EndOfDay(day))
	if err != nil {
		return err
	}
	movingCycle, err := r.cards.MovingCycleTime(ctx, day, DefaultMovingAverageWeeks)
	if err != nil {
		return err
	}
	movingLead, err := r.cards.MovingLeadTime(ctx, day, DefaultMovingAverageWeeks)
	if err != nil {
		return err
	}

	rec := &models.DailyRecord{}
	err = r.db.WithContext(ctx).Where("date = ?", day).First(rec).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error loading daily record: %w", err)
	}

	rec.Date = day
	rec.Backlog = len(backlogged)
	rec.InProgress = len(inProgress)
	rec.Done = doneTotal
	rec.Completed = len(completed)
	rec.MovingCycleTime = movingCycle
	rec.MovingLeadTime = movingLead

	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("error saving daily record: %w", err)
	}
	return nil
}

// BatchUpdate recalculates the snapshots for the trailing N days ending
// today. Like Calculate it is idempotent.
func (r *DailyRecords) BatchUpdate(ctx context.Context, days int, today time.Time) error {
	day := timeutil.StartOfDay(today)
	for i := 0; i < days; i++ {
		if err := r.Calculate(ctx, day.AddDate(0, 0, -i)); err != nil {
			return fmt.Errorf("error updating record for %s: %w", day.AddDate(0, 0, -i).Format("2006-01-02"), err)
		}
	}
	return nil
}

// Range returns the snapshots with dates inside [start, end], oldest
// first.
func (r *DailyRecords) Range(ctx context.Context, start, end time.Time) ([]models.DailyRecord, error) {
	var recs []models.DailyRecord
	err := r.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", timeutil.StartOfDay(start), timeutil.EndOfDay(end)).
		Order("date").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("error listing daily records: %w", err)
	}
	return recs, nil
}

// Count returns the total number of snapshot rows.
func (r *DailyRecords) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.DailyRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("error counting daily records: %w", err)
	}
	return int(n), nil
}
