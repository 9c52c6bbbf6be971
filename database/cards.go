package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kardboard/kardboard/internal/models"
	"github.com/kardboard/kardboard/internal/timeutil"
	"gorm.io/gorm"
)

var (
	ErrCardNotFound = errors.New("card not found")
	ErrDuplicateKey = errors.New("card with this key already exists")
)

// DefaultMovingAverageWeeks is the trailing window the moving cycle and
// lead time averages are computed over.
const DefaultMovingAverageWeeks = 4

// Cards answers card queries, including the "as of date" time-machine
// variants the dashboards are built on.
type Cards struct {
	db *gorm.DB
}

func NewCards(db *gorm.DB) *Cards {
	return &Cards{db: db}
}

// Create inserts a new card. A key collision maps to ErrDuplicateKey.
func (r *Cards) Create(ctx context.Context, c *models.Card) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("error creating card: %w", err)
	}
	return nil
}

// Save persists changes to an existing card.
func (r *Cards) Save(ctx context.Context, c *models.Card) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("error saving card: %w", err)
	}
	return nil
}

// GetByKey looks a card up by its key, case-insensitively.
func (r *Cards) GetByKey(ctx context.Context, key string) (*models.Card, error) {
	c := &models.Card{}
	err := r.db.WithContext(ctx).Where("key = ?", strings.ToUpper(strings.TrimSpace(key))).First(c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("error getting card by key: %w", err)
	}
	return c, nil
}

// Delete removes a card by key.
func (r *Cards) Delete(ctx context.Context, key string) error {
	res := r.db.WithContext(ctx).Where("key = ?", strings.ToUpper(strings.TrimSpace(key))).Delete(&models.Card{})
	if res.Error != nil {
		return fmt.Errorf("error deleting card: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCardNotFound
	}
	return nil
}

// All returns every card, newest backlog entries first.
func (r *Cards) All(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	if err := r.db.WithContext(ctx).Order("backlog_date DESC, key").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("error listing cards: %w", err)
	}
	return cards, nil
}

// Backlogged returns cards that were on the backlog as of the given
// date, ordered by priority (unprioritised last) then backlog date.
func (r *Cards) Backlogged(ctx context.Context, at time.Time) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.WithContext(ctx).
		Where("backlog_date <= ?", timeutil.EndOfDay(at)).
		Where("start_date IS NULL OR start_date > ?", timeutil.EndOfDay(at)).
		Order("priority IS NULL, priority, backlog_date").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("error listing backlogged cards: %w", err)
	}
	return cards, nil
}

// InProgress returns cards that were being worked as of the given date:
// started on or before it and not finished before it.
func (r *Cards) InProgress(ctx context.Context, at time.Time) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.WithContext(ctx).
		Where("start_date IS NOT NULL AND start_date <= ?", timeutil.EndOfDay(at)).
		Where("done_date IS NULL OR done_date >= ?", timeutil.StartOfDay(at)).
		Order("start_date, key").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("error listing in-progress cards: %w", err)
	}
	return cards, nil
}

// Done returns every finished card, most recently finished first.
func (r *Cards) Done(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.WithContext(ctx).
		Where("done_date IS NOT NULL").
		Order("done_date DESC, key").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("error listing done cards: %w", err)
	}
	return cards, nil
}

// DoneBy counts the cards finished on or before the given date.
func (r *Cards) DoneBy(ctx context.Context, at time.Time) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Card{}).
		Where("done_date IS NOT NULL AND done_date <= ?", timeutil.EndOfDay(at)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("error counting done cards: %w", err)
	}
	return int(n), nil
}

// DoneInRange returns cards whose done date falls inside [start, end].
func (r *Cards) DoneInRange(ctx context.Context, start, end time.Time) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.WithContext(ctx).
		Where("done_date IS NOT NULL AND done_date BETWEEN ? AND ?", start, end).
		Order("done_date, key").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("error listing cards done in range: %w", err)
	}
	return cards, nil
}

// DoneInMonth returns cards finished during the given calendar month.
func (r *Cards) DoneInMonth(ctx context.Context, year int, month time.Month) ([]models.Card, error) {
	start, end := timeutil.MonthRange(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	return r.DoneInRange(ctx, start, end)
}

// DoneInWeek returns cards finished during the Sunday..Saturday week
// containing the given date.
func (r *Cards) DoneInWeek(ctx context.Context, year int, month time.Month, day int) ([]models.Card, error) {
	start, end := timeutil.WeekRange(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
	return r.DoneInRange(ctx, start, end)
}

// MovingCycleTime is the rounded average cycle time of cards finished in
// the trailing weeks-long window ending at the given date. Zero when no
// finished cards fall in the window.
func (r *Cards) MovingCycleTime(ctx context.Context, endAt time.Time, weeks int) (int, error) {
	return r.movingAverage(ctx, "cycle_time", endAt, weeks)
}

// MovingLeadTime is MovingCycleTime for lead times.
func (r *Cards) MovingLeadTime(ctx context.Context, endAt time.Time, weeks int) (int, error) {
	return r.movingAverage(ctx, "lead_time", endAt, weeks)
}

func (r *Cards) movingAverage(ctx context.Context, column string, endAt time.Time, weeks int) (int, error) {
	if weeks <= 0 {
		weeks = DefaultMovingAverageWeeks
	}
	end := timeutil.EndOfDay(endAt)
	start := timeutil.StartOfDay(end.AddDate(0, 0, -7*weeks))

	var avg sql.NullFloat64
	err := r.db.WithContext(ctx).Model(&models.Card{}).
		Select("AVG("+column+")").
		Where(column+" IS NOT NULL AND done_date BETWEEN ? AND ?", start, end).
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("error computing moving %s: %w", column, err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return int(math.Round(avg.Float64)), nil
}

// StaleTickets returns cards whose cached ticket data is older than the
// cutoff (or was never fetched), oldest first.
func (r *Cards) StaleTickets(ctx context.Context, olderThan time.Time, limit int) ([]models.Card, error) {
	var cards []models.Card
	q := r.db.WithContext(ctx).
		Where("ticket_updated_at IS NULL OR ticket_updated_at < ?", olderThan).
		Order("ticket_updated_at, key")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("error listing stale-ticket cards: %w", err)
	}
	return cards, nil
}
