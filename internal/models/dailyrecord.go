package models

import "time"

// DailyRecord is a per-date snapshot of the board used for trend charts:
// how many cards sat in each bucket at the end of that day, plus the
// moving averages as of that day. Recalculating a date overwrites the
// existing row, so snapshots are idempotent.
type DailyRecord struct {
	ID   uint      `gorm:"primaryKey"`
	Date time.Time `gorm:"uniqueIndex"`

	Backlog    int
	InProgress int
	Done       int // cumulative cards finished on or before Date
	Completed  int // cards finished on Date itself

	MovingCycleTime int
	MovingLeadTime  int

	CreatedAt time.Time
	UpdatedAt time.Time
}
