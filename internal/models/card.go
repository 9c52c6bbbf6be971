package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/kardboard/kardboard/internal/timeutil"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// Card is a unit of work tracked across the board. Its state is derived
// from which lifecycle dates are populated: a card with only a backlog
// date is backlogged, one with a start date is in progress, and one with
// a done date is finished.
type Card struct {
	ID       uint   `gorm:"primaryKey"`
	Key      string `gorm:"uniqueIndex"` // ticket key, always uppercase
	Title    string
	Category string
	State    string
	Team     string
	Priority *int

	BacklogDate time.Time
	StartDate   *time.Time
	DoneDate    *time.Time

	// Persisted so aggregate queries can average them in SQL.
	CycleTime *int
	LeadTime  *int

	// Cached ticket-system data.
	TicketTitle     string
	TicketURL       string
	TicketUpdatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// States returns the configured board states, oldest first. The last
// entry is the terminal "done" state.
func States() []string {
	states := viper.GetStringSlice("board.states")
	if len(states) == 0 {
		states = []string{"Todo", "Doing", "Done"}
	}
	return states
}

// Teams returns the configured team names.
func Teams() []string {
	return viper.GetStringSlice("board.teams")
}

// CycleTimeGoal returns the configured [lower, upper] cycle-time goal in
// business days. ok is false when no goal is configured.
func CycleTimeGoal() (lower, upper int, ok bool) {
	goal := viper.GetIntSlice("board.cycle_time_goal")
	if len(goal) != 2 {
		return 0, 0, false
	}
	return goal[0], goal[1], true
}

// BeforeSave recomputes the derived fields so they are never stale
// relative to the lifecycle dates.
func (c *Card) BeforeSave(tx *gorm.DB) error {
	c.Key = strings.ToUpper(strings.TrimSpace(c.Key))

	c.CycleTime = nil
	c.LeadTime = nil
	if c.DoneDate != nil {
		if c.StartDate != nil {
			ct := timeutil.BusinessDaysBetween(*c.StartDate, *c.DoneDate)
			c.CycleTime = &ct
		}
		lt := timeutil.BusinessDaysBetween(c.BacklogDate, *c.DoneDate)
		c.LeadTime = &lt

		states := States()
		c.State = states[len(states)-1]
	} else if c.State == "" {
		states := States()
		if c.StartDate != nil && len(states) > 1 {
			c.State = states[len(states)-2]
		} else {
			c.State = states[0]
		}
	}
	return nil
}

// Validate checks the card for form-level consistency. The returned map
// is keyed by field name; an empty map means the card is valid.
func (c *Card) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(c.Key) == "" {
		errs["key"] = "key is required"
	}
	if c.BacklogDate.IsZero() {
		errs["backlog_date"] = "backlog date is required"
	}
	if c.StartDate != nil && c.StartDate.Before(c.BacklogDate) {
		errs["start_date"] = "start date must not precede the backlog date"
	}
	if c.DoneDate != nil {
		if c.StartDate != nil && c.DoneDate.Before(*c.StartDate) {
			errs["done_date"] = "done date must not precede the start date"
		} else if c.StartDate == nil && c.DoneDate.Before(c.BacklogDate) {
			errs["done_date"] = "done date must not precede the backlog date"
		}
	}
	return errs
}

// IsDone reports whether the card has left the board.
func (c *Card) IsDone() bool { return c.DoneDate != nil }

// CurrentCycleTime returns the business days the card has been in
// progress as of today. ok is false for cards that have not started.
func (c *Card) CurrentCycleTime(today time.Time) (days int, ok bool) {
	if c.StartDate == nil {
		return 0, false
	}
	end := today
	if c.DoneDate != nil {
		end = *c.DoneDate
	}
	return timeutil.BusinessDaysBetween(*c.StartDate, end), true
}

// CycleInGoal reports whether the card's running cycle time sits inside
// the configured goal band.
func (c *Card) CycleInGoal(today time.Time) bool {
	lower, upper, ok := CycleTimeGoal()
	if !ok {
		return false
	}
	ct, ok := c.CurrentCycleTime(today)
	return ok && ct >= lower && ct <= upper
}

// CycleOverGoal reports whether the card's running cycle time has blown
// past the configured goal band.
func (c *Card) CycleOverGoal(today time.Time) bool {
	_, upper, ok := CycleTimeGoal()
	if !ok {
		return false
	}
	ct, ok := c.CurrentCycleTime(today)
	return ok && ct > upper
}

func (c *Card) String() string {
	return fmt.Sprintf("%s: %s", c.Key, c.Title)
}
