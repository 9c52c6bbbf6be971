package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/kardboard/kardboard/internal/models"
	"github.com/kardboard/kardboard/internal/timeutil"
)

// CardForm carries the raw POST fields of the add/edit forms. Dates are
// MM/DD/YYYY strings, priority is an optional integer string.
type CardForm struct {
	Key         string `form:"key"`
	Title       string `form:"title"`
	Category    string `form:"category"`
	State       string `form:"state"`
	Team        string `form:"team"`
	Priority    string `form:"priority"`
	BacklogDate string `form:"backlog_date"`
	StartDate   string `form:"start_date"`
	DoneDate    string `form:"done_date"`
}

// FormFromCard prefills a form from an existing card for the edit page.
func FormFromCard(card *models.Card) *CardForm {
	f := &CardForm{
		Key:         card.Key,
		Title:       card.Title,
		Category:    card.Category,
		State:       card.State,
		Team:        card.Team,
		BacklogDate: card.BacklogDate.Format(displayDateFormat),
	}
	if card.Priority != nil {
		f.Priority = strconv.Itoa(*card.Priority)
	}
	if card.StartDate != nil {
		f.StartDate = card.StartDate.Format(displayDateFormat)
	}
	if card.DoneDate != nil {
		f.DoneDate = card.DoneDate.Format(displayDateFormat)
	}
	return f
}

// Apply parses the form onto the card and returns field-keyed errors.
// An empty map means the card is ready to save.
func (f *CardForm) Apply(card *models.Card) map[string]string {
	errs := make(map[string]string)

	card.Key = strings.ToUpper(strings.TrimSpace(f.Key))
	card.Title = strings.TrimSpace(f.Title)
	card.Category = strings.TrimSpace(f.Category)
	card.State = strings.TrimSpace(f.State)
	card.Team = strings.TrimSpace(f.Team)

	if p := strings.TrimSpace(f.Priority); p != "" {
		pri, err := strconv.Atoi(p)
		if err != nil {
			errs["priority"] = "priority must be a number"
		} else {
			card.Priority = &pri
		}
	} else {
		card.Priority = nil
	}

	if raw := strings.TrimSpace(f.BacklogDate); raw != "" {
		d, err := parseFormDate(raw)
		if err != nil {
			errs["backlog_date"] = "backlog date must be MM/DD/YYYY"
		} else {
			card.BacklogDate = d
		}
	} else {
		card.BacklogDate = time.Time{}
	}
	card.StartDate = parseOptionalDate(f.StartDate, "start_date", errs)
	card.DoneDate = parseOptionalDate(f.DoneDate, "done_date", errs)

	for field, msg := range card.Validate() {
		if _, seen := errs[field]; !seen {
			errs[field] = msg
		}
	}
	return errs
}

func parseOptionalDate(raw, field string, errs map[string]string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := parseFormDate(raw)
	if err != nil {
		errs[field] = strings.ReplaceAll(field, "_", " ") + " must be MM/DD/YYYY"
		return nil
	}
	return &d
}

func parseFormDate(raw string) (time.Time, error) {
	d, err := time.Parse(displayDateFormat, raw)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.StartOfDay(d.UTC()), nil
}
