package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kardboard/kardboard/internal/models"
	"github.com/kardboard/kardboard/internal/timeutil"
	"go.uber.org/zap"
)

// CardView decorates a card with its running cycle time and goal flags
// for board rendering.
type CardView struct {
	models.Card
	CurrentCycleTime int
	Started          bool
	InGoal           bool
	OverGoal         bool
}

func (h *Handler) cardViews(cards []models.Card, today time.Time) []CardView {
	views := make([]CardView, 0, len(cards))
	for _, card := range cards {
		v := CardView{Card: card}
		if ct, ok := card.CurrentCycleTime(today); ok {
			v.CurrentCycleTime = ct
			v.Started = true
			v.InGoal = card.CycleInGoal(today)
			v.OverGoal = card.CycleOverGoal(today)
		}
		views = append(views, v)
	}
	return views
}

func (h *Handler) serverError(c *gin.Context, err error) {
	zap.L().Error("Handler error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.String(http.StatusInternalServerError, "internal server error")
}

func filterByTeam(cards []models.Card, team string) []models.Card {
	out := make([]models.Card, 0, len(cards))
	for _, card := range cards {
		if card.Team == team {
			out = append(out, card)
		}
	}
	return out
}

// BoardHandler renders the current board: backlog, work in progress and
// cards finished in the last week.
func (h *Handler) BoardHandler(c *gin.Context) {
	h.renderBoard(c, "")
}

// TeamBoardHandler renders the board scoped to one configured team.
func (h *Handler) TeamBoardHandler(c *gin.Context) {
	slug := c.Param("slug")
	for _, team := range models.Teams() {
		if timeutil.Slugify(team) == slug {
			h.renderBoard(c, team)
			return
		}
	}
	c.String(http.StatusNotFound, "no such team")
}

func (h *Handler) renderBoard(c *gin.Context, team string) {
	ctx := c.Request.Context()
	now := h.Now()

	backlog, err := h.Cards.Backlogged(ctx, now)
	if err != nil {
		h.serverError(c, err)
		return
	}
	inProgress, err := h.Cards.InProgress(ctx, now)
	if err != nil {
		h.serverError(c, err)
		return
	}
	recentDone, err := h.Cards.DoneInRange(ctx, timeutil.StartOfDay(now.AddDate(0, 0, -7)), now)
	if err != nil {
		h.serverError(c, err)
		return
	}

	if team != "" {
		backlog = filterByTeam(backlog, team)
		inProgress = filterByTeam(inProgress, team)
		recentDone = filterByTeam(recentDone, team)
	}

	c.HTML(http.StatusOK, "state.html", gin.H{
		"Team":       team,
		"Teams":      models.Teams(),
		"Backlog":    h.cardViews(backlog, now),
		"InProgress": h.cardViews(inProgress, now),
		"RecentDone": recentDone,
	})
}

// MonthOverviewHandler renders the month dashboard: work in progress at
// month end, throughput for the month and the moving cycle time.
func (h *Handler) MonthOverviewHandler(c *gin.Context) {
	at, ok := yearMonth(c)
	if !ok {
		c.String(http.StatusNotFound, "not found")
		return
	}
	ctx := c.Request.Context()
	_, monthEnd := timeutil.MonthRange(at)

	inProgress, err := h.Cards.InProgress(ctx, monthEnd)
	if err != nil {
		h.serverError(c, err)
		return
	}
	doneMonth, err := h.Cards.DoneInMonth(ctx, at.Year(), at.Month())
	if err != nil {
		h.serverError(c, err)
		return
	}
	movingCycle, err := h.Cards.MovingCycleTime(ctx, monthEnd, 0)
	if err != nil {
		h.serverError(c, err)
		return
	}

	c.HTML(http.StatusOK, "overview_month.html", gin.H{
		"Date":            at,
		"Title":           at.Format("January 2006"),
		"InProgress":      h.cardViews(inProgress, monthEnd),
		"InProgressCount": len(inProgress),
		"DoneMonthCount":  len(doneMonth),
		"MovingCycleTime": movingCycle,
	})
}

// DayOverviewHandler renders the board as of one date, with the
// done-this-week metric alongside.
func (h *Handler) DayOverviewHandler(c *gin.Context) {
	at, ok := yearMonth(c)
	if !ok {
		c.String(http.StatusNotFound, "not found")
		return
	}
	ctx := c.Request.Context()

	backlog, err := h.Cards.Backlogged(ctx, at)
	if err != nil {
		h.serverError(c, err)
		return
	}
	inProgress, err := h.Cards.InProgress(ctx, at)
	if err != nil {
		h.serverError(c, err)
		return
	}
	doneWeek, err := h.Cards.DoneInWeek(ctx, at.Year(), at.Month(), at.Day())
	if err != nil {
		h.serverError(c, err)
		return
	}
	movingCycle, err := h.Cards.MovingCycleTime(ctx, at, 0)
	if err != nil {
		h.serverError(c, err)
		return
	}

	c.HTML(http.StatusOK, "overview_day.html", gin.H{
		"Date":            at,
		"Title":           at.Format("January 2, 2006"),
		"Backlog":         h.cardViews(backlog, at),
		"InProgress":      h.cardViews(inProgress, at),
		"DoneWeekCount":   len(doneWeek),
		"MovingCycleTime": movingCycle,
	})
}

// DoneHandler lists every finished card.
func (h *Handler) DoneHandler(c *gin.Context) {
	done, err := h.Cards.Done(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.HTML(http.StatusOK, "done.html", gin.H{"Done": done})
}

// DoneReportHandler emits a plain-text report of the cards finished in
// a given month.
func (h *Handler) DoneReportHandler(c *gin.Context) {
	at, ok := yearMonth(c)
	if !ok {
		c.String(http.StatusNotFound, "not found")
		return
	}
	done, err := h.Cards.DoneInMonth(c.Request.Context(), at.Year(), at.Month())
	if err != nil {
		h.serverError(c, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cards completed in %s\n\n", at.Format("January 2006"))
	for _, card := range done {
		fmt.Fprintf(&b, "%s: %s (done %s)\n", card.Key, card.Title, card.DoneDate.Format(displayDateFormat))
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(b.String()))
}
