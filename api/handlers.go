package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kardboard/kardboard/database"
	"github.com/kardboard/kardboard/integrations"
)

type Handler struct {
	Cards   *database.Cards
	Records *database.DailyRecords
	Ticket  integrations.TicketHelper

	// Now is the clock the dashboards use. Overridable in tests.
	Now func() time.Time
}

func NewHandler(cards *database.Cards, records *database.DailyRecords, ticket integrations.TicketHelper) *Handler {
	return &Handler{
		Cards:   cards,
		Records: records,
		Ticket:  ticket,
		Now:     time.Now,
	}
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) RobotsHandler(c *gin.Context) {
	c.String(http.StatusOK, "User-agent: *\nDisallow: /\n")
}

// QuickJumpHandler bounces a ?key= query to the card's edit page when
// the key exists (matched case-insensitively), or to the add form with
// the key prefilled when it does not.
func (h *Handler) QuickJumpHandler(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}

	card, err := h.Cards.GetByKey(c.Request.Context(), key)
	if err != nil {
		c.Redirect(http.StatusFound, "/card/add/?key="+url.QueryEscape(key))
		return
	}
	c.Redirect(http.StatusFound, "/card/"+card.Key+"/edit/")
}

// yearMonth pulls the :year and :month params; :day is optional and
// defaults to the first of the month.
func yearMonth(c *gin.Context) (time.Time, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	day := 1
	if d := c.Param("day"); d != "" {
		day, err = strconv.Atoi(d)
		if err != nil || day < 1 || day > 31 {
			return time.Time{}, false
		}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func monthsParam(c *gin.Context, fallback int) int {
	raw := c.Param("months")
	if raw == "" {
		return fallback
	}
	months, err := strconv.Atoi(raw)
	if err != nil || months < 1 {
		return fallback
	}
	return months
}
