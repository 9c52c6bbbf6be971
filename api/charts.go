package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kardboard/kardboard/internal/timeutil"
)

const defaultChartMonths = 6

// MonthCount is one bar of the throughput chart.
type MonthCount struct {
	Label string
	Count int
}

// ChartIndexHandler lists the available charts.
func (h *Handler) ChartIndexHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "chart_index.html", gin.H{})
}

// ThroughputChartHandler renders cards finished per month for the
// trailing N months (default 6).
func (h *Handler) ThroughputChartHandler(c *gin.Context) {
	months := monthsParam(c, defaultChartMonths)
	ctx := c.Request.Context()
	now := h.Now()

	series := make([]MonthCount, 0, months)
	for i := months - 1; i >= 0; i-- {
		at := now.AddDate(0, -i, 0)
		done, err := h.Cards.DoneInMonth(ctx, at.Year(), at.Month())
		if err != nil {
			h.serverError(c, err)
			return
		}
		series = append(series, MonthCount{
			Label: at.Format("Jan 2006"),
			Count: len(done),
		})
	}

	c.HTML(http.StatusOK, "chart_throughput.html", gin.H{
		"Months": months,
		"Series": series,
	})
}

// chartWindow resolves the [start, end] span for history charts: N
// months (default 6) ending at the from/:year/:month/:day params, or at
// today when absent.
func (h *Handler) chartWindow(c *gin.Context) (start, end time.Time) {
	months := monthsParam(c, defaultChartMonths)
	end = timeutil.StartOfDay(h.Now())
	if c.Param("year") != "" {
		if at, ok := yearMonth(c); ok {
			end = at
		}
	}
	return end.AddDate(0, -months, 0), end
}

// CycleChartHandler renders moving cycle and lead time history from the
// daily snapshots.
func (h *Handler) CycleChartHandler(c *gin.Context) {
	start, end := h.chartWindow(c)

	records, err := h.Records.Range(c.Request.Context(), start, end)
	if err != nil {
		h.serverError(c, err)
		return
	}

	c.HTML(http.StatusOK, "chart_cycle.html", gin.H{
		"Start":   start,
		"End":     end,
		"Records": records,
	})
}

// FlowChartHandler renders the cumulative flow of the board (backlog /
// in progress / done per day) from the daily snapshots.
func (h *Handler) FlowChartHandler(c *gin.Context) {
	start, end := h.chartWindow(c)

	records, err := h.Records.Range(c.Request.Context(), start, end)
	if err != nil {
		h.serverError(c, err)
		return
	}

	c.HTML(http.StatusOK, "chart_flow.html", gin.H{
		"Start":   start,
		"End":     end,
		"Records": records,
	})
}
