package api

import (
	"html/template"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/kardboard/kardboard/internal/timeutil"
	"go.uber.org/zap"
)

const displayDateFormat = "01/02/2006"

// NewRouter builds the gin engine with every route wired up. logger may
// be nil (tests); templatesGlob points at the HTML template directory.
func NewRouter(h *Handler, logger *zap.Logger, templatesGlob string) *gin.Engine {
	router := gin.New()
	if logger != nil {
		router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
		router.Use(ginzap.RecoveryWithZap(logger, true))
	}

	router.SetFuncMap(template.FuncMap{
		"fdate": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format(displayDateFormat)
		},
		"fday": func(t time.Time) string { return t.Format(displayDateFormat) },
		"slug": timeutil.Slugify,
	})
	router.LoadHTMLGlob(templatesGlob)

	router.GET("/", h.BoardHandler)
	router.GET("/team/:slug/", h.TeamBoardHandler)
	router.GET("/overview/:year/:month/", h.MonthOverviewHandler)
	router.GET("/overview/:year/:month/:day/", h.DayOverviewHandler)

	router.GET("/card/add/", h.AddCardFormHandler)
	router.POST("/card/add/", h.AddCardHandler)
	router.GET("/card/export/", h.ExportCSVHandler)
	router.GET("/card/:key/", h.CardDetailHandler)
	router.GET("/card/:key/edit/", h.EditCardFormHandler)
	router.POST("/card/:key/edit/", h.EditCardHandler)
	router.GET("/card/:key/delete/", h.DeleteCardFormHandler)
	router.POST("/card/:key/delete/", h.DeleteCardHandler)

	router.GET("/done/", h.DoneHandler)
	router.GET("/done/report/:year/:month/", h.DoneReportHandler)

	router.GET("/quick/", h.QuickJumpHandler)

	router.GET("/chart/", h.ChartIndexHandler)
	router.GET("/chart/throughput/", h.ThroughputChartHandler)
	router.GET("/chart/throughput/:months/", h.ThroughputChartHandler)
	router.GET("/chart/cycle/", h.CycleChartHandler)
	router.GET("/chart/cycle/:months/", h.CycleChartHandler)
	router.GET("/chart/cycle/from/:year/:month/:day/", h.CycleChartHandler)
	router.GET("/chart/cycle/:months/from/:year/:month/:day/", h.CycleChartHandler)
	router.GET("/chart/flow/", h.FlowChartHandler)
	router.GET("/chart/flow/:months/", h.FlowChartHandler)

	router.GET("/robots.txt", h.RobotsHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/health", h.HealthCheckHandler)
	}

	return router
}
