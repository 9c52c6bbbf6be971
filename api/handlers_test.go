package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kardboard/kardboard/database"
	"github.com/kardboard/kardboard/integrations"
	"github.com/kardboard/kardboard/internal/models"
	"github.com/spf13/viper"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

type testApp struct {
	handler *Handler
	router  *gin.Engine
	cards   *database.Cards
	records *database.DailyRecords
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	viper.Set("board.states", []string{"Todo", "Doing", "Done"})
	viper.Set("board.teams", []string{"Team 1", "Team 2"})
	t.Cleanup(func() {
		viper.Set("board.states", nil)
		viper.Set("board.teams", nil)
	})

	db := database.Init(filepath.Join(t.TempDir(), "test.db"))
	cards := database.NewCards(db)
	records := database.NewDailyRecords(db, cards)

	h := NewHandler(cards, records, integrations.NewTestHelper())
	h.Now = func() time.Time { return date(2011, 6, 15) }

	return &testApp{
		handler: h,
		router:  NewRouter(h, nil, "../templates/*.html"),
		cards:   cards,
		records: records,
	}
}

func (a *testApp) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) mustCreate(t *testing.T, c *models.Card) *models.Card {
	t.Helper()
	if c.Title == "" {
		c.Title = "Theres always money in the banana stand"
	}
	if err := a.cards.Create(context.Background(), c); err != nil {
		t.Fatalf("Create(%s): %v", c.Key, err)
	}
	return c
}

// seedDashboard populates the classic fixture: per team, cards that are
// backlogged, started, and finished around mid-June 2011.
func (a *testApp) seedDashboard(t *testing.T) {
	t.Helper()
	n := 0
	for team, count := range map[string]int{"Team 1": 5, "Team 2": 3} {
		for i := 0; i < count; i++ {
			n++
			a.mustCreate(t, &models.Card{
				Key: fmt.Sprintf("BACK-%d", n), Team: team,
				BacklogDate: date(2011, 6, 12),
			})
			a.mustCreate(t, &models.Card{
				Key: fmt.Sprintf("WIP-%d", n), Team: team,
				BacklogDate: date(2011, 6, 10),
				StartDate:   ptr(date(2011, 6, 12)),
			})
			a.mustCreate(t, &models.Card{
				Key: fmt.Sprintf("FIN-%d", n), Team: team,
				BacklogDate: date(2011, 6, 10),
				StartDate:   ptr(date(2011, 6, 12)),
				DoneDate:    ptr(date(2011, 6, 14)),
			})
		}
	}
}

func requiredForm() url.Values {
	return url.Values{
		"key":          {"CMSIF-199"},
		"title":        {"You gotta lock that down"},
		"backlog_date": {"06/11/2011"},
		"category":     {"Bug"},
		"state":        {"Doing"},
		"team":         {"Team 1"},
	}
}

func TestBoardPage(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	w := app.get(t, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, key := range []string{"BACK-1", "WIP-1", "FIN-1"} {
		if !strings.Contains(body, key) {
			t.Errorf("board page missing %s", key)
		}
	}
}

func TestBoardRecentDoneWindowCoversWholeDay(t *testing.T) {
	app := newTestApp(t)
	// A mid-morning clock must not shave the first day off the
	// recently-done week: a card finished at midnight exactly seven
	// days earlier still belongs on the board.
	app.handler.Now = func() time.Time {
		return time.Date(2011, 6, 15, 10, 30, 0, 0, time.UTC)
	}
	app.mustCreate(t, &models.Card{
		Key:         "FIN-OLD",
		BacklogDate: date(2011, 6, 1),
		StartDate:   ptr(date(2011, 6, 3)),
		DoneDate:    ptr(date(2011, 6, 8)),
	})

	w := app.get(t, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "FIN-OLD") {
		t.Error("board page missing card done seven days ago")
	}
}

func TestTeamPage(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	w := app.get(t, "/team/team-1/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Team 1") {
		t.Error("team page missing team name")
	}

	if w := app.get(t, "/team/team-9/"); w.Code != http.StatusNotFound {
		t.Errorf("unknown team status = %d, want 404", w.Code)
	}
}

func TestTeamPageOnlyShowsTeamCards(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	body := app.get(t, "/team/team-2/").Body.String()
	if strings.Contains(body, "BACK-1") {
		t.Error("team 2 page leaked a team 1 card")
	}
}

func TestDayOverview(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	w := app.get(t, "/overview/2011/6/15/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()

	ctx := context.Background()
	backlog, err := app.cards.Backlogged(ctx, date(2011, 6, 15))
	if err != nil {
		t.Fatal(err)
	}
	wip, err := app.cards.InProgress(ctx, date(2011, 6, 15))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range append(backlog, wip...) {
		if !strings.Contains(body, c.Key) {
			t.Errorf("day overview missing %s", c.Key)
		}
	}

	// All 8 finished cards land in the week of June 12-18.
	doneWeek, err := app.cards.DoneInWeek(ctx, 2011, 6, 15)
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf(`<p class="value">%d</p>`, len(doneWeek))
	if !strings.Contains(body, want) {
		t.Errorf("day overview missing %q", want)
	}
}

func TestMonthOverview(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	w := app.get(t, "/overview/2011/6/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()

	ctx := context.Background()
	doneMonth, err := app.cards.DoneInMonth(ctx, 2011, 6)
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf(`<p class="value">%d</p>`, len(doneMonth)); !strings.Contains(body, want) {
		t.Errorf("month overview missing done count %q", want)
	}

	monthEnd := date(2011, 6, 30)
	cycle, err := app.cards.MovingCycleTime(ctx, monthEnd, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf(`<p class="value">%d</p>`, cycle); !strings.Contains(body, want) {
		t.Errorf("month overview missing moving cycle time %q", want)
	}
}

func TestCardDetailPage(t *testing.T) {
	app := newTestApp(t)
	card := app.mustCreate(t, &models.Card{
		Key:         "CMSAD-1",
		BacklogDate: date(2011, 6, 11),
	})

	w := app.get(t, "/card/CMSAD-1/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		card.Title,
		card.Key,
		"06/11/2011",
		"Start date:",
		"Done date:",
		"/card/CMSAD-1/edit/",
		"/card/CMSAD-1/delete/",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("detail page missing %q", want)
		}
	}

	if w := app.get(t, "/card/NOPE-1/"); w.Code != http.StatusNotFound {
		t.Errorf("missing card status = %d, want 404", w.Code)
	}
}

func TestAddCard(t *testing.T) {
	app := newTestApp(t)

	w := app.get(t, "/card/add/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<form") {
		t.Fatalf("add form status = %d", w.Code)
	}

	w = app.postForm(t, "/card/add/", requiredForm())
	if w.Code != http.StatusFound {
		t.Fatalf("add status = %d, want 302", w.Code)
	}

	card, err := app.cards.GetByKey(context.Background(), "CMSIF-199")
	if err != nil {
		t.Fatalf("card not created: %v", err)
	}
	if card.Title != "You gotta lock that down" {
		t.Errorf("title = %q", card.Title)
	}
	if card.BacklogDate.Month() != 6 || card.BacklogDate.Day() != 11 || card.BacklogDate.Year() != 2011 {
		t.Errorf("backlog date = %s", card.BacklogDate)
	}
}

func TestAddCardPrefillsKeyFromQuery(t *testing.T) {
	app := newTestApp(t)
	w := app.get(t, "/card/add/?key=CMSCMS-127")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `value="CMSCMS-127"`) {
		t.Error("add form did not prefill the key")
	}
}

func TestAddCardWithoutTitleUsesTicketSystem(t *testing.T) {
	app := newTestApp(t)

	form := requiredForm()
	form.Del("title")
	w := app.postForm(t, "/card/add/", form)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}

	card, err := app.cards.GetByKey(context.Background(), "CMSIF-199")
	if err != nil {
		t.Fatal(err)
	}
	if card.Title != "Dummy Title from Dummy Ticket System" {
		t.Errorf("title = %q", card.Title)
	}
}

func TestAddDuplicateCard(t *testing.T) {
	app := newTestApp(t)
	app.mustCreate(t, &models.Card{Key: "CMSIF-199", BacklogDate: date(2011, 6, 11)})

	w := app.postForm(t, "/card/add/", requiredForm())
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate add status = %d, want 200 re-render", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already exists") {
		t.Error("duplicate add did not report the key error")
	}
}

func TestEditCard(t *testing.T) {
	app := newTestApp(t)
	card := app.mustCreate(t, &models.Card{Key: "CMSIF-199", BacklogDate: date(2011, 6, 11)})

	w := app.get(t, "/card/CMSIF-199/edit/")
	if w.Code != http.StatusOK {
		t.Fatalf("edit form status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, card.Key) || !strings.Contains(body, card.Title) {
		t.Error("edit form not prefilled")
	}

	form := requiredForm()
	form.Set("backlog_date", "06/11/1911")
	w = app.postForm(t, "/card/CMSIF-199/edit/", form)
	if w.Code != http.StatusFound {
		t.Fatalf("edit status = %d, want 302", w.Code)
	}

	got, err := app.cards.GetByKey(context.Background(), "CMSIF-199")
	if err != nil {
		t.Fatal(err)
	}
	if got.BacklogDate.Year() != 1911 || got.BacklogDate.Month() != 6 || got.BacklogDate.Day() != 11 {
		t.Errorf("backlog date = %s, want 1911-06-11", got.BacklogDate)
	}
}

func TestDeleteCard(t *testing.T) {
	app := newTestApp(t)
	app.mustCreate(t, &models.Card{Key: "CMSIF-199", BacklogDate: date(2011, 6, 11)})

	w := app.get(t, "/card/CMSIF-199/delete/")
	if w.Code != http.StatusOK {
		t.Fatalf("delete form status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `value="Cancel"`) || !strings.Contains(body, `value="Delete"`) {
		t.Error("delete form missing buttons")
	}

	w = app.postForm(t, "/card/CMSIF-199/delete/", url.Values{"cancel": {"Cancel"}})
	if w.Code != http.StatusFound {
		t.Fatalf("cancel status = %d, want 302", w.Code)
	}
	if _, err := app.cards.GetByKey(context.Background(), "CMSIF-199"); err != nil {
		t.Fatal("card deleted despite cancel")
	}

	w = app.postForm(t, "/card/CMSIF-199/delete/", url.Values{"delete": {"Delete"}})
	if w.Code != http.StatusFound {
		t.Fatalf("delete status = %d, want 302", w.Code)
	}
	if _, err := app.cards.GetByKey(context.Background(), "CMSIF-199"); err != database.ErrCardNotFound {
		t.Error("card survived delete")
	}
}

func TestExportCSV(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 10; i++ {
		app.mustCreate(t, &models.Card{
			Key:         fmt.Sprintf("CMSAD-%d", i+1),
			BacklogDate: date(2011, 6, 11),
		})
	}

	w := app.get(t, "/card/export/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	body := w.Body.String()
	for i := 0; i < 10; i++ {
		if key := fmt.Sprintf("CMSAD-%d", i+1); !strings.Contains(body, key) {
			t.Errorf("export missing %s", key)
		}
	}
}

func TestDonePage(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	w := app.get(t, "/done/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	done, err := app.cards.Done(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	body := w.Body.String()
	for _, c := range done {
		if !strings.Contains(body, c.Key) {
			t.Errorf("done page missing %s", c.Key)
		}
	}
}

func TestDoneReport(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	w := app.get(t, "/done/report/2011/6/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	done, err := app.cards.DoneInMonth(context.Background(), 2011, 6)
	if err != nil {
		t.Fatal(err)
	}
	body := w.Body.String()
	for _, c := range done {
		if !strings.Contains(body, c.Key) {
			t.Errorf("report missing %s", c.Key)
		}
	}
}

func TestQuickJump(t *testing.T) {
	app := newTestApp(t)
	app.mustCreate(t, &models.Card{Key: "CMSAD-1", BacklogDate: date(2011, 6, 11)})

	w := app.get(t, "/quick/?key=CMSAD-1")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "/card/CMSAD-1/edit/") {
		t.Errorf("Location = %q", loc)
	}

	// Case-insensitive match redirects to the canonical uppercase key.
	w = app.get(t, "/quick/?key=cmsad-1")
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "/card/CMSAD-1/edit/") {
		t.Errorf("lowercase Location = %q", loc)
	}

	w = app.get(t, "/quick/?key=CMSCMSCMS-127")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "/card/add/?key=CMSCMSCMS-127") {
		t.Errorf("missing-key Location = %q", loc)
	}
}

func TestChartPages(t *testing.T) {
	app := newTestApp(t)
	app.seedDashboard(t)

	// Snapshots for the first half of 2011 feed the history charts.
	if err := app.records.BatchUpdate(context.Background(), 180, date(2011, 6, 30)); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/chart/", "/chart/throughput/", "/chart/throughput/3/", "/chart/cycle/", "/chart/flow/", "/chart/flow/3/"} {
		if w := app.get(t, path); w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}

func TestCycleChartWindow(t *testing.T) {
	app := newTestApp(t)

	w := app.get(t, "/chart/cycle/from/2011/7/1/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// Six months back from July 1st.
	if !strings.Contains(w.Body.String(), "01/01/2011") {
		t.Error("cycle chart missing the window start date")
	}
}

func TestRobots(t *testing.T) {
	app := newTestApp(t)
	w := app.get(t, "/robots.txt")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "User-agent") {
		t.Error("robots.txt missing User-agent")
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	w := app.get(t, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %q", w.Body.String())
	}
}
