package api

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kardboard/kardboard/database"
	"github.com/kardboard/kardboard/internal/models"
	"go.uber.org/zap"
)

// CardDetailHandler renders one card with its lifecycle dates and
// ticket link.
func (h *Handler) CardDetailHandler(c *gin.Context) {
	card, err := h.Cards.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, database.ErrCardNotFound) {
			c.String(http.StatusNotFound, "no such card")
			return
		}
		h.serverError(c, err)
		return
	}

	view := h.cardViews([]models.Card{*card}, h.Now())[0]
	c.HTML(http.StatusOK, "card_detail.html", gin.H{
		"Card": view,
	})
}

func (h *Handler) renderCardForm(c *gin.Context, status int, data gin.H) {
	data["States"] = models.States()
	data["Teams"] = models.Teams()
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = map[string]string{}
	}
	c.HTML(status, "card_form.html", data)
}

// AddCardFormHandler renders the empty create form; ?key= prefills the
// key field (the quick-jump entry point).
func (h *Handler) AddCardFormHandler(c *gin.Context) {
	form := &CardForm{Key: strings.TrimSpace(c.Query("key"))}
	h.renderCardForm(c, http.StatusOK, gin.H{
		"Form":   form,
		"Action": "/card/add/",
		"Title":  "Add card",
	})
}

// AddCardHandler creates a card from the posted form. A blank title is
// filled in from the ticket system.
func (h *Handler) AddCardHandler(c *gin.Context) {
	var form CardForm
	if err := c.ShouldBind(&form); err != nil {
		zap.L().Warn("Could not bind card form", zap.Error(err))
		c.String(http.StatusBadRequest, "invalid form payload")
		return
	}

	card := &models.Card{}
	errs := form.Apply(card)

	if card.Title == "" && card.Key != "" {
		if title, err := h.Ticket.GetTitle(c.Request.Context(), card.Key); err == nil {
			card.Title = title
			form.Title = title
		} else {
			zap.L().Warn("Ticket system lookup failed", zap.String("key", card.Key), zap.Error(err))
			errs["title"] = "title is required when the ticket system has no answer"
		}
	}

	if len(errs) == 0 {
		card.TicketURL = h.Ticket.TicketURL(card.Key)
		err := h.Cards.Create(c.Request.Context(), card)
		switch {
		case err == nil:
			c.Redirect(http.StatusFound, "/card/"+card.Key+"/")
			return
		case errors.Is(err, database.ErrDuplicateKey):
			errs["key"] = "a card with this key already exists"
		default:
			h.serverError(c, err)
			return
		}
	}

	h.renderCardForm(c, http.StatusOK, gin.H{
		"Form":   &form,
		"Action": "/card/add/",
		"Title":  "Add card",
		"Errors": errs,
	})
}

// EditCardFormHandler renders the edit form prefilled from the card.
func (h *Handler) EditCardFormHandler(c *gin.Context) {
	card, err := h.Cards.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, database.ErrCardNotFound) {
			c.String(http.StatusNotFound, "no such card")
			return
		}
		h.serverError(c, err)
		return
	}
	h.renderCardForm(c, http.StatusOK, gin.H{
		"Form":   FormFromCard(card),
		"Action": "/card/" + card.Key + "/edit/",
		"Title":  "Edit " + card.Key,
	})
}

// EditCardHandler applies the posted form to an existing card.
func (h *Handler) EditCardHandler(c *gin.Context) {
	card, err := h.Cards.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, database.ErrCardNotFound) {
			c.String(http.StatusNotFound, "no such card")
			return
		}
		h.serverError(c, err)
		return
	}

	var form CardForm
	if err := c.ShouldBind(&form); err != nil {
		zap.L().Warn("Could not bind card form", zap.Error(err))
		c.String(http.StatusBadRequest, "invalid form payload")
		return
	}

	errs := form.Apply(card)
	if len(errs) == 0 {
		if err := h.Cards.Save(c.Request.Context(), card); err != nil {
			h.serverError(c, err)
			return
		}
		c.Redirect(http.StatusFound, "/card/"+card.Key+"/")
		return
	}

	h.renderCardForm(c, http.StatusOK, gin.H{
		"Form":   &form,
		"Action": "/card/" + c.Param("key") + "/edit/",
		"Title":  "Edit " + c.Param("key"),
		"Errors": errs,
	})
}

// DeleteCardFormHandler renders the delete confirmation page.
func (h *Handler) DeleteCardFormHandler(c *gin.Context) {
	card, err := h.Cards.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, database.ErrCardNotFound) {
			c.String(http.StatusNotFound, "no such card")
			return
		}
		h.serverError(c, err)
		return
	}
	c.HTML(http.StatusOK, "card_delete.html", gin.H{"Card": card})
}

// DeleteCardHandler deletes on the Delete button and bounces back to
// the card on Cancel.
func (h *Handler) DeleteCardHandler(c *gin.Context) {
	key := c.Param("key")
	if c.PostForm("cancel") != "" {
		c.Redirect(http.StatusFound, "/card/"+strings.ToUpper(key)+"/")
		return
	}
	if c.PostForm("delete") == "" {
		c.String(http.StatusBadRequest, "choose Delete or Cancel")
		return
	}

	if err := h.Cards.Delete(c.Request.Context(), key); err != nil {
		if errors.Is(err, database.ErrCardNotFound) {
			c.String(http.StatusNotFound, "no such card")
			return
		}
		h.serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// ExportCSVHandler streams every card as CSV. Served as text/plain so
// browsers render it inline.
func (h *Handler) ExportCSVHandler(c *gin.Context) {
	cards, err := h.Cards.All(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Key", "Title", "Team", "Category", "State", "Backlog Date", "Start Date", "Done Date", "Cycle Time", "Lead Time"}
	if err := w.Write(header); err != nil {
		h.serverError(c, err)
		return
	}
	for _, card := range cards {
		row := []string{
			card.Key,
			card.Title,
			card.Team,
			card.Category,
			card.State,
			card.BacklogDate.Format(displayDateFormat),
			formatOptionalDate(card.StartDate),
			formatOptionalDate(card.DoneDate),
			formatOptionalInt(card.CycleTime),
			formatOptionalInt(card.LeadTime),
		}
		if err := w.Write(row); err != nil {
			h.serverError(c, err)
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.serverError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(displayDateFormat)
}

func formatOptionalInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
