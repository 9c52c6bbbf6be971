package integrations

import (
	"context"
	"fmt"
	"time"

	"github.com/kardboard/kardboard/internal/models"
	"github.com/spf13/viper"
)

// TicketHelper is the contract a ticket-system adapter fulfils: resolve
// a card key to a title and browse URL, and refresh the cached ticket
// data on a card.
type TicketHelper interface {
	GetTitle(ctx context.Context, key string) (string, error)
	TicketURL(key string) string
	Update(ctx context.Context, card *models.Card) error
}

// NewTicketHelper picks the adapter from configuration: a JIRA client
// when jira.base_url is set, otherwise the local dummy helper.
func NewTicketHelper() TicketHelper {
	baseURL := viper.GetString("jira.base_url")
	if baseURL == "" {
		return NewTestHelper()
	}
	return NewJIRAClient(baseURL, viper.GetString("jira.username"), viper.GetString("jira.password"))
}

// TestHelper is a deterministic in-process ticket system used in tests
// and in deployments with no ticket system configured.
type TestHelper struct {
	BaseURL string
}

func NewTestHelper() *TestHelper {
	return &TestHelper{BaseURL: "http://ticket.example.com"}
}

func (h *TestHelper) GetTitle(ctx context.Context, key string) (string, error) {
	return "Dummy Title from Dummy Ticket System", nil
}

func (h *TestHelper) TicketURL(key string) string {
	return fmt.Sprintf("%s/ticket/%s", h.BaseURL, key)
}

func (h *TestHelper) Update(ctx context.Context, card *models.Card) error {
	title, err := h.GetTitle(ctx, card.Key)
	if err != nil {
		return err
	}
	now := time.Now()
	card.TicketTitle = title
	card.TicketURL = h.TicketURL(card.Key)
	card.TicketUpdatedAt = &now
	return nil
}
