package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kardboard/kardboard/internal/models"
)

// JIRAClient looks issues up over JIRA's REST API and caches what the
// dashboards need (title, browse URL) onto cards.
type JIRAClient struct {
	Client   *http.Client
	BaseURL  string
	Username string
	Password string
}

func NewJIRAClient(baseURL, username, password string) *JIRAClient {
	return &JIRAClient{
		Client:   &http.Client{Timeout: 15 * time.Second},
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
	}
}

// GetTitle fetches the issue summary for a card key.
func (jc *JIRAClient) GetTitle(ctx context.Context, key string) (string, error) {
	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary", jc.BaseURL, url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create issue request: %w", err)
	}
	if jc.Username != "" {
		req.SetBasicAuth(jc.Username, jc.Password)
	}

	resp, err := jc.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch issue %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("JIRA API returned non-200 status for %s: %s, body: %s", key, resp.Status, string(bodyBytes))
	}

	var issue struct {
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return "", fmt.Errorf("failed to decode JIRA response: %w", err)
	}

	return issue.Fields.Summary, nil
}

// TicketURL returns the browse URL for a card key.
func (jc *JIRAClient) TicketURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", jc.BaseURL, key)
}

// Update refreshes the cached ticket data on a card. The caller is
// responsible for persisting the card afterwards.
func (jc *JIRAClient) Update(ctx context.Context, card *models.Card) error {
	title, err := jc.GetTitle(ctx, card.Key)
	if err != nil {
		return err
	}
	now := time.Now()
	card.TicketTitle = title
	card.TicketURL = jc.TicketURL(card.Key)
	card.TicketUpdatedAt = &now
	return nil
}
