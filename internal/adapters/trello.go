package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"golang.org/x/time/rate"
)

const (
	trelloProvider = "trello"

	// DefaultTrelloBaseURL is the public Trello REST API root
	DefaultTrelloBaseURL = "https://api.trello.com/1"
)

// TrelloAdapter fetches board activity via the Trello REST API.
// Authentication is key+token passed as query parameters.
type TrelloAdapter struct {
	baseURL        string
	requestTimeout time.Duration
	limiter        *rate.Limiter
	httpClient     *http.Client
	logger         arbor.ILogger
}

// NewTrelloAdapter creates a Trello adapter from application config
func NewTrelloAdapter(config *common.Config, logger arbor.ILogger) *TrelloAdapter {
	baseURL := config.Trello.BaseURL
	if baseURL == "" {
		baseURL = DefaultTrelloBaseURL
	}
	rps := config.Trello.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := config.Trello.Burst
	if burst <= 0 {
		burst = 5
	}

	requestTimeout := common.ParseDurationOr(config.Sync.RequestTimeout, 10*time.Second)

	return &TrelloAdapter{
		baseURL:        baseURL,
		requestTimeout: requestTimeout,
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		httpClient:     &http.Client{Timeout: requestTimeout},
		logger:         logger,
	}
}

// Type returns the provider type this adapter serves
func (a *TrelloAdapter) Type() models.IntegrationType {
	return models.IntegrationTypeTrello
}

// ValidateConfig checks board ID and credentials before any network call
func (a *TrelloAdapter) ValidateConfig(integration *models.Integration) error {
	cfg, err := integration.ParseConfig()
	if err != nil {
		return NewConfigError(trelloProvider, "%v", err)
	}
	if _, ok := cfg.(*models.TrelloIntegrationConfig); !ok {
		return NewConfigError(trelloProvider, "config is not a trello config")
	}
	if integration.Credentials.APIKey == "" || integration.Credentials.Token == "" {
		return NewConfigError(trelloProvider, "api_key and token are required")
	}
	return nil
}

// FetchActivity retrieves the board, its lists, and cards created in the window
func (a *TrelloAdapter) FetchActivity(ctx context.Context, integration *models.Integration, window time.Duration) (*models.Activity, error) {
	if err := a.ValidateConfig(integration); err != nil {
		return nil, err
	}

	cfg, _ := integration.ParseConfig()
	trelloCfg := cfg.(*models.TrelloIntegrationConfig)
	creds := integration.Credentials
	since := time.Now().UTC().Add(-window)

	board, err := a.fetchBoard(ctx, creds, trelloCfg.BoardID)
	if err != nil {
		return nil, err
	}

	lists, err := a.fetchLists(ctx, creds, trelloCfg.BoardID)
	if err != nil {
		return nil, err
	}

	cards, err := a.fetchCards(ctx, creds, trelloCfg.BoardID, since)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().
		Str("integration_id", integration.ID).
		Str("board_id", trelloCfg.BoardID).
		Int("lists", len(lists)).
		Int("cards", len(cards)).
		Msg("Trello activity fetched")

	return &models.Activity{
		Trello: &models.TrelloActivity{
			Board: *board,
			Lists: lists,
			Cards: cards,
		},
	}, nil
}

type trelloBoard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type trelloList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type trelloCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IDList string `json:"idList"`
	Closed bool   `json:"closed"`
	Due    string `json:"due"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Members []struct {
		FullName string `json:"fullName"`
	} `json:"members"`
	Badges struct {
		CheckItems        int `json:"checkItems"`
		CheckItemsChecked int `json:"checkItemsChecked"`
	} `json:"badges"`
}

func (a *TrelloAdapter) fetchBoard(ctx context.Context, creds models.Credentials, boardID string) (*models.TrelloBoard, error) {
	var board trelloBoard
	if err := a.get(ctx, creds, "/boards/"+boardID, nil, &board); err != nil {
		return nil, err
	}
	return &models.TrelloBoard{ID: board.ID, Name: board.Name}, nil
}

func (a *TrelloAdapter) fetchLists(ctx context.Context, creds models.Credentials, boardID string) ([]models.TrelloList, error) {
	var lists []trelloList
	if err := a.get(ctx, creds, "/boards/"+boardID+"/lists", nil, &lists); err != nil {
		return nil, err
	}

	result := make([]models.TrelloList, 0, len(lists))
	for _, l := range lists {
		result = append(result, models.TrelloList{ID: l.ID, Name: l.Name})
	}
	return result, nil
}

// fetchCards lists every card on the board, then filters to those created in
// the window. Creation time comes from the card ID: the first 8 hex chars
// encode the unix timestamp.
func (a *TrelloAdapter) fetchCards(ctx context.Context, creds models.Credentials, boardID string, since time.Time) ([]models.TrelloCard, error) {
	params := url.Values{}
	params.Set("fields", "name,idList,closed,due,labels,badges")
	params.Set("members", "true")
	params.Set("member_fields", "fullName")

	var cards []trelloCard
	if err := a.get(ctx, creds, "/boards/"+boardID+"/cards", params, &cards); err != nil {
		return nil, err
	}

	result := make([]models.TrelloCard, 0, len(cards))
	for _, c := range cards {
		if created, ok := cardCreatedAt(c.ID); ok && created.Before(since) {
			continue
		}

		record := models.TrelloCard{
			ID:             c.ID,
			Name:           c.Name,
			ListID:         c.IDList,
			Closed:         c.Closed,
			ChecklistItems: c.Badges.CheckItems,
			CheckedItems:   c.Badges.CheckItemsChecked,
		}
		if c.Due != "" {
			if t, err := time.Parse(time.RFC3339, c.Due); err == nil {
				record.Due = &t
			}
		}
		for _, label := range c.Labels {
			if label.Name != "" {
				record.Labels = append(record.Labels, label.Name)
			}
		}
		for _, member := range c.Members {
			if member.FullName != "" {
				record.Members = append(record.Members, member.FullName)
			}
		}
		result = append(result, record)
	}

	return result, nil
}

// cardCreatedAt extracts the creation time embedded in a Trello object ID
func cardCreatedAt(id string) (time.Time, bool) {
	if len(id) < 8 {
		return time.Time{}, false
	}
	seconds, err := strconv.ParseInt(id[:8], 16, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0).UTC(), true
}

// get performs a GET request with key/token auth appended as query parameters
func (a *TrelloAdapter) get(ctx context.Context, creds models.Credentials, path string, params url.Values, result interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return classifyTransportError(trelloProvider, err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("key", creds.APIKey)
	params.Set("token", creds.Token)

	reqURL := a.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return NewConfigError(trelloProvider, "failed to build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(trelloProvider, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		a.logger.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Trello request failed")

		if resp.StatusCode == http.StatusTooManyRequests {
			return NewRateLimitError(trelloProvider, parseRetryAfter(resp))
		}
		if mapped := classifyHTTPStatus(trelloProvider, resp.StatusCode, string(body)); mapped != nil {
			return mapped
		}
	}
	if readErr != nil {
		return NewNetworkError(trelloProvider, readErr)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return NewNetworkError(trelloProvider, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

// Ensure interface compliance
var _ interfaces.Adapter = (*TrelloAdapter)(nil)
