package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"golang.org/x/time/rate"
)

const (
	jiraProvider = "jira"

	// jiraTimeFormat is Jira's REST timestamp layout
	jiraTimeFormat = "2006-01-02T15:04:05.000-0700"

	// storyPointsField is the default custom field carrying story point estimates
	storyPointsField = "customfield_10002"
)

// JiraAdapter fetches project activity via the Jira REST and Agile APIs
type JiraAdapter struct {
	pageSize       int
	pageDelay      time.Duration
	requestTimeout time.Duration
	maxPages       int
	allowTestURLs  bool
	limiter        *rate.Limiter
	httpClient     *http.Client
	logger         arbor.ILogger
}

// NewJiraAdapter creates a Jira adapter from application config
func NewJiraAdapter(config *common.Config, logger arbor.ILogger) *JiraAdapter {
	pageSize := config.Jira.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	rps := config.Jira.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := config.Jira.Burst
	if burst <= 0 {
		burst = 5
	}

	requestTimeout := common.ParseDurationOr(config.Sync.RequestTimeout, 10*time.Second)

	return &JiraAdapter{
		pageSize:       pageSize,
		pageDelay:      common.ParseDurationOr(config.Jira.PageDelay, 300*time.Millisecond),
		requestTimeout: requestTimeout,
		maxPages:       config.Sync.MaxPages,
		allowTestURLs:  config.AllowTestURLs(),
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		httpClient:     &http.Client{Timeout: requestTimeout},
		logger:         logger,
	}
}

// Type returns the provider type this adapter serves
func (a *JiraAdapter) Type() models.IntegrationType {
	return models.IntegrationTypeJira
}

// ValidateConfig checks base URL, project key and credentials before any network call
func (a *JiraAdapter) ValidateConfig(integration *models.Integration) error {
	cfg, err := integration.ParseConfig()
	if err != nil {
		return NewConfigError(jiraProvider, "%v", err)
	}
	jiraCfg, ok := cfg.(*models.JiraIntegrationConfig)
	if !ok {
		return NewConfigError(jiraProvider, "config is not a jira config")
	}

	parsed, err := url.Parse(jiraCfg.BaseURL)
	if err != nil || parsed.Host == "" {
		return NewConfigError(jiraProvider, "invalid base URL %q", jiraCfg.BaseURL)
	}
	if parsed.Scheme != "https" && !(parsed.Scheme == "http" && a.allowTestURLs) {
		return NewConfigError(jiraProvider, "base URL must use https, got %q", jiraCfg.BaseURL)
	}

	if integration.Credentials.Username == "" || integration.Credentials.Token == "" {
		return NewConfigError(jiraProvider, "username and token are required")
	}
	return nil
}

// FetchActivity retrieves the window's issues plus best-effort board and
// sprint data. Agile API failures degrade to SprintDataAvailable=false
// instead of failing the sync.
func (a *JiraAdapter) FetchActivity(ctx context.Context, integration *models.Integration, window time.Duration) (*models.Activity, error) {
	if err := a.ValidateConfig(integration); err != nil {
		return nil, err
	}

	cfg, _ := integration.ParseConfig()
	jiraCfg := cfg.(*models.JiraIntegrationConfig)
	baseURL := strings.TrimSuffix(jiraCfg.BaseURL, "/")
	creds := integration.Credentials

	windowDays := int(window.Hours() / 24)
	if windowDays < 1 {
		windowDays = 1
	}

	issues, err := a.searchIssues(ctx, baseURL, creds, jiraCfg.ProjectKey, windowDays)
	if err != nil {
		return nil, err
	}

	activity := &models.JiraActivity{
		Issues:              issues,
		SprintDataAvailable: false,
	}

	// Sprint lookup is best-effort: many projects have no board, and a
	// missing board must not fail the whole sync.
	boards, sprints, err := a.fetchBoardsAndSprints(ctx, baseURL, creds, jiraCfg)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("integration_id", integration.ID).
			Str("project", jiraCfg.ProjectKey).
			Msg("Sprint data unavailable, continuing without it")
	} else {
		activity.Boards = boards
		activity.Sprints = sprints
		activity.SprintDataAvailable = true
	}

	a.logger.Debug().
		Str("integration_id", integration.ID).
		Str("project", jiraCfg.ProjectKey).
		Int("issues", len(activity.Issues)).
		Bool("sprint_data", activity.SprintDataAvailable).
		Msg("Jira activity fetched")

	return &models.Activity{Jira: activity}, nil
}

// jiraSearchResponse is the shape of /rest/api/2/search
type jiraSearchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Created        string   `json:"created"`
		ResolutionDate string   `json:"resolutiondate"`
		StoryPoints    *float64 `json:"customfield_10002"`
	} `json:"fields"`
}

// searchIssues pages through the JQL search results for the window
func (a *JiraAdapter) searchIssues(ctx context.Context, baseURL string, creds models.Credentials, projectKey string, windowDays int) ([]models.JiraIssue, error) {
	jql := fmt.Sprintf("project = %s AND created >= %s ORDER BY created DESC",
		projectKey, common.FormatRelativeDays(windowDays))

	var all []models.JiraIssue
	startAt := 0

	for page := 0; page < a.maxPages; page++ {
		params := url.Values{}
		params.Set("jql", jql)
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", strconv.Itoa(a.pageSize))
		params.Set("fields", "issuetype,status,assignee,created,resolutiondate,"+storyPointsField)

		var result jiraSearchResponse
		if err := a.get(ctx, baseURL, creds, "/rest/api/2/search", params, &result); err != nil {
			return nil, err
		}

		for _, issue := range result.Issues {
			record := models.JiraIssue{
				Key:    issue.Key,
				Type:   issue.Fields.IssueType.Name,
				Status: issue.Fields.Status.Name,
			}
			if issue.Fields.Assignee != nil {
				record.Assignee = issue.Fields.Assignee.DisplayName
			}
			record.StoryPoints = issue.Fields.StoryPoints
			if t, err := time.Parse(jiraTimeFormat, issue.Fields.Created); err == nil {
				record.CreatedAt = &t
			}
			if issue.Fields.ResolutionDate != "" {
				if t, err := time.Parse(jiraTimeFormat, issue.Fields.ResolutionDate); err == nil {
					record.ResolvedAt = &t
				}
			}
			all = append(all, record)
		}

		startAt += len(result.Issues)
		if len(result.Issues) < a.pageSize || startAt >= result.Total {
			break
		}

		time.Sleep(a.pageDelay)
	}

	return all, nil
}

// jiraBoardList is the shape of /rest/agile/1.0 paged list responses
type jiraBoardList struct {
	Values []struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		State string `json:"state,omitempty"`
	} `json:"values"`
	IsLast bool `json:"isLast"`
}

// fetchBoardsAndSprints resolves the project's board (configured ID or first
// match) and lists its sprints
func (a *JiraAdapter) fetchBoardsAndSprints(ctx context.Context, baseURL string, creds models.Credentials, cfg *models.JiraIntegrationConfig) ([]models.JiraBoard, []models.JiraSprint, error) {
	var boards []models.JiraBoard
	boardID := cfg.BoardID

	if boardID == 0 {
		params := url.Values{}
		params.Set("projectKeyOrId", cfg.ProjectKey)

		var list jiraBoardList
		if err := a.get(ctx, baseURL, creds, "/rest/agile/1.0/board", params, &list); err != nil {
			return nil, nil, err
		}
		if len(list.Values) == 0 {
			return nil, nil, fmt.Errorf("no boards found for project %s", cfg.ProjectKey)
		}
		for _, b := range list.Values {
			boards = append(boards, models.JiraBoard{ID: b.ID, Name: b.Name})
		}
		boardID = list.Values[0].ID
	} else {
		boards = append(boards, models.JiraBoard{ID: boardID, Name: fmt.Sprintf("board-%d", boardID)})
	}

	var sprintList jiraBoardList
	path := fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID)
	if err := a.get(ctx, baseURL, creds, path, nil, &sprintList); err != nil {
		return nil, nil, err
	}

	var sprints []models.JiraSprint
	for _, s := range sprintList.Values {
		sprints = append(sprints, models.JiraSprint{ID: s.ID, Name: s.Name, State: s.State})
	}

	return boards, sprints, nil
}

// get performs a GET request against the Jira API and decodes the response
func (a *JiraAdapter) get(ctx context.Context, baseURL string, creds models.Credentials, path string, params url.Values, result interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return classifyTransportError(jiraProvider, err)
	}

	reqURL := baseURL + path
	if len(params) > 0 {
		reqURL = reqURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return NewConfigError(jiraProvider, "failed to build request: %v", err)
	}

	req.SetBasicAuth(creds.Username, creds.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pulse-sync")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(jiraProvider, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		a.logger.Debug().
			Str("url", reqURL).
			Int("status", resp.StatusCode).
			Msg("Jira request failed")

		if resp.StatusCode == http.StatusTooManyRequests {
			return NewRateLimitError(jiraProvider, parseRetryAfter(resp))
		}
		// Jira reports unknown projects as 400 with an error message
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "does not exist") {
			return NewConfigError(jiraProvider, "project not found: %s", truncate(string(body), 200))
		}
		if mapped := classifyHTTPStatus(jiraProvider, resp.StatusCode, string(body)); mapped != nil {
			return mapped
		}
	}
	if readErr != nil {
		return NewNetworkError(jiraProvider, readErr)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return NewNetworkError(jiraProvider, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

// parseRetryAfter reads the Retry-After header as a reset hint
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// Ensure interface compliance
var _ interfaces.Adapter = (*JiraAdapter)(nil)
