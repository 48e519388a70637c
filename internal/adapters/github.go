package adapters

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const githubProvider = "github"

// GitHubAdapter fetches repository activity via the GitHub REST API
type GitHubAdapter struct {
	baseURL        string
	requestTimeout time.Duration
	maxPages       int
	limiter        *rate.Limiter
	logger         arbor.ILogger
}

// NewGitHubAdapter creates a GitHub adapter from application config
func NewGitHubAdapter(config *common.Config, logger arbor.ILogger) *GitHubAdapter {
	rps := config.GitHub.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := config.GitHub.Burst
	if burst <= 0 {
		burst = 5
	}

	return &GitHubAdapter{
		baseURL:        config.GitHub.BaseURL,
		requestTimeout: common.ParseDurationOr(config.Sync.RequestTimeout, 10*time.Second),
		maxPages:       config.Sync.MaxPages,
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		logger:         logger,
	}
}

// Type returns the provider type this adapter serves
func (a *GitHubAdapter) Type() models.IntegrationType {
	return models.IntegrationTypeGitHub
}

// ValidateConfig checks repository format and credentials before any network call
func (a *GitHubAdapter) ValidateConfig(integration *models.Integration) error {
	cfg, err := integration.ParseConfig()
	if err != nil {
		return NewConfigError(githubProvider, "%v", err)
	}
	ghCfg, ok := cfg.(*models.GitHubIntegrationConfig)
	if !ok {
		return NewConfigError(githubProvider, "config is not a github config")
	}
	if ghCfg.Repo() == "" {
		return NewConfigError(githubProvider, "repository must be owner/name, got %q", ghCfg.Repository)
	}
	if integration.Credentials.Token == "" {
		return NewConfigError(githubProvider, "token is required")
	}
	return nil
}

// FetchActivity retrieves pull requests, commits and issues for the window
func (a *GitHubAdapter) FetchActivity(ctx context.Context, integration *models.Integration, window time.Duration) (*models.Activity, error) {
	if err := a.ValidateConfig(integration); err != nil {
		return nil, err
	}

	cfg, _ := integration.ParseConfig()
	ghCfg := cfg.(*models.GitHubIntegrationConfig)
	owner, repo := ghCfg.Owner(), ghCfg.Repo()
	since := time.Now().UTC().Add(-window)

	client, err := a.newClient(ctx, integration.Credentials.Token)
	if err != nil {
		return nil, err
	}

	activity := &models.GitHubActivity{
		PullRequests: []models.GitHubPullRequest{},
		Commits:      []models.GitHubCommit{},
		Issues:       []models.GitHubIssue{},
	}

	prs, err := a.fetchPullRequests(ctx, client, owner, repo, since)
	if err != nil {
		return nil, err
	}
	activity.PullRequests = prs

	commits, err := a.fetchCommits(ctx, client, owner, repo, since)
	if err != nil {
		// An empty repository 409s on the commits endpoint; the repo is
		// valid, there is just nothing in it yet.
		if IsEmptyResource(err) {
			a.logger.Info().
				Str("integration_id", integration.ID).
				Str("repository", ghCfg.Repository).
				Msg("Repository is empty, recording no activity")
			return &models.Activity{GitHub: activity}, nil
		}
		return nil, err
	}
	activity.Commits = commits

	issues, err := a.fetchIssues(ctx, client, owner, repo, since)
	if err != nil {
		return nil, err
	}
	activity.Issues = issues

	a.logger.Debug().
		Str("integration_id", integration.ID).
		Str("repository", ghCfg.Repository).
		Int("pull_requests", len(activity.PullRequests)).
		Int("commits", len(activity.Commits)).
		Int("issues", len(activity.Issues)).
		Msg("GitHub activity fetched")

	return &models.Activity{GitHub: activity}, nil
}

// newClient builds an authenticated client with per-request timeout
func (a *GitHubAdapter) newClient(ctx context.Context, token string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = a.requestTimeout

	client := github.NewClient(tc)
	if a.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(a.baseURL, a.baseURL)
		if err != nil {
			return nil, NewConfigError(githubProvider, "invalid base URL %q: %v", a.baseURL, err)
		}
	}
	return client, nil
}

// fetchPullRequests lists PRs sorted by creation descending, stopping once
// results fall out of the window
func (a *GitHubAdapter) fetchPullRequests(ctx context.Context, client *github.Client, owner, repo string, since time.Time) ([]models.GitHubPullRequest, error) {
	var all []models.GitHubPullRequest

	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for page := 0; page < a.maxPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, classifyTransportError(githubProvider, err)
		}

		prs, resp, err := client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, a.mapError(err)
		}

		inWindow := true
		for _, pr := range prs {
			createdAt := pr.GetCreatedAt().Time
			if createdAt.Before(since) {
				// Sorted by creation descending: everything after this
				// is out of the window too.
				inWindow = false
				break
			}

			merged := pr.GetMergedAt().Time
			record := models.GitHubPullRequest{
				Number: pr.GetNumber(),
				State:  pr.GetState(),
				Merged: !merged.IsZero(),
				Author: pr.GetUser().GetLogin(),
			}
			if !createdAt.IsZero() {
				t := createdAt
				record.CreatedAt = &t
			}
			if !merged.IsZero() {
				t := merged
				record.MergedAt = &t
			}
			all = append(all, record)
		}

		if !inWindow || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// fetchCommits lists commits created since the window start
func (a *GitHubAdapter) fetchCommits(ctx context.Context, client *github.Client, owner, repo string, since time.Time) ([]models.GitHubCommit, error) {
	var all []models.GitHubCommit

	opts := &github.CommitsListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for page := 0; page < a.maxPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, classifyTransportError(githubProvider, err)
		}

		commits, resp, err := client.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			return nil, a.mapError(err)
		}

		for _, c := range commits {
			record := models.GitHubCommit{
				SHA:    c.GetSHA(),
				Author: c.GetAuthor().GetLogin(),
			}
			if record.Author == "" && c.GetCommit().GetAuthor() != nil {
				record.Author = c.GetCommit().GetAuthor().GetName()
			}
			if stats := c.GetStats(); stats != nil {
				record.Additions = stats.GetAdditions()
				record.Deletions = stats.GetDeletions()
			}
			all = append(all, record)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// fetchIssues lists issues updated since the window start, excluding PRs
// (the issues endpoint returns both)
func (a *GitHubAdapter) fetchIssues(ctx context.Context, client *github.Client, owner, repo string, since time.Time) ([]models.GitHubIssue, error) {
	var all []models.GitHubIssue

	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for page := 0; page < a.maxPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, classifyTransportError(githubProvider, err)
		}

		issues, resp, err := client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, a.mapError(err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}

			record := models.GitHubIssue{
				Number: issue.GetNumber(),
				State:  issue.GetState(),
			}
			if created := issue.GetCreatedAt().Time; !created.IsZero() {
				t := created
				record.CreatedAt = &t
			}
			if closed := issue.GetClosedAt().Time; !closed.IsZero() {
				t := closed
				record.ClosedAt = &t
			}
			all = append(all, record)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// mapError converts go-github errors onto the sync error taxonomy
func (a *GitHubAdapter) mapError(err error) error {
	switch e := err.(type) {
	case *github.RateLimitError:
		retryAfter := time.Until(e.Rate.Reset.Time)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return NewRateLimitError(githubProvider, retryAfter)

	case *github.AbuseRateLimitError:
		var retryAfter time.Duration
		if e.RetryAfter != nil {
			retryAfter = *e.RetryAfter
		}
		return NewRateLimitError(githubProvider, retryAfter)

	case *github.ErrorResponse:
		statusCode := 0
		if e.Response != nil {
			statusCode = e.Response.StatusCode
		}
		// "409 Git Repository is empty" - the repo exists but has no commits
		if statusCode == http.StatusConflict && strings.Contains(strings.ToLower(e.Message), "empty") {
			return NewEmptyResourceError(githubProvider, "repository is empty")
		}
		if mapped := classifyHTTPStatus(githubProvider, statusCode, e.Message); mapped != nil {
			return mapped
		}
		return NewNetworkError(githubProvider, err)

	default:
		return classifyTransportError(githubProvider, err)
	}
}

// Ensure interface compliance
var _ interfaces.Adapter = (*GitHubAdapter)(nil)
