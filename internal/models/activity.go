package models

import "time"

// Activity is the raw record set an adapter fetched for one window.
// Exactly one of the per-service fields is populated, matching the
// integration type the adapter serves. Records keep their service
// shape; normalization happens in the metric calculator.
type Activity struct {
	GitHub *GitHubActivity `json:"github,omitempty"`
	Jira   *JiraActivity   `json:"jira,omitempty"`
	Trello *TrelloActivity `json:"trello,omitempty"`
}

// GitHubActivity holds pull requests, commits, and issues for a repository window
type GitHubActivity struct {
	PullRequests []GitHubPullRequest `json:"pull_requests"`
	Commits      []GitHubCommit      `json:"commits"`
	Issues       []GitHubIssue       `json:"issues"`
}

type GitHubPullRequest struct {
	Number    int        `json:"number"`
	State     string     `json:"state"`
	Merged    bool       `json:"merged"`
	Author    string     `json:"author,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
}

type GitHubCommit struct {
	SHA       string `json:"sha"`
	Author    string `json:"author,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type GitHubIssue struct {
	Number    int        `json:"number"`
	State     string     `json:"state"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// JiraActivity holds the issues created in the window plus best-effort
// board/sprint data. SprintDataAvailable is false when the Agile API
// lookup failed; sprint metrics are then omitted rather than zeroed.
type JiraActivity struct {
	Issues              []JiraIssue  `json:"issues"`
	Boards              []JiraBoard  `json:"boards,omitempty"`
	Sprints             []JiraSprint `json:"sprints,omitempty"`
	SprintDataAvailable bool         `json:"sprint_data_available"`
}

type JiraIssue struct {
	Key         string     `json:"key"`
	Type        string     `json:"type,omitempty"`
	Status      string     `json:"status,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	StoryPoints *float64   `json:"story_points,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type JiraBoard struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type JiraSprint struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"` // active, closed, future
}

// TrelloActivity holds one board's lists and cards
type TrelloActivity struct {
	Board TrelloBoard  `json:"board"`
	Lists []TrelloList `json:"lists"`
	Cards []TrelloCard `json:"cards"`
}

type TrelloBoard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TrelloList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TrelloCard struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	ListID         string     `json:"list_id"`
	Closed         bool       `json:"closed"`
	Due            *time.Time `json:"due,omitempty"`
	Labels         []string   `json:"labels,omitempty"`
	Members        []string   `json:"members,omitempty"`
	ChecklistItems int        `json:"checklist_items"`
	CheckedItems   int        `json:"checked_items"`
}

// IsEmpty reports whether the activity contains no records at all
func (a *Activity) IsEmpty() bool {
	if a == nil {
		return true
	}
	switch {
	case a.GitHub != nil:
		return len(a.GitHub.PullRequests) == 0 && len(a.GitHub.Commits) == 0 && len(a.GitHub.Issues) == 0
	case a.Jira != nil:
		return len(a.Jira.Issues) == 0
	case a.Trello != nil:
		return len(a.Trello.Cards) == 0
	}
	return true
}
