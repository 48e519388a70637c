package models

import (
	"encoding/json"
	"time"
)

// MetricSnapshot is the normalized, point-in-time result of one sync
// cycle for one integration. Snapshots are immutable once written; the
// next sync supersedes rather than mutates.
type MetricSnapshot struct {
	ID            string          `json:"id"`
	IntegrationID string          `json:"integration_id"`
	Type          IntegrationType `json:"type"`
	ComputedAt    time.Time       `json:"computed_at"`
	WindowDays    int             `json:"window_days"`
	NoActivity    bool            `json:"no_activity"`
	Message       string          `json:"message,omitempty"`
	Metrics       json.RawMessage `json:"metrics"`
	Maturity      *MaturityScores `json:"maturity,omitempty"`
}

// GitHubMetrics is the normalized metric set for a repository window.
// Rate and duration metrics are pointers: nil means the metric could
// not be computed (no completed items) and is omitted from JSON.
type GitHubMetrics struct {
	PRCount             int            `json:"pr_count"`
	PRMergeRate         *float64       `json:"pr_merge_rate,omitempty"`
	AvgTimeToMergeHours *float64       `json:"avg_time_to_merge_hours,omitempty"`
	CommitCount         int            `json:"commit_count"`
	AvgCommitSize       *float64       `json:"avg_commit_size,omitempty"`
	AuthorDistribution  map[string]int `json:"author_distribution,omitempty"`
	IssueCount          int            `json:"issue_count"`
	IssueCloseRate      *float64       `json:"issue_close_rate,omitempty"`
	AvgTimeToCloseHours *float64       `json:"avg_time_to_close_hours,omitempty"`
}

// JiraMetrics is the normalized metric set for a project window.
// Sprint fields are pointers so they drop out of the payload entirely
// when board data was unavailable during the fetch.
type JiraMetrics struct {
	IssueCount           int            `json:"issue_count"`
	IssueCountsByType    map[string]int `json:"issue_counts_by_type,omitempty"`
	IssueCountsByStatus  map[string]int `json:"issue_counts_by_status,omitempty"`
	CompletedStoryPoints float64        `json:"completed_story_points"`
	AvgResolutionHours   *float64       `json:"avg_resolution_hours,omitempty"`
	AssigneeDistribution map[string]int `json:"assignee_distribution,omitempty"`
	BoardCount           *int           `json:"board_count,omitempty"`
	SprintCount          *int           `json:"sprint_count,omitempty"`
	ActiveSprintCount    *int           `json:"active_sprint_count,omitempty"`
}

// TrelloMetrics is the normalized metric set for a board window
type TrelloMetrics struct {
	CardCount              int            `json:"card_count"`
	CardCountsByList       map[string]int `json:"card_counts_by_list,omitempty"`
	OpenCardCount          int            `json:"open_card_count"`
	ClosedCardCount        int            `json:"closed_card_count"`
	CardsWithDueCount      int            `json:"cards_with_due_count"`
	OverdueCardCount       int            `json:"overdue_card_count"`
	AvgChecklistCompletion *float64       `json:"avg_checklist_completion,omitempty"`
	LabelDistribution      map[string]int `json:"label_distribution,omitempty"`
	MemberDistribution     map[string]int `json:"member_distribution,omitempty"`
}

// MaturityLevel labels the overall maturity score band
type MaturityLevel string

const (
	MaturityLevelForming        MaturityLevel = "forming"
	MaturityLevelDeveloping     MaturityLevel = "developing"
	MaturityLevelEstablished    MaturityLevel = "established"
	MaturityLevelHighPerforming MaturityLevel = "high_performing"
)

// MaturityScores holds the derived agile-maturity sub-scores (0-100)
// and the weighted overall score with its level label.
type MaturityScores struct {
	Collaboration          float64       `json:"collaboration_score"`
	TechnicalPractices     float64       `json:"technical_practices_score"`
	DeliveryPredictability float64       `json:"delivery_predictability_score"`
	Quality                float64       `json:"quality_score"`
	Overall                float64       `json:"overall_maturity"`
	Level                  MaturityLevel `json:"maturity_level"`
}

// TeamMetrics is the aggregated view served for one team: the latest
// snapshot per integration plus a roll-up summary.
type TeamMetrics struct {
	TeamID       string                     `json:"team_id"`
	Integrations map[string]*MetricSnapshot `json:"integrations"`
	Summary      TeamSummary                `json:"summary"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// TeamSummary mirrors the dashboard's headline card
type TeamSummary struct {
	Velocity     int             `json:"velocity"` // PRs + completed cards across integrations
	Quality      *float64        `json:"quality,omitempty"`
	Maturity     *MaturityScores `json:"maturity,omitempty"`
	StaleSince   *time.Time      `json:"stale_since,omitempty"` // oldest last_sync among members
	MemberCount  int             `json:"member_count"`
	MissingCount int             `json:"missing_count"` // integrations with no snapshot yet
}
