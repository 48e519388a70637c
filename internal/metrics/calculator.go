// Package metrics normalizes raw provider activity into per-type metric
// structs and derives agile-maturity scores from them. Everything here
// is a pure function: no I/O, no clock reads (the window end is passed
// in), so results are reproducible from the same activity.
package metrics

import (
	"fmt"
	"time"

	"github.com/ternarybob/pulse/internal/models"
)

// Result is the calculator output for one sync cycle. Metrics holds the
// per-type struct (*models.GitHubMetrics, *models.JiraMetrics or
// *models.TrelloMetrics); NoActivity marks a valid-but-idle window.
type Result struct {
	Metrics    interface{}
	NoActivity bool
	Message    string
}

// Calculate normalizes activity into the metric struct for its type.
// Empty activity yields NoActivity with zero counts, never an error.
func Calculate(activity *models.Activity, windowDays int, now time.Time) Result {
	result := Result{}

	if activity.IsEmpty() {
		result.NoActivity = true
		result.Message = fmt.Sprintf("No activity found in the last %d days", windowDays)
	}

	switch {
	case activity == nil:
	case activity.GitHub != nil:
		result.Metrics = CalculateGitHub(activity.GitHub)
	case activity.Jira != nil:
		result.Metrics = CalculateJira(activity.Jira)
	case activity.Trello != nil:
		result.Metrics = CalculateTrello(activity.Trello, now)
	}

	return result
}

// CalculateGitHub derives repository metrics from pull requests, commits
// and issues. Rates and durations are nil when there is nothing to
// measure; records missing a timestamp are skipped per computation.
func CalculateGitHub(activity *models.GitHubActivity) *models.GitHubMetrics {
	m := &models.GitHubMetrics{
		PRCount:     len(activity.PullRequests),
		CommitCount: len(activity.Commits),
		IssueCount:  len(activity.Issues),
	}

	merged := 0
	var mergeHours []float64
	for _, pr := range activity.PullRequests {
		if pr.MergedAt == nil {
			continue
		}
		merged++
		if pr.CreatedAt != nil && !pr.MergedAt.Before(*pr.CreatedAt) {
			mergeHours = append(mergeHours, pr.MergedAt.Sub(*pr.CreatedAt).Hours())
		}
	}
	if m.PRCount > 0 {
		rate := ClampFloat64(float64(merged)/float64(m.PRCount), 0, 1)
		m.PRMergeRate = &rate
	}
	if len(mergeHours) > 0 {
		avg := Mean(mergeHours)
		m.AvgTimeToMergeHours = &avg
	}

	authors := make(map[string]int)
	var sizes []float64
	churnSeen := false
	for _, commit := range activity.Commits {
		if commit.Author != "" {
			authors[commit.Author]++
		}
		total := commit.Additions + commit.Deletions
		if total > 0 {
			churnSeen = true
		}
		sizes = append(sizes, float64(total))
	}
	if len(authors) > 0 {
		m.AuthorDistribution = authors
	}
	// The commit listing endpoint does not always carry per-commit stats;
	// only report a size when churn numbers actually came back.
	if churnSeen {
		avg := Mean(sizes)
		m.AvgCommitSize = &avg
	}

	closed := 0
	var closeHours []float64
	for _, issue := range activity.Issues {
		if issue.ClosedAt == nil {
			continue
		}
		closed++
		if issue.CreatedAt != nil && !issue.ClosedAt.Before(*issue.CreatedAt) {
			closeHours = append(closeHours, issue.ClosedAt.Sub(*issue.CreatedAt).Hours())
		}
	}
	if m.IssueCount > 0 {
		rate := ClampFloat64(float64(closed)/float64(m.IssueCount), 0, 1)
		m.IssueCloseRate = &rate
	}
	if len(closeHours) > 0 {
		avg := Mean(closeHours)
		m.AvgTimeToCloseHours = &avg
	}

	return m
}

// completedStatuses are the Jira statuses counted as finished work for
// story points and throughput. Matched exactly as Jira reports them.
var completedStatuses = map[string]bool{
	"Done":     true,
	"Closed":   true,
	"Resolved": true,
}

// CalculateJira derives project metrics from the window's issues plus
// board/sprint data. Sprint fields stay nil when the board lookup was
// unavailable during the fetch.
func CalculateJira(activity *models.JiraActivity) *models.JiraMetrics {
	m := &models.JiraMetrics{IssueCount: len(activity.Issues)}

	byType := make(map[string]int)
	byStatus := make(map[string]int)
	assignees := make(map[string]int)
	var resolutionHours []float64

	for _, issue := range activity.Issues {
		if issue.Type != "" {
			byType[issue.Type]++
		}
		if issue.Status != "" {
			byStatus[issue.Status]++
		}
		if issue.Assignee != "" {
			assignees[issue.Assignee]++
		}
		if completedStatuses[issue.Status] && issue.StoryPoints != nil {
			m.CompletedStoryPoints += *issue.StoryPoints
		}
		if issue.CreatedAt != nil && issue.ResolvedAt != nil && !issue.ResolvedAt.Before(*issue.CreatedAt) {
			resolutionHours = append(resolutionHours, issue.ResolvedAt.Sub(*issue.CreatedAt).Hours())
		}
	}

	if len(byType) > 0 {
		m.IssueCountsByType = byType
	}
	if len(byStatus) > 0 {
		m.IssueCountsByStatus = byStatus
	}
	if len(assignees) > 0 {
		m.AssigneeDistribution = assignees
	}
	if len(resolutionHours) > 0 {
		avg := Mean(resolutionHours)
		m.AvgResolutionHours = &avg
	}

	if activity.SprintDataAvailable {
		boardCount := len(activity.Boards)
		sprintCount := len(activity.Sprints)
		activeCount := 0
		for _, sprint := range activity.Sprints {
			if sprint.State == "active" {
				activeCount++
			}
		}
		m.BoardCount = &boardCount
		m.SprintCount = &sprintCount
		m.ActiveSprintCount = &activeCount
	}

	return m
}

// CalculateTrello derives board metrics from lists and cards. Overdue
// counts open cards whose due date has passed; closed cards are done
// regardless of their due date.
func CalculateTrello(activity *models.TrelloActivity, now time.Time) *models.TrelloMetrics {
	m := &models.TrelloMetrics{CardCount: len(activity.Cards)}

	listNames := make(map[string]string, len(activity.Lists))
	for _, list := range activity.Lists {
		listNames[list.ID] = list.Name
	}

	byList := make(map[string]int)
	labels := make(map[string]int)
	members := make(map[string]int)
	var completions []float64

	for _, card := range activity.Cards {
		listName := listNames[card.ListID]
		if listName == "" {
			listName = card.ListID
		}
		if listName != "" {
			byList[listName]++
		}

		if card.Closed {
			m.ClosedCardCount++
		}
		if card.Due != nil {
			m.CardsWithDueCount++
			if card.Due.Before(now) && !card.Closed {
				m.OverdueCardCount++
			}
		}
		if card.ChecklistItems > 0 {
			completions = append(completions, ClampFloat64(float64(card.CheckedItems)/float64(card.ChecklistItems), 0, 1))
		}
		for _, label := range card.Labels {
			labels[label]++
		}
		for _, member := range card.Members {
			members[member]++
		}
	}

	m.OpenCardCount = m.CardCount - m.ClosedCardCount
	if len(byList) > 0 {
		m.CardCountsByList = byList
	}
	if len(completions) > 0 {
		avg := Mean(completions)
		m.AvgChecklistCompletion = &avg
	}
	if len(labels) > 0 {
		m.LabelDistribution = labels
	}
	if len(members) > 0 {
		m.MemberDistribution = members
	}

	return m
}
