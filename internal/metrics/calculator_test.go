package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/pulse/internal/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func floatPtr(v float64) *float64 { return &v }

func TestCalculateGitHub(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	activity := &models.GitHubActivity{
		PullRequests: []models.GitHubPullRequest{},
		Commits:      []models.GitHubCommit{},
		Issues:       []models.GitHubIssue{},
	}
	// 10 PRs, 7 merged; two merged PRs carry usable timestamps
	for i := 0; i < 10; i++ {
		pr := models.GitHubPullRequest{Number: i + 1, State: "closed", CreatedAt: timePtr(base)}
		if i < 7 {
			pr.Merged = true
			pr.MergedAt = timePtr(base.Add(48 * time.Hour))
			if i >= 2 {
				pr.CreatedAt = nil // timestamp missing, excluded from the mean
			}
		}
		activity.PullRequests = append(activity.PullRequests, pr)
	}

	m := CalculateGitHub(activity)

	if m.PRCount != 10 {
		t.Errorf("PRCount = %d, want 10", m.PRCount)
	}
	if m.PRMergeRate == nil || *m.PRMergeRate != 0.7 {
		t.Errorf("PRMergeRate = %v, want 0.7", m.PRMergeRate)
	}
	if m.AvgTimeToMergeHours == nil || *m.AvgTimeToMergeHours != 48 {
		t.Errorf("AvgTimeToMergeHours = %v, want 48", m.AvgTimeToMergeHours)
	}
	if m.IssueCloseRate != nil {
		t.Errorf("IssueCloseRate should be absent with no issues, got %v", *m.IssueCloseRate)
	}
}

func TestCalculateGitHubCommitSize(t *testing.T) {
	// Commits without churn data leave the size metric absent
	noStats := CalculateGitHub(&models.GitHubActivity{
		Commits: []models.GitHubCommit{{SHA: "a", Author: "ada"}, {SHA: "b", Author: "lin"}},
	})
	if noStats.AvgCommitSize != nil {
		t.Errorf("AvgCommitSize should be absent without stats, got %v", *noStats.AvgCommitSize)
	}
	if noStats.CommitCount != 2 {
		t.Errorf("CommitCount = %d, want 2", noStats.CommitCount)
	}
	if noStats.AuthorDistribution["ada"] != 1 || noStats.AuthorDistribution["lin"] != 1 {
		t.Errorf("AuthorDistribution = %v", noStats.AuthorDistribution)
	}

	withStats := CalculateGitHub(&models.GitHubActivity{
		Commits: []models.GitHubCommit{
			{SHA: "a", Additions: 10, Deletions: 5},
			{SHA: "b", Additions: 20, Deletions: 5},
		},
	})
	if withStats.AvgCommitSize == nil || *withStats.AvgCommitSize != 20 {
		t.Errorf("AvgCommitSize = %v, want 20", withStats.AvgCommitSize)
	}
}

func TestCalculateGitHubIssues(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	m := CalculateGitHub(&models.GitHubActivity{
		Issues: []models.GitHubIssue{
			{Number: 1, State: "closed", CreatedAt: timePtr(base), ClosedAt: timePtr(base.Add(24 * time.Hour))},
			{Number: 2, State: "closed", CreatedAt: timePtr(base), ClosedAt: timePtr(base.Add(72 * time.Hour))},
			{Number: 3, State: "open", CreatedAt: timePtr(base)},
			{Number: 4, State: "open", CreatedAt: timePtr(base)},
		},
	})

	if m.IssueCount != 4 {
		t.Errorf("IssueCount = %d, want 4", m.IssueCount)
	}
	if m.IssueCloseRate == nil || *m.IssueCloseRate != 0.5 {
		t.Errorf("IssueCloseRate = %v, want 0.5", m.IssueCloseRate)
	}
	if m.AvgTimeToCloseHours == nil || *m.AvgTimeToCloseHours != 48 {
		t.Errorf("AvgTimeToCloseHours = %v, want 48", m.AvgTimeToCloseHours)
	}
}

func TestCalculateJira(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	activity := &models.JiraActivity{
		Issues: []models.JiraIssue{
			{Key: "ENG-1", Type: "Story", Status: "Done", Assignee: "Ada", StoryPoints: floatPtr(5),
				CreatedAt: timePtr(base), ResolvedAt: timePtr(base.Add(36 * time.Hour))},
			{Key: "ENG-2", Type: "Story", Status: "Resolved", Assignee: "Lin", StoryPoints: floatPtr(3),
				CreatedAt: timePtr(base), ResolvedAt: timePtr(base.Add(12 * time.Hour))},
			{Key: "ENG-3", Type: "Bug", Status: "In Progress", Assignee: "Ada", StoryPoints: floatPtr(8),
				CreatedAt: timePtr(base)},
			{Key: "ENG-4", Type: "Task", Status: "To Do", CreatedAt: timePtr(base)},
		},
		Boards:              []models.JiraBoard{{ID: 7, Name: "ENG"}},
		Sprints:             []models.JiraSprint{{ID: 1, State: "closed"}, {ID: 2, State: "active"}},
		SprintDataAvailable: true,
	}

	m := CalculateJira(activity)

	if m.IssueCount != 4 {
		t.Errorf("IssueCount = %d, want 4", m.IssueCount)
	}
	if m.IssueCountsByType["Story"] != 2 || m.IssueCountsByType["Bug"] != 1 {
		t.Errorf("IssueCountsByType = %v", m.IssueCountsByType)
	}
	if m.IssueCountsByStatus["Done"] != 1 || m.IssueCountsByStatus["To Do"] != 1 {
		t.Errorf("IssueCountsByStatus = %v", m.IssueCountsByStatus)
	}
	// Unfinished ENG-3's 8 points must not count
	if m.CompletedStoryPoints != 8 {
		t.Errorf("CompletedStoryPoints = %v, want 8", m.CompletedStoryPoints)
	}
	if m.AvgResolutionHours == nil || *m.AvgResolutionHours != 24 {
		t.Errorf("AvgResolutionHours = %v, want 24", m.AvgResolutionHours)
	}
	if m.AssigneeDistribution["Ada"] != 2 {
		t.Errorf("AssigneeDistribution = %v", m.AssigneeDistribution)
	}
	if m.BoardCount == nil || *m.BoardCount != 1 {
		t.Errorf("BoardCount = %v, want 1", m.BoardCount)
	}
	if m.SprintCount == nil || *m.SprintCount != 2 {
		t.Errorf("SprintCount = %v, want 2", m.SprintCount)
	}
	if m.ActiveSprintCount == nil || *m.ActiveSprintCount != 1 {
		t.Errorf("ActiveSprintCount = %v, want 1", m.ActiveSprintCount)
	}
}

func TestCalculateJiraWithoutSprintData(t *testing.T) {
	m := CalculateJira(&models.JiraActivity{
		Issues:              []models.JiraIssue{{Key: "ENG-1", Type: "Story", Status: "Done"}},
		SprintDataAvailable: false,
	})

	if m.BoardCount != nil || m.SprintCount != nil || m.ActiveSprintCount != nil {
		t.Errorf("sprint fields should be absent, got board=%v sprint=%v active=%v",
			m.BoardCount, m.SprintCount, m.ActiveSprintCount)
	}
}

func TestCalculateTrello(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	activity := &models.TrelloActivity{
		Board: models.TrelloBoard{ID: "b1", Name: "Delivery"},
		Lists: []models.TrelloList{{ID: "l1", Name: "To Do"}, {ID: "l2", Name: "Done"}},
		Cards: []models.TrelloCard{
			{ID: "c1", ListID: "l1", Due: &past, Labels: []string{"urgent"}, Members: []string{"Ada"}},
			{ID: "c2", ListID: "l1", Due: &future, ChecklistItems: 4, CheckedItems: 2},
			{ID: "c3", ListID: "l2", Closed: true, Due: &past, ChecklistItems: 2, CheckedItems: 2},
			{ID: "c4", ListID: "l2", Closed: true, Members: []string{"Ada", "Lin"}},
		},
	}

	m := CalculateTrello(activity, now)

	if m.CardCount != 4 || m.OpenCardCount != 2 || m.ClosedCardCount != 2 {
		t.Errorf("counts = %d/%d/%d, want 4/2/2", m.CardCount, m.OpenCardCount, m.ClosedCardCount)
	}
	if m.CardCountsByList["To Do"] != 2 || m.CardCountsByList["Done"] != 2 {
		t.Errorf("CardCountsByList = %v", m.CardCountsByList)
	}
	if m.CardsWithDueCount != 3 {
		t.Errorf("CardsWithDueCount = %d, want 3", m.CardsWithDueCount)
	}
	// c3 is past due but closed, so only c1 is overdue
	if m.OverdueCardCount != 1 {
		t.Errorf("OverdueCardCount = %d, want 1", m.OverdueCardCount)
	}
	// (2/4 + 2/2) / 2 = 0.75 over the two cards with checklists
	if m.AvgChecklistCompletion == nil || *m.AvgChecklistCompletion != 0.75 {
		t.Errorf("AvgChecklistCompletion = %v, want 0.75", m.AvgChecklistCompletion)
	}
	if m.LabelDistribution["urgent"] != 1 {
		t.Errorf("LabelDistribution = %v", m.LabelDistribution)
	}
	if m.MemberDistribution["Ada"] != 2 || m.MemberDistribution["Lin"] != 1 {
		t.Errorf("MemberDistribution = %v", m.MemberDistribution)
	}
}

func TestCalculateNoActivity(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	result := Calculate(&models.Activity{GitHub: &models.GitHubActivity{}}, 30, now)

	if !result.NoActivity {
		t.Error("expected NoActivity for an empty window")
	}
	if !strings.Contains(result.Message, "30 days") {
		t.Errorf("message = %q, want window mention", result.Message)
	}

	m, ok := result.Metrics.(*models.GitHubMetrics)
	if !ok {
		t.Fatalf("Metrics type = %T, want *models.GitHubMetrics", result.Metrics)
	}
	if m.PRCount != 0 || m.CommitCount != 0 || m.IssueCount != 0 {
		t.Errorf("expected zero counts, got %+v", m)
	}
	if m.PRMergeRate != nil || m.IssueCloseRate != nil {
		t.Error("rates must be absent, not zero, for an empty window")
	}
}

func TestCalculateDispatch(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		activity *models.Activity
		wantType string
	}{
		{"github", &models.Activity{GitHub: &models.GitHubActivity{Commits: []models.GitHubCommit{{SHA: "a"}}}}, "*models.GitHubMetrics"},
		{"jira", &models.Activity{Jira: &models.JiraActivity{Issues: []models.JiraIssue{{Key: "ENG-1"}}}}, "*models.JiraMetrics"},
		{"trello", &models.Activity{Trello: &models.TrelloActivity{Cards: []models.TrelloCard{{ID: "c1"}}}}, "*models.TrelloMetrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Calculate(tt.activity, 30, now)
			if result.NoActivity {
				t.Error("unexpected NoActivity")
			}
			switch result.Metrics.(type) {
			case *models.GitHubMetrics:
				if tt.wantType != "*models.GitHubMetrics" {
					t.Errorf("got github metrics, want %s", tt.wantType)
				}
			case *models.JiraMetrics:
				if tt.wantType != "*models.JiraMetrics" {
					t.Errorf("got jira metrics, want %s", tt.wantType)
				}
			case *models.TrelloMetrics:
				if tt.wantType != "*models.TrelloMetrics" {
					t.Errorf("got trello metrics, want %s", tt.wantType)
				}
			default:
				t.Errorf("unexpected metrics type %T", result.Metrics)
			}
		})
	}
}
