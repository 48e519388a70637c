package metrics

import "github.com/ternarybob/pulse/internal/models"

// Maturity formula weights. Sub-scores are 0-100; the overall score is
// their weighted sum, so the weights must total 1.
const (
	WeightCollaboration          = 0.25
	WeightTechnicalPractices     = 0.25
	WeightDeliveryPredictability = 0.30
	WeightQuality                = 0.20
)

// Level thresholds on the overall score
const (
	ThresholdDeveloping     = 25.0
	ThresholdEstablished    = 50.0
	ThresholdHighPerforming = 75.0
)

// Scoring targets: reaching the target saturates the sub-score at 100
const (
	targetActiveContributors = 4.0
	targetCommitsPerWeek     = 10.0
)

// ScoreSnapshot derives maturity scores from a calculator result.
// No-activity windows score zero across the board at level forming.
func ScoreSnapshot(result Result, windowDays int) *models.MaturityScores {
	if result.NoActivity || result.Metrics == nil {
		scores := composeScores(0, 0, 0, 0)
		return &scores
	}

	switch m := result.Metrics.(type) {
	case *models.GitHubMetrics:
		scores := ScoreGitHub(m, windowDays)
		return &scores
	case *models.JiraMetrics:
		scores := ScoreJira(m)
		return &scores
	case *models.TrelloMetrics:
		scores := ScoreTrello(m)
		return &scores
	}
	return nil
}

// ScoreGitHub scores a repository window.
//
// - Collaboration: distinct commit authors against the target team size.
// - Technical practices: commit cadence per week against the target rate.
// - Delivery predictability: PR merge rate.
// - Quality: issue close rate.
func ScoreGitHub(m *models.GitHubMetrics, windowDays int) models.MaturityScores {
	collaboration := saturating(float64(len(m.AuthorDistribution)), targetActiveContributors)

	weeks := float64(windowDays) / 7
	if weeks <= 0 {
		weeks = 1
	}
	technical := saturating(float64(m.CommitCount)/weeks, targetCommitsPerWeek)

	delivery := 0.0
	if m.PRMergeRate != nil {
		delivery = *m.PRMergeRate * 100
	}

	quality := 0.0
	if m.IssueCloseRate != nil {
		quality = *m.IssueCloseRate * 100
	}

	return composeScores(collaboration, technical, delivery, quality)
}

// ScoreJira scores a project window.
//
// - Collaboration: distinct assignees against the target team size.
// - Technical practices: estimation (story points landing) and sprint
//   cadence adoption, 50 points each.
// - Delivery predictability: share of issues reaching a completed status.
// - Quality: inverse bug share of the window's issues.
func ScoreJira(m *models.JiraMetrics) models.MaturityScores {
	collaboration := saturating(float64(len(m.AssigneeDistribution)), targetActiveContributors)

	technical := 0.0
	if m.CompletedStoryPoints > 0 {
		technical += 50
	}
	if m.SprintCount != nil && *m.SprintCount > 0 {
		technical += 50
	}

	delivery := 0.0
	if m.IssueCount > 0 {
		done := 0
		for status, count := range m.IssueCountsByStatus {
			if completedStatuses[status] {
				done += count
			}
		}
		delivery = float64(done) / float64(m.IssueCount) * 100
	}

	quality := 0.0
	if m.IssueCount > 0 {
		bugs := m.IssueCountsByType["Bug"]
		quality = (1 - float64(bugs)/float64(m.IssueCount)) * 100
	}

	return composeScores(collaboration, technical, delivery, quality)
}

// ScoreTrello scores a board window.
//
// - Collaboration: distinct card members against the target team size.
// - Technical practices: average checklist completion.
// - Delivery predictability: share of cards closed.
// - Quality: share of due-dated cards not overdue; zero when the board
//   sets no due dates at all.
func ScoreTrello(m *models.TrelloMetrics) models.MaturityScores {
	collaboration := saturating(float64(len(m.MemberDistribution)), targetActiveContributors)

	technical := 0.0
	if m.AvgChecklistCompletion != nil {
		technical = *m.AvgChecklistCompletion * 100
	}

	delivery := 0.0
	if m.CardCount > 0 {
		delivery = float64(m.ClosedCardCount) / float64(m.CardCount) * 100
	}

	quality := 0.0
	if m.CardsWithDueCount > 0 {
		quality = (1 - float64(m.OverdueCardCount)/float64(m.CardsWithDueCount)) * 100
	}

	return composeScores(collaboration, technical, delivery, quality)
}

// composeScores applies the weighted formula and assigns the level
func composeScores(collaboration, technical, delivery, quality float64) models.MaturityScores {
	collaboration = round1(ClampFloat64(collaboration, 0, 100))
	technical = round1(ClampFloat64(technical, 0, 100))
	delivery = round1(ClampFloat64(delivery, 0, 100))
	quality = round1(ClampFloat64(quality, 0, 100))

	overall := round1(collaboration*WeightCollaboration +
		technical*WeightTechnicalPractices +
		delivery*WeightDeliveryPredictability +
		quality*WeightQuality)

	return models.MaturityScores{
		Collaboration:          collaboration,
		TechnicalPractices:     technical,
		DeliveryPredictability: delivery,
		Quality:                quality,
		Overall:                overall,
		Level:                  determineLevel(overall),
	}
}

// determineLevel assigns the maturity band for an overall score
func determineLevel(overall float64) models.MaturityLevel {
	switch {
	case overall >= ThresholdHighPerforming:
		return models.MaturityLevelHighPerforming
	case overall >= ThresholdEstablished:
		return models.MaturityLevelEstablished
	case overall >= ThresholdDeveloping:
		return models.MaturityLevelDeveloping
	}
	return models.MaturityLevelForming
}
