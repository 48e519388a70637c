package metrics

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/pulse/internal/models"
)

// DecodeMetrics unmarshals a snapshot's raw metrics payload into the
// typed struct for its integration type.
func DecodeMetrics(snapshot *models.MetricSnapshot) (interface{}, error) {
	switch snapshot.Type {
	case models.IntegrationTypeGitHub:
		var m models.GitHubMetrics
		if err := json.Unmarshal(snapshot.Metrics, &m); err != nil {
			return nil, fmt.Errorf("failed to decode github metrics: %w", err)
		}
		return &m, nil
	case models.IntegrationTypeJira:
		var m models.JiraMetrics
		if err := json.Unmarshal(snapshot.Metrics, &m); err != nil {
			return nil, fmt.Errorf("failed to decode jira metrics: %w", err)
		}
		return &m, nil
	case models.IntegrationTypeTrello:
		var m models.TrelloMetrics
		if err := json.Unmarshal(snapshot.Metrics, &m); err != nil {
			return nil, fmt.Errorf("failed to decode trello metrics: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("unsupported snapshot type: %s", snapshot.Type)
}

// AggregateTeam averages per-integration maturity scores into the team
// roll-up. Nil entries (no scores yet) are skipped; returns nil when no
// integration has scores.
func AggregateTeam(scores []*models.MaturityScores) *models.MaturityScores {
	var collaboration, technical, delivery, quality []float64
	for _, s := range scores {
		if s == nil {
			continue
		}
		collaboration = append(collaboration, s.Collaboration)
		technical = append(technical, s.TechnicalPractices)
		delivery = append(delivery, s.DeliveryPredictability)
		quality = append(quality, s.Quality)
	}
	if len(collaboration) == 0 {
		return nil
	}

	result := composeScores(Mean(collaboration), Mean(technical), Mean(delivery), Mean(quality))
	return &result
}

// BuildTeamSummary rolls the latest member snapshots into the dashboard
// headline card. Map values are nil for integrations that have no
// snapshot yet; those count as missing. Velocity counts pull requests
// plus closed cards; Jira throughput is reflected in the maturity
// scores instead.
func BuildTeamSummary(snapshots map[string]*models.MetricSnapshot) models.TeamSummary {
	summary := models.TeamSummary{MemberCount: len(snapshots)}

	var scores []*models.MaturityScores
	for _, snapshot := range snapshots {
		if snapshot == nil {
			summary.MissingCount++
			continue
		}
		scores = append(scores, snapshot.Maturity)
		if snapshot.NoActivity {
			continue
		}

		payload, err := DecodeMetrics(snapshot)
		if err != nil {
			continue
		}
		switch m := payload.(type) {
		case *models.GitHubMetrics:
			summary.Velocity += m.PRCount
		case *models.TrelloMetrics:
			summary.Velocity += m.ClosedCardCount
		}
	}

	summary.Maturity = AggregateTeam(scores)
	if summary.Maturity != nil {
		quality := summary.Maturity.Quality
		summary.Quality = &quality
	}

	return summary
}
