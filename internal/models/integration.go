package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// IntegrationType defines the external service an integration connects to
type IntegrationType string

const (
	IntegrationTypeGitHub IntegrationType = "github"
	IntegrationTypeJira   IntegrationType = "jira"
	IntegrationTypeTrello IntegrationType = "trello"
)

// IsValid reports whether the type is one of the supported services
func (t IntegrationType) IsValid() bool {
	switch t {
	case IntegrationTypeGitHub, IntegrationTypeJira, IntegrationTypeTrello:
		return true
	}
	return false
}

// IntegrationStatus tracks the sync lifecycle of an integration
type IntegrationStatus string

const (
	IntegrationStatusPending IntegrationStatus = "pending"
	IntegrationStatusActive  IntegrationStatus = "active"
	IntegrationStatusFailed  IntegrationStatus = "failed"
)

// Credentials holds the secret material for an integration.
// Which fields are required depends on the integration type:
// GitHub uses Token, Jira uses Username+Token, Trello uses APIKey+Token.
type Credentials struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// Integration represents a configured connection to one external service instance
type Integration struct {
	ID          string            `json:"id"`
	TeamID      string            `json:"team_id"`
	Name        string            `json:"name"`
	Type        IntegrationType   `json:"type"`
	Credentials Credentials       `json:"credentials"`
	Config      json.RawMessage   `json:"config"` // Stored as JSON in DB
	Status      IntegrationStatus `json:"status"`
	LastSync    *time.Time        `json:"last_sync,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IntegrationConfig is a marker interface for per-type integration configurations
type IntegrationConfig interface {
	Validate() error
}

// GitHubIntegrationConfig defines configuration for GitHub integrations
type GitHubIntegrationConfig struct {
	Repository string `json:"repository"` // owner/name
}

func (c *GitHubIntegrationConfig) Validate() error {
	if c.Repository == "" {
		return errors.New("repository is required")
	}
	if !strings.Contains(c.Repository, "/") {
		return fmt.Errorf("repository must be owner/name, got %q", c.Repository)
	}
	return nil
}

// Owner returns the owner half of the repository identifier
func (c *GitHubIntegrationConfig) Owner() string {
	parts := strings.SplitN(c.Repository, "/", 2)
	return parts[0]
}

// Repo returns the name half of the repository identifier
func (c *GitHubIntegrationConfig) Repo() string {
	parts := strings.SplitN(c.Repository, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// JiraIntegrationConfig defines configuration for Jira integrations
type JiraIntegrationConfig struct {
	BaseURL    string `json:"base_url"`
	ProjectKey string `json:"project_key"`
	BoardID    int    `json:"board_id,omitempty"`
}

func (c *JiraIntegrationConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.ProjectKey == "" {
		return errors.New("project_key is required")
	}
	return nil
}

// TrelloIntegrationConfig defines configuration for Trello integrations
type TrelloIntegrationConfig struct {
	BoardID string `json:"board_id"`
}

func (c *TrelloIntegrationConfig) Validate() error {
	if c.BoardID == "" {
		return errors.New("board_id is required")
	}
	return nil
}

// ParseConfig unmarshals the raw config blob into the typed variant for
// the integration's type and validates it.
func (i *Integration) ParseConfig() (IntegrationConfig, error) {
	if len(i.Config) == 0 {
		return nil, fmt.Errorf("integration %s has no config", i.ID)
	}

	var cfg IntegrationConfig
	switch i.Type {
	case IntegrationTypeGitHub:
		cfg = &GitHubIntegrationConfig{}
	case IntegrationTypeJira:
		cfg = &JiraIntegrationConfig{}
	case IntegrationTypeTrello:
		cfg = &TrelloIntegrationConfig{}
	default:
		return nil, fmt.Errorf("unsupported integration type: %s", i.Type)
	}

	if err := json.Unmarshal(i.Config, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", i.Type, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the storage layer requires
func (i *Integration) Validate() error {
	if i.Name == "" {
		return errors.New("name is required")
	}
	if !i.Type.IsValid() {
		return fmt.Errorf("unsupported integration type: %s", i.Type)
	}
	if _, err := i.ParseConfig(); err != nil {
		return err
	}
	return nil
}
