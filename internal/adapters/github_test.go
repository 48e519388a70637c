package adapters

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/models"
)

func newTestGitHubAdapter() *GitHubAdapter {
	return NewGitHubAdapter(common.NewDefaultConfig(), arbor.NewLogger())
}

func githubIntegration(repository, token string) *models.Integration {
	configJSON, _ := json.Marshal(map[string]interface{}{"repository": repository})
	return &models.Integration{
		ID:          "int_test",
		Type:        models.IntegrationTypeGitHub,
		Credentials: models.Credentials{Token: token},
		Config:      configJSON,
	}
}

func TestGitHubAdapterValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		integration *models.Integration
		wantErr     bool
	}{
		{
			name:        "valid config",
			integration: githubIntegration("acme/widgets", "ghp_token"),
			wantErr:     false,
		},
		{
			name:        "repository without owner",
			integration: githubIntegration("widgets", "ghp_token"),
			wantErr:     true,
		},
		{
			name:        "missing token",
			integration: githubIntegration("acme/widgets", ""),
			wantErr:     true,
		},
		{
			name: "missing config",
			integration: &models.Integration{
				ID:          "int_test",
				Type:        models.IntegrationTypeGitHub,
				Credentials: models.Credentials{Token: "ghp_token"},
			},
			wantErr: true,
		},
	}

	adapter := newTestGitHubAdapter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := adapter.ValidateConfig(tt.integration)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && KindOf(err) != ErrKindConfig {
				t.Errorf("ValidateConfig() kind = %v, want %v", KindOf(err), ErrKindConfig)
			}
		})
	}
}

func TestGitHubAdapterType(t *testing.T) {
	if got := newTestGitHubAdapter().Type(); got != models.IntegrationTypeGitHub {
		t.Errorf("Type() = %v, want %v", got, models.IntegrationTypeGitHub)
	}
}

func TestGitHubAdapterMapError(t *testing.T) {
	adapter := newTestGitHubAdapter()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "primary rate limit",
			err: &github.RateLimitError{
				Rate: github.Rate{Reset: github.Timestamp{Time: time.Now().Add(time.Minute)}},
			},
			want: ErrKindRateLimit,
		},
		{
			name: "abuse rate limit",
			err:  &github.AbuseRateLimitError{},
			want: ErrKindRateLimit,
		},
		{
			name: "empty repository conflict",
			err: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusConflict},
				Message:  "Git Repository is empty.",
			},
			want: ErrKindEmptyResource,
		},
		{
			name: "not found",
			err: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusNotFound},
				Message:  "Not Found",
			},
			want: ErrKindConfig,
		},
		{
			name: "bad credentials",
			err: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusUnauthorized},
				Message:  "Bad credentials",
			},
			want: ErrKindAuth,
		},
		{
			name: "server error",
			err: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusBadGateway},
				Message:  "upstream down",
			},
			want: ErrKindNetwork,
		},
		{
			name: "transport failure",
			err:  errors.New("dial tcp: connection refused"),
			want: ErrKindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := adapter.mapError(tt.err)
			if got := KindOf(mapped); got != tt.want {
				t.Errorf("mapError() kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGitHubAdapterMapErrorRetryHint(t *testing.T) {
	adapter := newTestGitHubAdapter()
	retryAfter := 2 * time.Minute
	mapped := adapter.mapError(&github.AbuseRateLimitError{RetryAfter: &retryAfter})
	if got := RetryAfterHint(mapped); got != retryAfter {
		t.Errorf("RetryAfterHint = %v, want %v", got, retryAfter)
	}
}
