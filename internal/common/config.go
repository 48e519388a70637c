package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production" - controls test URL validation
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Queue       QueueConfig     `toml:"queue"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Sync        SyncConfig      `toml:"sync"`
	Cache       CacheConfig     `toml:"cache"`
	GitHub      GitHubConfig    `toml:"github"`
	Jira        JiraConfig      `toml:"jira"`
	Trello      TrelloConfig    `toml:"trello"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Seeds       SeedsConfig     `toml:"seeds"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before dead-letter
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

// SchedulerConfig contains configuration for the periodic sweep scheduler
type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`           // Enable periodic sync sweeps
	SweepSchedule    string `toml:"sweep_schedule"`    // Cron schedule for the all-integrations sweep
	CleanupSchedule  string `toml:"cleanup_schedule"`  // Cron schedule for finished-job cleanup
	JobRetention     string `toml:"job_retention"`     // e.g., "72h" - how long finished sync jobs are kept
	SweepConcurrency int    `toml:"sweep_concurrency"` // Max integrations synced in parallel during a sweep
}

// SyncConfig contains tuning for integration sync runs
type SyncConfig struct {
	WindowDays     int         `toml:"window_days"`     // Activity window in days for metric computation
	MaxPages       int         `toml:"max_pages"`       // Hard cap on pages fetched per resource
	RequestTimeout string      `toml:"request_timeout"` // e.g., "10s" - per-request timeout against providers
	InitialRetry   RetryConfig `toml:"initial_retry"`   // Retry policy for first sync after creation
	PeriodicRetry  RetryConfig `toml:"periodic_retry"`  // Retry policy for scheduled sweep syncs
	ManualRetry    RetryConfig `toml:"manual_retry"`    // Retry policy for user-triggered syncs
}

// RetryConfig describes attempt limits and backoff for one sync trigger
type RetryConfig struct {
	MaxAttempts int    `toml:"max_attempts"` // Total attempts including the first
	Backoff     string `toml:"backoff"`      // e.g., "60s" - fixed delay between attempts
}

// CacheConfig contains TTLs for the three cache tiers
type CacheConfig struct {
	SessionTTL      string `toml:"session_ttl"`      // e.g., "4h" - in-process session tier
	PersistentTTL   string `toml:"persistent_ttl"`   // e.g., "72h" - BadgerDB-backed tier
	TaskResultTTL   string `toml:"task_result_ttl"`  // e.g., "1h" - in-process sync result tier
	CleanupInterval string `toml:"cleanup_interval"` // e.g., "10m" - expired entry sweep cadence
}

// GitHubConfig contains GitHub API client tuning
type GitHubConfig struct {
	BaseURL           string  `toml:"base_url"`            // Override for GitHub Enterprise or tests (empty = api.github.com)
	RequestsPerSecond float64 `toml:"requests_per_second"` // Client-side rate limit
	Burst             int     `toml:"burst"`               // Rate limiter burst size
}

// JiraConfig contains Jira REST client tuning
type JiraConfig struct {
	PageSize          int     `toml:"page_size"`           // Results per search page
	PageDelay         string  `toml:"page_delay"`          // e.g., "300ms" - delay between pages
	RequestsPerSecond float64 `toml:"requests_per_second"` // Client-side rate limit
	Burst             int     `toml:"burst"`               // Rate limiter burst size
}

// TrelloConfig contains Trello REST client tuning
type TrelloConfig struct {
	BaseURL           string  `toml:"base_url"`            // Override for tests (empty = api.trello.com)
	RequestsPerSecond float64 `toml:"requests_per_second"` // Client-side rate limit
	Burst             int     `toml:"burst"`               // Rate limiter burst size
}

// WebSocketConfig contains event broadcast configuration
type WebSocketConfig struct {
	AllowedEvents     []string          `toml:"allowed_events"`     // Whitelist of event types to broadcast (empty = allow all)
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // Per-event-type minimum broadcast interval (e.g., "sync.started" = "1s")
}

// SeedsConfig contains configuration for bootstrap definition files
type SeedsConfig struct {
	Dir string `toml:"dir"` // Directory containing team/integration seed files (YAML)
}

// NewDefaultConfig returns a Config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/pulse",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       2,
			VisibilityTimeout: "5m",
			MaxReceive:        5,
			QueueName:         "sync",
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			SweepSchedule:    "0 * * * *", // Hourly, on the hour
			CleanupSchedule:  "30 * * * *",
			JobRetention:     "72h",
			SweepConcurrency: 4,
		},
		Sync: SyncConfig{
			WindowDays:     30,
			MaxPages:       50,
			RequestTimeout: "10s",
			InitialRetry: RetryConfig{
				MaxAttempts: 3,
				Backoff:     "60s",
			},
			PeriodicRetry: RetryConfig{
				MaxAttempts: 2,
				Backoff:     "300s",
			},
			ManualRetry: RetryConfig{
				MaxAttempts: 1,
				Backoff:     "0s",
			},
		},
		Cache: CacheConfig{
			SessionTTL:      "4h",
			PersistentTTL:   "72h",
			TaskResultTTL:   "1h",
			CleanupInterval: "10m",
		},
		GitHub: GitHubConfig{
			BaseURL:           "",
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Jira: JiraConfig{
			PageSize:          50,
			PageDelay:         "300ms",
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Trello: TrelloConfig{
			BaseURL:           "https://api.trello.com/1",
			RequestsPerSecond: 2,
			Burst:             5,
		},
		WebSocket: WebSocketConfig{
			AllowedEvents:     []string{},
			ThrottleIntervals: map[string]string{},
		},
		Seeds: SeedsConfig{
			Dir: "./seeds",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
// Example: LoadFromFiles("base.toml", "override.toml") - override.toml settings take precedence over base.toml
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: PULSE_ENV, fallback: GO_ENV)
	if env := os.Getenv("PULSE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PULSE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PULSE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("PULSE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("PULSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PULSE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("PULSE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Queue configuration
	if pollInterval := os.Getenv("PULSE_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("PULSE_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("PULSE_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("PULSE_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if queueName := os.Getenv("PULSE_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}

	// Scheduler configuration
	if enabled := os.Getenv("PULSE_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if schedule := os.Getenv("PULSE_SCHEDULER_SWEEP_SCHEDULE"); schedule != "" {
		config.Scheduler.SweepSchedule = schedule
	}
	if retention := os.Getenv("PULSE_SCHEDULER_JOB_RETENTION"); retention != "" {
		config.Scheduler.JobRetention = retention
	}
	if sweepConcurrency := os.Getenv("PULSE_SCHEDULER_SWEEP_CONCURRENCY"); sweepConcurrency != "" {
		if sc, err := strconv.Atoi(sweepConcurrency); err == nil {
			config.Scheduler.SweepConcurrency = sc
		}
	}

	// Sync configuration
	if windowDays := os.Getenv("PULSE_SYNC_WINDOW_DAYS"); windowDays != "" {
		if wd, err := strconv.Atoi(windowDays); err == nil {
			config.Sync.WindowDays = wd
		}
	}
	if maxPages := os.Getenv("PULSE_SYNC_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Sync.MaxPages = mp
		}
	}
	if requestTimeout := os.Getenv("PULSE_SYNC_REQUEST_TIMEOUT"); requestTimeout != "" {
		config.Sync.RequestTimeout = requestTimeout
	}

	// Cache configuration
	if sessionTTL := os.Getenv("PULSE_CACHE_SESSION_TTL"); sessionTTL != "" {
		config.Cache.SessionTTL = sessionTTL
	}
	if persistentTTL := os.Getenv("PULSE_CACHE_PERSISTENT_TTL"); persistentTTL != "" {
		config.Cache.PersistentTTL = persistentTTL
	}
	if taskResultTTL := os.Getenv("PULSE_CACHE_TASK_RESULT_TTL"); taskResultTTL != "" {
		config.Cache.TaskResultTTL = taskResultTTL
	}

	// Provider client configuration
	if baseURL := os.Getenv("PULSE_GITHUB_BASE_URL"); baseURL != "" {
		config.GitHub.BaseURL = baseURL
	}
	if pageSize := os.Getenv("PULSE_JIRA_PAGE_SIZE"); pageSize != "" {
		if ps, err := strconv.Atoi(pageSize); err == nil {
			config.Jira.PageSize = ps
		}
	}
	if pageDelay := os.Getenv("PULSE_JIRA_PAGE_DELAY"); pageDelay != "" {
		config.Jira.PageDelay = pageDelay
	}
	if baseURL := os.Getenv("PULSE_TRELLO_BASE_URL"); baseURL != "" {
		config.Trello.BaseURL = baseURL
	}

	// Seeds configuration
	if seedsDir := os.Getenv("PULSE_SEEDS_DIR"); seedsDir != "" {
		config.Seeds.Dir = seedsDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateSweepSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSweepSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// SweepInterval derives the gap between consecutive sweep runs from the
// cron schedule, for staleness checks. Falls back to one hour when the
// schedule does not parse.
func (c *SchedulerConfig) SweepInterval() time.Duration {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(c.SweepSchedule)
	if err != nil {
		return time.Hour
	}
	first := schedule.Next(time.Now())
	interval := schedule.Next(first).Sub(first)
	if interval <= 0 {
		return time.Hour
	}
	return interval
}

// RetryPolicyFor returns the retry config for a sync trigger, falling back to single-attempt
func (c *SyncConfig) RetryPolicyFor(trigger string) RetryConfig {
	switch trigger {
	case "initial":
		return c.InitialRetry
	case "periodic":
		return c.PeriodicRetry
	case "manual":
		return c.ManualRetry
	default:
		return RetryConfig{MaxAttempts: 1, Backoff: "0s"}
	}
}

// BackoffDuration parses the configured backoff, falling back to 60s on bad input
func (r RetryConfig) BackoffDuration() time.Duration {
	return ParseDurationOr(r.Backoff, 60*time.Second)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are allowed
// Test URLs are only allowed in development mode
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}
