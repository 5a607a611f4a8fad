package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Scheduler     SchedulerConfig     `toml:"scheduler"`
	Resources     ResourcesConfig     `toml:"resources"`
	Runner        RunnerConfig        `toml:"runner"`
	GitHub        GitHubConfig        `toml:"github"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Batches       []BatchConfig       `toml:"batch"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	RepoURL      string `toml:"repo_url"`
	WorkspaceDir string `toml:"workspace_dir"`
	BacklogDir   string `toml:"backlog_dir"`
	DatabasePath string `toml:"database_path"`
}

// SchedulerConfig holds execution strategy settings
type SchedulerConfig struct {
	Strategy               string `toml:"strategy"`
	MaxConcurrent          int    `toml:"max_concurrent"`
	ReservedSlots          int    `toml:"reserved_slots"`
	BoostThresholdSeconds  int    `toml:"priority_boost_threshold_seconds"`
	DisableStarvationBoost bool   `toml:"disable_starvation_prevention"`
}

// ResourcesConfig sizes the resource pools
type ResourcesConfig struct {
	Slots            int `toml:"slots"`
	CPUCores         int `toml:"cpu_cores"`
	MemoryMB         int `toml:"memory_mb"`
	FastStorageSlots int `toml:"fast_storage_slots"`
}

// RunnerConfig holds external runner settings
type RunnerConfig struct {
	Command        []string `toml:"command"`
	InstallCommand []string `toml:"install_command"`
	KeepWorkspaces bool     `toml:"keep_workspaces"`
	SkipPR         bool     `toml:"skip_pr"`
}

// GitHubConfig holds issue polling settings
type GitHubConfig struct {
	Repo           string `toml:"repo"`
	CandidateLabel string `toml:"candidate_label"`
	ProcessedLabel string `toml:"processed_label"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// BatchConfig defines a scheduled batch run
type BatchConfig struct {
	Name          string `toml:"name"`
	Cron          string `toml:"cron"`
	Strategy      string `toml:"strategy"`
	MaxConcurrent int    `toml:"max_concurrent"`
	Label         string `toml:"label"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkspaceDir: filepath.Join(home, ".flow-orch", "workspaces"),
			BacklogDir:   "backlog",
			DatabasePath: filepath.Join(home, ".flow-orch", "orchestrator.db"),
		},
		Scheduler: SchedulerConfig{
			Strategy: "parallel",
		},
		Runner: RunnerConfig{
			Command:        []string{"npx", "claude-flow@alpha", "hive-mind", "spawn"},
			InstallCommand: []string{"npm", "install", "claude-flow@alpha"},
		},
		GitHub: GitHubConfig{
			CandidateLabel: "flow-orch",
			ProcessedLabel: "flow-orch-done",
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.WorkspaceDir = ExpandPath(cfg.General.WorkspaceDir)
	cfg.General.BacklogDir = ExpandPath(cfg.General.BacklogDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Scheduler.Strategy {
	case "", "sequential", "parallel", "priority":
	default:
		return fmt.Errorf("unknown strategy %q in [scheduler]", c.Scheduler.Strategy)
	}
	if c.Scheduler.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if c.Scheduler.MaxConcurrent > 0 && c.Scheduler.ReservedSlots > c.Scheduler.MaxConcurrent {
		return fmt.Errorf("reserved_slots %d exceeds max_concurrent %d",
			c.Scheduler.ReservedSlots, c.Scheduler.MaxConcurrent)
	}
	for i := range c.Batches {
		if err := c.Batches[i].Validate(); err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks a single batch definition
func (b *BatchConfig) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	if b.Cron == "" {
		return fmt.Errorf("cron is required")
	}
	switch b.Strategy {
	case "", "sequential", "parallel", "priority":
	default:
		return fmt.Errorf("unknown strategy %q", b.Strategy)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flow-orch", "config.toml")
}
