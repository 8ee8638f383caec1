package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete schedswap configuration
type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	Adaptation AdaptationConfig `mapstructure:"adaptation"`
	Switch     SwitchConfig     `mapstructure:"switch"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	TUI        TUIConfig        `mapstructure:"tui"`
	Sim        SimConfig        `mapstructure:"sim"`
}

// SchedulerConfig controls the scheduler core and the built-in plugins
type SchedulerConfig struct {
	// DefaultStrategy is the strategy activated at startup
	// Options: "round_robin", "static_priority", "edf"
	DefaultStrategy string `mapstructure:"default_strategy"`
	// TimeSliceTicks is the round-robin slice length in clock ticks
	TimeSliceTicks int `mapstructure:"time_slice_ticks"`
	// QueueCapacity is the ready-queue arena size (number of task slots)
	QueueCapacity int `mapstructure:"queue_capacity"`
	// Aging controls priority aging in the bitmap ready queue
	Aging AgingConfig `mapstructure:"aging"`
}

// AgingConfig controls priority aging
type AgingConfig struct {
	// Enabled turns aging passes on (default: true)
	Enabled bool `mapstructure:"enabled"`
	// PeriodTicks is the minimum spacing between aging passes
	PeriodTicks int `mapstructure:"period_ticks"`
	// ThresholdTicks is how long a task must wait before it is boosted
	ThresholdTicks int `mapstructure:"threshold_ticks"`
	// Boost is how many priority levels a starved task gains per pass
	Boost int `mapstructure:"boost"`
}

// DecisionConfig controls strategy selection
type DecisionConfig struct {
	// MatrixBiasPct keeps the lookup-table answer when its score is within
	// this percentage of the best-scoring alternative (default: 90)
	MatrixBiasPct int `mapstructure:"matrix_bias_pct"`
	// Weights blends the per-concern fitness scores; they should sum to 100
	Weights WeightsConfig `mapstructure:"weights"`
	// DeadlineMissLimit short-circuits to the real-time strategy above this
	DeadlineMissLimit int `mapstructure:"deadline_miss_limit"`
	// WorstLatencyLimitUs short-circuits to the real-time strategy above this
	WorstLatencyLimitUs int `mapstructure:"worst_latency_limit_us"`
	// ContentionLimit short-circuits to the contention-aware strategy above this
	ContentionLimit int `mapstructure:"contention_limit"`
}

// WeightsConfig holds the scoring weights
type WeightsConfig struct {
	CPU        int `mapstructure:"cpu"`
	IPC        int `mapstructure:"ipc"`
	Deadline   int `mapstructure:"deadline"`
	Contention int `mapstructure:"contention"`
}

// AdaptationConfig controls the adaptation engine
type AdaptationConfig struct {
	// Mode is the adaptation mode
	// Options: "disabled", "manual", "assisted", "automatic", "learning"
	Mode string `mapstructure:"mode"`
	// EvalPeriodMs is the sampling loop period in milliseconds
	EvalPeriodMs int `mapstructure:"eval_period_ms"`
	// StabilityWindowMs is the minimum time between applied switches
	StabilityWindowMs int `mapstructure:"stability_window_ms"`
	// Alpha is the EWMA smoothing factor for the learning model (0..1)
	Alpha float64 `mapstructure:"alpha"`
	// ConfidenceThreshold is the minimum confidence to auto-apply a switch
	ConfidenceThreshold int `mapstructure:"confidence_threshold"`
}

// SwitchConfig controls the switch controller policy
type SwitchConfig struct {
	// MinIntervalMs is the minimum spacing between switch attempts
	MinIntervalMs int `mapstructure:"min_interval_ms"`
	// MaxDurationUs is the admission bound on the estimated switch duration
	MaxDurationUs int `mapstructure:"max_duration_us"`
	// MaxCriticalUs is the critical-section budget; violations are recorded
	MaxCriticalUs int `mapstructure:"max_critical_us"`
	// DryRun validates switches without changing any state
	DryRun bool `mapstructure:"dry_run"`
	// MigrationStrategy is the default task migration strategy
	// Options: "preserve_order", "priority_based", "deadline_based"
	MigrationStrategy string `mapstructure:"migration_strategy"`
}

// MonitorConfig controls the metrics collector
type MonitorConfig struct {
	// PeriodMs is the sampling interval in milliseconds
	PeriodMs int `mapstructure:"period_ms"`
	// RingSize is the number of raw samples kept for variance
	RingSize int `mapstructure:"ring_size"`
	// Alpha is the EWMA smoothing factor for aggregates (0..1)
	Alpha float64 `mapstructure:"alpha"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// TUIConfig controls the dashboard behavior
type TUIConfig struct {
	// RefreshMs is how often the dashboard redraws
	RefreshMs int `mapstructure:"refresh_ms"`
	// HistoryRows is how many switch records the history table shows
	HistoryRows int `mapstructure:"history_rows"`
	// Theme is the color theme for the TUI (default: "default")
	Theme string `mapstructure:"theme"`
}

// SimConfig controls the scenario simulator
type SimConfig struct {
	// Scenario is the path to a YAML scenario file
	Scenario string `mapstructure:"scenario"`
	// Speed scales virtual time against wall time; 0 runs as fast as possible
	Speed float64 `mapstructure:"speed"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			DefaultStrategy: "round_robin",
			TimeSliceTicks:  10,
			QueueCapacity:   1024,
			Aging: AgingConfig{
				Enabled:        true,
				PeriodTicks:    1000,
				ThresholdTicks: 5000,
				Boost:          10,
			},
		},
		Decision: DecisionConfig{
			MatrixBiasPct: 90,
			Weights: WeightsConfig{
				CPU:        30,
				IPC:        25,
				Deadline:   35,
				Contention: 10,
			},
			DeadlineMissLimit:   5,
			WorstLatencyLimitUs: 1000,
			ContentionLimit:     50,
		},
		Adaptation: AdaptationConfig{
			Mode:                "assisted",
			EvalPeriodMs:        100,
			StabilityWindowMs:   1000,
			Alpha:               0.10,
			ConfidenceThreshold: 80,
		},
		Switch: SwitchConfig{
			MinIntervalMs:     100,
			MaxDurationUs:     500,
			MaxCriticalUs:     100,
			DryRun:            false,
			MigrationStrategy: "preserve_order",
		},
		Monitor: MonitorConfig{
			PeriodMs: 100,
			RingSize: 64,
			Alpha:    0.10,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		TUI: TUIConfig{
			RefreshMs:   200,
			HistoryRows: 8,
			Theme:       "default",
		},
		Sim: SimConfig{
			Scenario: "",
			Speed:    0, // As fast as possible by default
		},
	}
}

// EvalPeriod returns the adaptation sampling period as a time.Duration
func (c *AdaptationConfig) EvalPeriod() time.Duration {
	return time.Duration(c.EvalPeriodMs) * time.Millisecond
}

// StabilityWindow returns the switch hysteresis window as a time.Duration
func (c *AdaptationConfig) StabilityWindow() time.Duration {
	return time.Duration(c.StabilityWindowMs) * time.Millisecond
}

// Period returns the monitor sampling interval as a time.Duration
func (c *MonitorConfig) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

// Refresh returns the dashboard redraw interval as a time.Duration
func (c *TUIConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// MinIntervalMicros returns the switch spacing in simulated microseconds
func (c *SwitchConfig) MinIntervalMicros() uint64 {
	return uint64(c.MinIntervalMs) * 1000
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.default_strategy", defaults.Scheduler.DefaultStrategy)
	viper.SetDefault("scheduler.time_slice_ticks", defaults.Scheduler.TimeSliceTicks)
	viper.SetDefault("scheduler.queue_capacity", defaults.Scheduler.QueueCapacity)
	viper.SetDefault("scheduler.aging.enabled", defaults.Scheduler.Aging.Enabled)
	viper.SetDefault("scheduler.aging.period_ticks", defaults.Scheduler.Aging.PeriodTicks)
	viper.SetDefault("scheduler.aging.threshold_ticks", defaults.Scheduler.Aging.ThresholdTicks)
	viper.SetDefault("scheduler.aging.boost", defaults.Scheduler.Aging.Boost)

	// Decision defaults
	viper.SetDefault("decision.matrix_bias_pct", defaults.Decision.MatrixBiasPct)
	viper.SetDefault("decision.weights.cpu", defaults.Decision.Weights.CPU)
	viper.SetDefault("decision.weights.ipc", defaults.Decision.Weights.IPC)
	viper.SetDefault("decision.weights.deadline", defaults.Decision.Weights.Deadline)
	viper.SetDefault("decision.weights.contention", defaults.Decision.Weights.Contention)
	viper.SetDefault("decision.deadline_miss_limit", defaults.Decision.DeadlineMissLimit)
	viper.SetDefault("decision.worst_latency_limit_us", defaults.Decision.WorstLatencyLimitUs)
	viper.SetDefault("decision.contention_limit", defaults.Decision.ContentionLimit)

	// Adaptation defaults
	viper.SetDefault("adaptation.mode", defaults.Adaptation.Mode)
	viper.SetDefault("adaptation.eval_period_ms", defaults.Adaptation.EvalPeriodMs)
	viper.SetDefault("adaptation.stability_window_ms", defaults.Adaptation.StabilityWindowMs)
	viper.SetDefault("adaptation.alpha", defaults.Adaptation.Alpha)
	viper.SetDefault("adaptation.confidence_threshold", defaults.Adaptation.ConfidenceThreshold)

	// Switch defaults
	viper.SetDefault("switch.min_interval_ms", defaults.Switch.MinIntervalMs)
	viper.SetDefault("switch.max_duration_us", defaults.Switch.MaxDurationUs)
	viper.SetDefault("switch.max_critical_us", defaults.Switch.MaxCriticalUs)
	viper.SetDefault("switch.dry_run", defaults.Switch.DryRun)
	viper.SetDefault("switch.migration_strategy", defaults.Switch.MigrationStrategy)

	// Monitor defaults
	viper.SetDefault("monitor.period_ms", defaults.Monitor.PeriodMs)
	viper.SetDefault("monitor.ring_size", defaults.Monitor.RingSize)
	viper.SetDefault("monitor.alpha", defaults.Monitor.Alpha)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// TUI defaults
	viper.SetDefault("tui.refresh_ms", defaults.TUI.RefreshMs)
	viper.SetDefault("tui.history_rows", defaults.TUI.HistoryRows)
	viper.SetDefault("tui.theme", defaults.TUI.Theme)

	// Sim defaults
	viper.SetDefault("sim.scenario", defaults.Sim.Scenario)
	viper.SetDefault("sim.speed", defaults.Sim.Speed)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "schedswap")
	}
	// Fall back to ~/.config/schedswap
	home, err := os.UserHomeDir()
	if err != nil {
		return ".schedswap"
	}
	return filepath.Join(home, ".config", "schedswap")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidStrategies returns the list of strategies selectable at startup
func ValidStrategies() []string {
	return []string{"round_robin", "static_priority", "edf"}
}

// IsValidStrategy checks if the given strategy name is valid
func IsValidStrategy(name string) bool {
	for _, valid := range ValidStrategies() {
		if name == valid {
			return true
		}
	}
	return false
}
