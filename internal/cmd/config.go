package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/microkernel-labs/schedswap/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify schedswap configuration",
	Long: `View or modify schedswap configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  schedswap config set scheduler.default_strategy edf
  schedswap config set adaptation.mode automatic
  schedswap config set switch.max_critical_us 80

Valid keys:
  scheduler.default_strategy    - Strategy activated at startup
                                  Options: round_robin, static_priority, edf
  scheduler.time_slice_ticks    - Round-robin slice length in ticks
  adaptation.mode               - Adaptation mode
                                  Options: disabled, manual, assisted, automatic, learning
  adaptation.confidence_threshold - Minimum confidence to auto-apply a switch
  switch.min_interval_ms        - Minimum spacing between switches
  switch.max_duration_us        - Admission bound on estimated switch duration
  switch.max_critical_us        - Critical-section budget in microseconds
  switch.migration_strategy     - Task migration strategy
                                  Options: preserve_order, priority_based, deadline_based
  monitor.period_ms             - Sampling interval in milliseconds
  logging.level                 - Log level (debug/info/warn/error)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/schedswap/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("scheduler:")
	fmt.Printf("  default_strategy: %s\n", cfg.Scheduler.DefaultStrategy)
	fmt.Printf("  time_slice_ticks: %d\n", cfg.Scheduler.TimeSliceTicks)
	fmt.Printf("  queue_capacity: %d\n", cfg.Scheduler.QueueCapacity)
	fmt.Printf("  aging: enabled=%v period=%d threshold=%d boost=%d\n",
		cfg.Scheduler.Aging.Enabled, cfg.Scheduler.Aging.PeriodTicks,
		cfg.Scheduler.Aging.ThresholdTicks, cfg.Scheduler.Aging.Boost)

	fmt.Println("decision:")
	fmt.Printf("  matrix_bias_pct: %d\n", cfg.Decision.MatrixBiasPct)
	fmt.Printf("  weights: cpu=%d ipc=%d deadline=%d contention=%d\n",
		cfg.Decision.Weights.CPU, cfg.Decision.Weights.IPC,
		cfg.Decision.Weights.Deadline, cfg.Decision.Weights.Contention)

	fmt.Println("adaptation:")
	fmt.Printf("  mode: %s\n", cfg.Adaptation.Mode)
	fmt.Printf("  eval_period_ms: %d\n", cfg.Adaptation.EvalPeriodMs)
	fmt.Printf("  stability_window_ms: %d\n", cfg.Adaptation.StabilityWindowMs)
	fmt.Printf("  confidence_threshold: %d\n", cfg.Adaptation.ConfidenceThreshold)

	fmt.Println("switch:")
	fmt.Printf("  min_interval_ms: %d\n", cfg.Switch.MinIntervalMs)
	fmt.Printf("  max_duration_us: %d\n", cfg.Switch.MaxDurationUs)
	fmt.Printf("  max_critical_us: %d\n", cfg.Switch.MaxCriticalUs)
	fmt.Printf("  migration_strategy: %s\n", cfg.Switch.MigrationStrategy)

	fmt.Println("monitor:")
	fmt.Printf("  period_ms: %d\n", cfg.Monitor.PeriodMs)
	fmt.Printf("  ring_size: %d\n", cfg.Monitor.RingSize)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"scheduler.default_strategy":      "string",
		"scheduler.time_slice_ticks":      "int",
		"scheduler.queue_capacity":        "int",
		"adaptation.mode":                 "string",
		"adaptation.eval_period_ms":       "int",
		"adaptation.stability_window_ms":  "int",
		"adaptation.confidence_threshold": "int",
		"switch.min_interval_ms":          "int",
		"switch.max_duration_us":          "int",
		"switch.max_critical_us":          "int",
		"switch.migration_strategy":       "string",
		"monitor.period_ms":               "int",
		"monitor.ring_size":               "int",
		"logging.level":                   "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'schedswap config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		switch key {
		case "scheduler.default_strategy":
			if !config.IsValidStrategy(value) {
				return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
					key, value, strings.Join(config.ValidStrategies(), ", "))
			}
		case "adaptation.mode":
			if !contains(config.ValidAdaptationModes(), value) {
				return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
					key, value, strings.Join(config.ValidAdaptationModes(), ", "))
			}
		case "switch.migration_strategy":
			if !contains(config.ValidMigrationStrategies(), value) {
				return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
					key, value, strings.Join(config.ValidMigrationStrategies(), ", "))
			}
		case "logging.level":
			if !contains(config.ValidLogLevels(), value) {
				return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
					key, value, strings.Join(config.ValidLogLevels(), ", "))
			}
		}
		typedValue = value
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'schedswap config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Schedswap Configuration

# Scheduler core
scheduler:
  # Strategy activated at startup
  # Options: round_robin, static_priority, edf
  default_strategy: round_robin
  # Round-robin slice length in clock ticks
  time_slice_ticks: 10
  # Ready-queue arena size
  queue_capacity: 1024
  aging:
    enabled: true
    period_ticks: 1000
    threshold_ticks: 5000
    boost: 10

# Strategy selection
decision:
  # Keep the lookup-table answer within this percentage of the best score
  matrix_bias_pct: 90
  weights:
    cpu: 30
    ipc: 25
    deadline: 35
    contention: 10

# Adaptation engine
adaptation:
  # Options: disabled, manual, assisted, automatic, learning
  mode: assisted
  eval_period_ms: 100
  stability_window_ms: 1000
  alpha: 0.10
  confidence_threshold: 80

# Switch controller
switch:
  min_interval_ms: 100
  max_duration_us: 500
  max_critical_us: 100
  dry_run: false
  # Options: preserve_order, priority_based, deadline_based
  migration_strategy: preserve_order

# Metrics collector
monitor:
  period_ms: 100
  ring_size: 64
  alpha: 0.10

# Debug logging
logging:
  enabled: true
  level: info
  max_size_mb: 10
  max_backups: 3
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize schedswap's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/schedswap/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")
	fmt.Println("\nEnvironment variables: SCHEDSWAP_* (e.g., SCHEDSWAP_SCHEDULER_DEFAULT_STRATEGY)")

	return nil
}
