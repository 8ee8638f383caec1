package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "switch.max_critical_us")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidAdaptationModes returns the list of valid adaptation modes
func ValidAdaptationModes() []string {
	return []string{"disabled", "manual", "assisted", "automatic", "learning"}
}

// ValidMigrationStrategies returns the list of valid migration strategies
func ValidMigrationStrategies() []string {
	return []string{"preserve_order", "priority_based", "deadline_based"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateDecision()...)
	errors = append(errors, c.validateAdaptation()...)
	errors = append(errors, c.validateSwitch()...)
	errors = append(errors, c.validateMonitor()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTUI()...)
	errors = append(errors, c.validateSim()...)

	return errors
}

func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if !IsValidStrategy(c.Scheduler.DefaultStrategy) {
		errors = append(errors, ValidationError{
			Field:   "scheduler.default_strategy",
			Value:   c.Scheduler.DefaultStrategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStrategies(), ", ")),
		})
	}

	if c.Scheduler.TimeSliceTicks < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.time_slice_ticks",
			Value:   c.Scheduler.TimeSliceTicks,
			Message: "must be at least 1",
		})
	}

	if c.Scheduler.QueueCapacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.queue_capacity",
			Value:   c.Scheduler.QueueCapacity,
			Message: "must be at least 1",
		})
	}

	if c.Scheduler.Aging.Enabled {
		if c.Scheduler.Aging.PeriodTicks < 1 {
			errors = append(errors, ValidationError{
				Field:   "scheduler.aging.period_ticks",
				Value:   c.Scheduler.Aging.PeriodTicks,
				Message: "must be at least 1 when aging is enabled",
			})
		}
		if c.Scheduler.Aging.ThresholdTicks < 1 {
			errors = append(errors, ValidationError{
				Field:   "scheduler.aging.threshold_ticks",
				Value:   c.Scheduler.Aging.ThresholdTicks,
				Message: "must be at least 1 when aging is enabled",
			})
		}
		if c.Scheduler.Aging.Boost < 1 || c.Scheduler.Aging.Boost > 255 {
			errors = append(errors, ValidationError{
				Field:   "scheduler.aging.boost",
				Value:   c.Scheduler.Aging.Boost,
				Message: "must be between 1 and 255",
			})
		}
	}

	return errors
}

func (c *Config) validateDecision() []ValidationError {
	var errors []ValidationError

	if c.Decision.MatrixBiasPct < 0 || c.Decision.MatrixBiasPct > 100 {
		errors = append(errors, ValidationError{
			Field:   "decision.matrix_bias_pct",
			Value:   c.Decision.MatrixBiasPct,
			Message: "must be between 0 and 100",
		})
	}

	w := c.Decision.Weights
	weightFields := []struct {
		field string
		value int
	}{
		{"decision.weights.cpu", w.CPU},
		{"decision.weights.ipc", w.IPC},
		{"decision.weights.deadline", w.Deadline},
		{"decision.weights.contention", w.Contention},
	}
	for _, wf := range weightFields {
		if wf.value < 0 || wf.value > 100 {
			errors = append(errors, ValidationError{
				Field:   wf.field,
				Value:   wf.value,
				Message: "must be between 0 and 100",
			})
		}
	}
	if sum := w.CPU + w.IPC + w.Deadline + w.Contention; sum != 100 {
		errors = append(errors, ValidationError{
			Field:   "decision.weights",
			Value:   sum,
			Message: "weights must sum to 100",
		})
	}

	if c.Decision.DeadlineMissLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "decision.deadline_miss_limit",
			Value:   c.Decision.DeadlineMissLimit,
			Message: "must be non-negative",
		})
	}

	if c.Decision.WorstLatencyLimitUs < 0 {
		errors = append(errors, ValidationError{
			Field:   "decision.worst_latency_limit_us",
			Value:   c.Decision.WorstLatencyLimitUs,
			Message: "must be non-negative",
		})
	}

	if c.Decision.ContentionLimit < 0 || c.Decision.ContentionLimit > 100 {
		errors = append(errors, ValidationError{
			Field:   "decision.contention_limit",
			Value:   c.Decision.ContentionLimit,
			Message: "must be between 0 and 100",
		})
	}

	return errors
}

func (c *Config) validateAdaptation() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidAdaptationModes(), c.Adaptation.Mode) {
		errors = append(errors, ValidationError{
			Field:   "adaptation.mode",
			Value:   c.Adaptation.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidAdaptationModes(), ", ")),
		})
	}

	if c.Adaptation.EvalPeriodMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "adaptation.eval_period_ms",
			Value:   c.Adaptation.EvalPeriodMs,
			Message: "must be at least 1",
		})
	}

	if c.Adaptation.StabilityWindowMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "adaptation.stability_window_ms",
			Value:   c.Adaptation.StabilityWindowMs,
			Message: "must be non-negative",
		})
	}

	if c.Adaptation.Alpha <= 0 || c.Adaptation.Alpha > 1 {
		errors = append(errors, ValidationError{
			Field:   "adaptation.alpha",
			Value:   c.Adaptation.Alpha,
			Message: "must be greater than 0 and at most 1",
		})
	}

	if c.Adaptation.ConfidenceThreshold < 0 || c.Adaptation.ConfidenceThreshold > 100 {
		errors = append(errors, ValidationError{
			Field:   "adaptation.confidence_threshold",
			Value:   c.Adaptation.ConfidenceThreshold,
			Message: "must be between 0 and 100",
		})
	}

	return errors
}

func (c *Config) validateSwitch() []ValidationError {
	var errors []ValidationError

	if c.Switch.MinIntervalMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "switch.min_interval_ms",
			Value:   c.Switch.MinIntervalMs,
			Message: "must be non-negative",
		})
	}

	if c.Switch.MaxDurationUs < 1 {
		errors = append(errors, ValidationError{
			Field:   "switch.max_duration_us",
			Value:   c.Switch.MaxDurationUs,
			Message: "must be at least 1",
		})
	}

	if c.Switch.MaxCriticalUs < 1 {
		errors = append(errors, ValidationError{
			Field:   "switch.max_critical_us",
			Value:   c.Switch.MaxCriticalUs,
			Message: "must be at least 1",
		})
	} else if c.Switch.MaxCriticalUs > c.Switch.MaxDurationUs {
		errors = append(errors, ValidationError{
			Field:   "switch.max_critical_us",
			Value:   c.Switch.MaxCriticalUs,
			Message: "must not exceed switch.max_duration_us",
		})
	}

	if !slices.Contains(ValidMigrationStrategies(), c.Switch.MigrationStrategy) {
		errors = append(errors, ValidationError{
			Field:   "switch.migration_strategy",
			Value:   c.Switch.MigrationStrategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidMigrationStrategies(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	if c.Monitor.PeriodMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.period_ms",
			Value:   c.Monitor.PeriodMs,
			Message: "must be at least 1",
		})
	}

	if c.Monitor.RingSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.ring_size",
			Value:   c.Monitor.RingSize,
			Message: "must be at least 1",
		})
	}

	if c.Monitor.Alpha <= 0 || c.Monitor.Alpha > 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.alpha",
			Value:   c.Monitor.Alpha,
			Message: "must be greater than 0 and at most 1",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	if c.TUI.RefreshMs < 16 {
		errors = append(errors, ValidationError{
			Field:   "tui.refresh_ms",
			Value:   c.TUI.RefreshMs,
			Message: "must be at least 16",
		})
	}

	if c.TUI.HistoryRows < 1 {
		errors = append(errors, ValidationError{
			Field:   "tui.history_rows",
			Value:   c.TUI.HistoryRows,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateSim() []ValidationError {
	var errors []ValidationError

	if c.Sim.Speed < 0 {
		errors = append(errors, ValidationError{
			Field:   "sim.speed",
			Value:   c.Sim.Speed,
			Message: "must be non-negative",
		})
	}

	return errors
}
