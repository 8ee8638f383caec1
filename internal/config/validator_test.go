package config

import (
	"strings"
	"testing"
)

func hasField(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

func TestConfig_Validate_Scheduler(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		hasError bool
	}{
		{
			name:     "valid edf strategy",
			mutate:   func(c *Config) { c.Scheduler.DefaultStrategy = "edf" },
			field:    "scheduler.default_strategy",
			hasError: false,
		},
		{
			name:     "unknown strategy",
			mutate:   func(c *Config) { c.Scheduler.DefaultStrategy = "lottery" },
			field:    "scheduler.default_strategy",
			hasError: true,
		},
		{
			name:     "case sensitive strategy",
			mutate:   func(c *Config) { c.Scheduler.DefaultStrategy = "EDF" },
			field:    "scheduler.default_strategy",
			hasError: true,
		},
		{
			name:     "zero time slice",
			mutate:   func(c *Config) { c.Scheduler.TimeSliceTicks = 0 },
			field:    "scheduler.time_slice_ticks",
			hasError: true,
		},
		{
			name:     "zero queue capacity",
			mutate:   func(c *Config) { c.Scheduler.QueueCapacity = 0 },
			field:    "scheduler.queue_capacity",
			hasError: true,
		},
		{
			name:     "zero aging period",
			mutate:   func(c *Config) { c.Scheduler.Aging.PeriodTicks = 0 },
			field:    "scheduler.aging.period_ticks",
			hasError: true,
		},
		{
			name: "zero aging period ignored when disabled",
			mutate: func(c *Config) {
				c.Scheduler.Aging.Enabled = false
				c.Scheduler.Aging.PeriodTicks = 0
			},
			field:    "scheduler.aging.period_ticks",
			hasError: false,
		},
		{
			name:     "boost too large",
			mutate:   func(c *Config) { c.Scheduler.Aging.Boost = 256 },
			field:    "scheduler.aging.boost",
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if got := hasField(errs, tt.field); got != tt.hasError {
				t.Errorf("Validate(): error on %s = %v, want %v (errs: %v)", tt.field, got, tt.hasError, errs)
			}
		})
	}
}

func TestConfig_Validate_Decision(t *testing.T) {
	t.Run("bias over 100", func(t *testing.T) {
		cfg := Default()
		cfg.Decision.MatrixBiasPct = 101
		if !hasField(cfg.Validate(), "decision.matrix_bias_pct") {
			t.Error("expected error for matrix_bias_pct > 100")
		}
	})

	t.Run("weights must sum to 100", func(t *testing.T) {
		cfg := Default()
		cfg.Decision.Weights.CPU = 50 // 50+25+35+10 = 120
		if !hasField(cfg.Validate(), "decision.weights") {
			t.Error("expected error for weights not summing to 100")
		}
	})

	t.Run("negative weight", func(t *testing.T) {
		cfg := Default()
		cfg.Decision.Weights.IPC = -5
		errs := cfg.Validate()
		if !hasField(errs, "decision.weights.ipc") {
			t.Error("expected error for negative ipc weight")
		}
	})

	t.Run("contention limit over 100", func(t *testing.T) {
		cfg := Default()
		cfg.Decision.ContentionLimit = 150
		if !hasField(cfg.Validate(), "decision.contention_limit") {
			t.Error("expected error for contention_limit > 100")
		}
	})
}

func TestConfig_Validate_Adaptation(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		hasError bool
	}{
		{"valid disabled", "disabled", false},
		{"valid manual", "manual", false},
		{"valid assisted", "assisted", false},
		{"valid automatic", "automatic", false},
		{"valid learning", "learning", false},
		{"invalid mode", "aggressive", true},
		{"empty mode", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Adaptation.Mode = tt.mode
			if got := hasField(cfg.Validate(), "adaptation.mode"); got != tt.hasError {
				t.Errorf("Validate() for mode=%q: hasError=%v, want %v", tt.mode, got, tt.hasError)
			}
		})
	}

	t.Run("alpha bounds", func(t *testing.T) {
		for _, alpha := range []float64{0, -0.1, 1.5} {
			cfg := Default()
			cfg.Adaptation.Alpha = alpha
			if !hasField(cfg.Validate(), "adaptation.alpha") {
				t.Errorf("expected error for alpha=%v", alpha)
			}
		}
		cfg := Default()
		cfg.Adaptation.Alpha = 1.0
		if hasField(cfg.Validate(), "adaptation.alpha") {
			t.Error("alpha=1.0 should be valid")
		}
	})

	t.Run("confidence threshold over 100", func(t *testing.T) {
		cfg := Default()
		cfg.Adaptation.ConfidenceThreshold = 101
		if !hasField(cfg.Validate(), "adaptation.confidence_threshold") {
			t.Error("expected error for confidence_threshold > 100")
		}
	})
}

func TestConfig_Validate_Switch(t *testing.T) {
	t.Run("zero max duration", func(t *testing.T) {
		cfg := Default()
		cfg.Switch.MaxDurationUs = 0
		if !hasField(cfg.Validate(), "switch.max_duration_us") {
			t.Error("expected error for zero max_duration_us")
		}
	})

	t.Run("critical budget exceeds duration budget", func(t *testing.T) {
		cfg := Default()
		cfg.Switch.MaxCriticalUs = 600 // above max_duration_us of 500
		if !hasField(cfg.Validate(), "switch.max_critical_us") {
			t.Error("expected error for max_critical_us > max_duration_us")
		}
	})

	t.Run("negative min interval", func(t *testing.T) {
		cfg := Default()
		cfg.Switch.MinIntervalMs = -1
		if !hasField(cfg.Validate(), "switch.min_interval_ms") {
			t.Error("expected error for negative min_interval_ms")
		}
	})

	t.Run("migration strategies", func(t *testing.T) {
		for _, name := range ValidMigrationStrategies() {
			cfg := Default()
			cfg.Switch.MigrationStrategy = name
			if hasField(cfg.Validate(), "switch.migration_strategy") {
				t.Errorf("strategy %q should be valid", name)
			}
		}
		cfg := Default()
		cfg.Switch.MigrationStrategy = "random"
		if !hasField(cfg.Validate(), "switch.migration_strategy") {
			t.Error("expected error for unknown migration strategy")
		}
	})
}

func TestConfig_Validate_Monitor(t *testing.T) {
	t.Run("zero period", func(t *testing.T) {
		cfg := Default()
		cfg.Monitor.PeriodMs = 0
		if !hasField(cfg.Validate(), "monitor.period_ms") {
			t.Error("expected error for zero period_ms")
		}
	})

	t.Run("zero ring size", func(t *testing.T) {
		cfg := Default()
		cfg.Monitor.RingSize = 0
		if !hasField(cfg.Validate(), "monitor.ring_size") {
			t.Error("expected error for zero ring_size")
		}
	})

	t.Run("alpha out of range", func(t *testing.T) {
		cfg := Default()
		cfg.Monitor.Alpha = 2.0
		if !hasField(cfg.Validate(), "monitor.alpha") {
			t.Error("expected error for alpha > 1")
		}
	})
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		hasError bool
	}{
		{"valid debug", "debug", false},
		{"valid info", "info", false},
		{"valid warn", "warn", false},
		{"valid error", "error", false},
		{"invalid level", "trace", true},
		{"case sensitive", "INFO", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level
			if got := hasField(cfg.Validate(), "logging.level"); got != tt.hasError {
				t.Errorf("Validate() for level=%q: hasError=%v, want %v", tt.level, got, tt.hasError)
			}
		})
	}

	t.Run("zero max size", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.MaxSizeMB = 0
		if !hasField(cfg.Validate(), "logging.max_size_mb") {
			t.Error("expected error for zero max_size_mb")
		}
	})
}

func TestConfig_Validate_TUI(t *testing.T) {
	t.Run("refresh too fast", func(t *testing.T) {
		cfg := Default()
		cfg.TUI.RefreshMs = 5
		if !hasField(cfg.Validate(), "tui.refresh_ms") {
			t.Error("expected error for refresh_ms < 16")
		}
	})

	t.Run("zero history rows", func(t *testing.T) {
		cfg := Default()
		cfg.TUI.HistoryRows = 0
		if !hasField(cfg.Validate(), "tui.history_rows") {
			t.Error("expected error for zero history_rows")
		}
	})
}

func TestConfig_Validate_Sim(t *testing.T) {
	cfg := Default()
	cfg.Sim.Speed = -1
	if !hasField(cfg.Validate(), "sim.speed") {
		t.Error("expected error for negative sim speed")
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.DefaultStrategy = "bogus"
	cfg.Adaptation.Mode = "bogus"
	cfg.Logging.Level = "bogus"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}
