package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
		},
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:  "all services",
			input: "http,worker,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "services with spaces",
			input: " http , worker ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
		},
		{
			name:  "duplicate services",
			input: "http,http,worker",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,scheduler",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("ParseServices(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServices(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "http,worker" {
		t.Errorf("Services default = %q, want %q", cfg.Services, "http,worker")
	}
	if !cfg.IsHTTPServerEnabled() || !cfg.IsWorkerEnabled() {
		t.Error("http and worker should be enabled by default")
	}
	if cfg.IsReaperEnabled() {
		t.Error("reaper should be disabled by default")
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port default = %d, want 5432", cfg.Postgres.Port)
	}
	if cfg.Worker.QueueCapacity != 1024 {
		t.Errorf("Worker.QueueCapacity default = %d, want 1024", cfg.Worker.QueueCapacity)
	}
	if cfg.Worker.PollInterval != 500*time.Millisecond {
		t.Errorf("Worker.PollInterval default = %v, want 500ms", cfg.Worker.PollInterval)
	}
	if cfg.AI.Enabled() {
		t.Error("AI should be disabled without an API key")
	}
}

func TestAppConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVICES", "reaper")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("WORKER_QUEUE_CAPACITY", "8")
	t.Setenv("GEMINI_API_KEY", "  key-123  ")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsReaperEnabled() || cfg.IsHTTPServerEnabled() {
		t.Errorf("SERVICES override not applied: %q", cfg.Services)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("Postgres.Host = %q, want db.internal", cfg.Postgres.Host)
	}
	if cfg.Worker.QueueCapacity != 8 {
		t.Errorf("Worker.QueueCapacity = %d, want 8", cfg.Worker.QueueCapacity)
	}
	if cfg.AI.GeminiAPIKey != "key-123" {
		t.Errorf("AI.GeminiAPIKey = %q, want trimmed key-123", cfg.AI.GeminiAPIKey)
	}
}

func TestReaperConfigSanitize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:        time.Second,
		RunningMaxAge:   time.Second,
		PendingMaxAge:   time.Second,
		RetentionMaxAge: time.Minute,
		BatchSize:       0,
	}
	cfg.Sanitize()

	if cfg.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m floor", cfg.Interval)
	}
	if cfg.PendingMaxAge != 5*time.Minute {
		t.Errorf("PendingMaxAge = %v, want 5m floor", cfg.PendingMaxAge)
	}
	if cfg.RetentionMaxAge != time.Hour {
		t.Errorf("RetentionMaxAge = %v, want 1h floor", cfg.RetentionMaxAge)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1 floor", cfg.BatchSize)
	}

	cfg.BatchSize = 50000
	cfg.Sanitize()
	if cfg.BatchSize != 10000 {
		t.Errorf("BatchSize = %d, want 10000 cap", cfg.BatchSize)
	}
}

func TestHTTPConfigSanitize(t *testing.T) {
	cfg := HTTPConfig{}
	cfg.Sanitize()

	if cfg.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", cfg.ReadTimeout)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d, want 1MB", cfg.MaxBodyBytes)
	}
}
