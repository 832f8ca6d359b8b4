package config

import (
	"reflect"
	"testing"
	"time"
)

func newValid() *Config {
	cfg := New()
	cfg.Input.File = "repos.yaml"
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 2*time.Second || cfg.Retry.MaxDelay != 30*time.Second || cfg.Retry.Jitter != 0.2 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Runtime.Timeout != 60*time.Minute || cfg.Runtime.OpTimeout != 10*time.Minute {
		t.Fatalf("unexpected timeouts: %+v", cfg.Runtime)
	}
	if cfg.Runtime.Concurrency < 1 || cfg.Runtime.Concurrency > MaxConcurrency {
		t.Fatalf("concurrency %d outside [1, %d]", cfg.Runtime.Concurrency, MaxConcurrency)
	}
	if cfg.Runtime.GitBinary != "git" {
		t.Fatalf("expected git binary default, got %q", cfg.Runtime.GitBinary)
	}
}

func TestValidate_RequiresFile(t *testing.T) {
	cfg := New()
	cfg.Input.File = "   "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_NormalizesCommaDelimitedLists(t *testing.T) {
	cfg := newValid()
	cfg.Targeting.IDs = []string{"lib-a, lib-b", "lib-c", ",,"}
	cfg.Targeting.Labels = []string{"shallow,sparse"}
	cfg.Output.Emit = []string{" NDJSON "}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	if want := []string{"lib-a", "lib-b", "lib-c"}; !reflect.DeepEqual(cfg.Targeting.IDs, want) {
		t.Fatalf("IDs normalized mismatch: got %v want %v", cfg.Targeting.IDs, want)
	}
	if want := []string{"shallow", "sparse"}; !reflect.DeepEqual(cfg.Targeting.Labels, want) {
		t.Fatalf("Labels normalized mismatch: got %v want %v", cfg.Targeting.Labels, want)
	}
	if want := []string{"ndjson"}; !reflect.DeepEqual(cfg.Output.Emit, want) {
		t.Fatalf("Emit normalized mismatch: got %v want %v", cfg.Output.Emit, want)
	}
}

func TestValidate_RejectsInvalidConsoleFormat(t *testing.T) {
	tests := []struct {
		name          string
		consoleFormat string
	}{
		{name: "empty", consoleFormat: ""},
		{name: "spaces", consoleFormat: "   "},
		{name: "unknown", consoleFormat: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			cfg.Output.ConsoleFormat = tt.consoleFormat
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_AllowsKnownConsoleFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "ndjson", " NDJSON "} {
		t.Run(format, func(t *testing.T) {
			cfg := newValid()
			cfg.Output.ConsoleFormat = format
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidate_RejectsInvalidEmit(t *testing.T) {
	cfg := newValid()
	cfg.Output.Emit = []string{"yaml"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_InfersOutFormat(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		format  string
		want    string
		wantErr bool
	}{
		{name: "json extension", out: "events.json", want: "json"},
		{name: "ndjson extension", out: "events.NDJSON", want: "ndjson"},
		{name: "explicit format wins", out: "events.log", format: "ndjson", want: "ndjson"},
		{name: "missing extension", out: "events", wantErr: true},
		{name: "unknown extension", out: "events.txt", wantErr: true},
		{name: "unknown format", out: "events.json", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			cfg.Output.Out = tt.out
			cfg.Output.OutFormat = tt.format
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cfg.Output.OutFormat != tt.want {
				t.Fatalf("expected out format %q, got %q", tt.want, cfg.Output.OutFormat)
			}
		})
	}
}

func TestValidate_RejectsInvalidBounds(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{name: "zero_attempts", mutateCfg: func(cfg *Config) { cfg.Retry.MaxAttempts = 0 }},
		{name: "negative_base_delay", mutateCfg: func(cfg *Config) { cfg.Retry.BaseDelay = -time.Second }},
		{name: "max_below_base", mutateCfg: func(cfg *Config) { cfg.Retry.MaxDelay = time.Second }},
		{name: "jitter_above_one", mutateCfg: func(cfg *Config) { cfg.Retry.Jitter = 1.5 }},
		{name: "negative_jitter", mutateCfg: func(cfg *Config) { cfg.Retry.Jitter = -0.1 }},
		{name: "zero_concurrency", mutateCfg: func(cfg *Config) { cfg.Runtime.Concurrency = 0 }},
		{name: "negative_timeout", mutateCfg: func(cfg *Config) { cfg.Runtime.Timeout = -1 }},
		{name: "zero_op_timeout", mutateCfg: func(cfg *Config) { cfg.Runtime.OpTimeout = 0 }},
		{name: "negative_credential_rate", mutateCfg: func(cfg *Config) { cfg.Credentials.RatePerSecond = -1 }},
		{name: "partial_app_config", mutateCfg: func(cfg *Config) { cfg.Credentials.AppID = 12 }},
		{name: "unknown_log_format", mutateCfg: func(cfg *Config) { cfg.Runtime.LogFormat = "xml" }},
		{name: "directory_report_path", mutateCfg: func(cfg *Config) { cfg.Output.Report = "out/" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValid()
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_VerboseForcesDebug(t *testing.T) {
	cfg := newValid()
	cfg.Runtime.Verbose = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Runtime.LogLevel != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Runtime.LogLevel)
	}
}

func TestValidate_AcceptsCompleteAppConfig(t *testing.T) {
	cfg := newValid()
	cfg.Credentials.AppID = 1
	cfg.Credentials.InstallationID = 2
	cfg.Credentials.AppPrivateKey = "key.pem"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateDiscover_RequiresOwner(t *testing.T) {
	cfg := New()
	if err := cfg.ValidateDiscover(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidateDiscover_RejectsInvalidEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{name: "visibility", mutateCfg: func(cfg *Config) { cfg.Discover.Visibility = "maybe" }},
		{name: "archived", mutateCfg: func(cfg *Config) { cfg.Discover.Archived = "sometimes" }},
		{name: "forks", mutateCfg: func(cfg *Config) { cfg.Discover.Forks = "perhaps" }},
		{name: "protocol", mutateCfg: func(cfg *Config) { cfg.Discover.Protocol = "ftp" }},
		{name: "max_repos", mutateCfg: func(cfg *Config) { cfg.Discover.MaxRepos = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Discover.Owner = "acme"
			tt.mutateCfg(cfg)
			if err := cfg.ValidateDiscover(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidateDiscover_NormalizesEnums(t *testing.T) {
	cfg := New()
	cfg.Discover.Owner = " acme "
	cfg.Discover.Visibility = "  PRIVATE "
	cfg.Discover.Archived = " INCLUDE "
	cfg.Discover.Forks = " Only "
	cfg.Discover.Protocol = "SSH"
	cfg.Discover.Topics = []string{"go, cli", ","}

	if err := cfg.ValidateDiscover(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got := []string{cfg.Discover.Owner, cfg.Discover.Visibility, cfg.Discover.Archived, cfg.Discover.Forks, cfg.Discover.Protocol}
	want := []string{"acme", "private", "include", "only", "ssh"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalized mismatch: got %v want %v", got, want)
	}
	if !reflect.DeepEqual(cfg.Discover.Topics, []string{"go", "cli"}) {
		t.Fatalf("unexpected topics: %v", cfg.Discover.Topics)
	}
}
