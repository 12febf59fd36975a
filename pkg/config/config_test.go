package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestLoadConfigOptional_EmptyPath tests loading when file path is empty
func TestLoadConfigOptional_EmptyPath(t *testing.T) {
	t.Setenv("IRISENROLL_N_CORES", "3")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
	if cfg.NCores != 3 {
		t.Errorf("Expected NCores=3 from env, got %d", cfg.NCores)
	}
}

// TestLoadConfigOptional_Defaults tests the values used when nothing is configured
func TestLoadConfigOptional_Defaults(t *testing.T) {
	cfg, err := LoadConfigOptional("   ")
	if err != nil {
		t.Fatalf("LoadConfigOptional with whitespace path should not error: %v", err)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("Expected DataDir=%q, got %q", DefaultDataDir, cfg.DataDir)
	}
	if cfg.TempDir != DefaultTempDir {
		t.Errorf("Expected TempDir=%q, got %q", DefaultTempDir, cfg.TempDir)
	}
	if cfg.NCores != runtime.NumCPU() {
		t.Errorf("Expected NCores=%d, got %d", runtime.NumCPU(), cfg.NCores)
	}
	if cfg.Pattern != DefaultPattern {
		t.Errorf("Expected Pattern=%q, got %q", DefaultPattern, cfg.Pattern)
	}
	if cfg.FailurePolicy != "isolate" {
		t.Errorf("Expected FailurePolicy=isolate, got %q", cfg.FailurePolicy)
	}
	if cfg.Extractor.Kind != "builtin" || cfg.Extractor.Rows != 20 || cfg.Extractor.Cols != 240 {
		t.Errorf("Unexpected extractor defaults: %+v", cfg.Extractor)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

// TestLoadConfigOptional_FileNotExist tests loading when file does not exist
func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "config-does-not-exist.yaml")

	cfg, err := LoadConfigOptional(nonExistentPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with non-existent file should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

// TestLoadConfigOptional_InvalidYAML tests loading when file exists but has invalid YAML
func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")

	invalidYAML := `
dataDir: "../CASIA1/"
tempDir: "./templates"
  invalid indentation here
  more bad yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadConfigOptional(configPath); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

// TestLoadConfigOptional_ValidConfig tests loading when file exists with valid config
func TestLoadConfigOptional_ValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "valid.yaml")

	validYAML := `
dataDir: "/data/CASIA1"
tempDir: "/data/templates"
nCores: 6
failurePolicy: abort
extractor:
  kind: command
  command: python3
  args: ["extract.py"]
  singleThreadFlag: "--no-multiprocess"
tracing:
  enabled: true
  otlpEndpoint: "collector:4317"
ledger:
  redisAddr: "localhost:6379"
  keyPrefix: "casia"
logLevel: "debug"
env: "test"
`
	if err := os.WriteFile(configPath, []byte(validYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with valid config should not error: %v", err)
	}

	if cfg.DataDir != "/data/CASIA1" || cfg.TempDir != "/data/templates" {
		t.Errorf("Unexpected dirs: %q %q", cfg.DataDir, cfg.TempDir)
	}
	if cfg.NCores != 6 {
		t.Errorf("Expected NCores=6, got %d", cfg.NCores)
	}
	if cfg.FailurePolicy != "abort" {
		t.Errorf("Expected FailurePolicy=abort, got %q", cfg.FailurePolicy)
	}
	if cfg.Extractor.Kind != "command" || cfg.Extractor.Command != "python3" || len(cfg.Extractor.Args) != 1 {
		t.Errorf("Unexpected extractor: %+v", cfg.Extractor)
	}
	if cfg.Extractor.SingleThreadFlag != "--no-multiprocess" {
		t.Errorf("Expected SingleThreadFlag from file, got %q", cfg.Extractor.SingleThreadFlag)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.OTLPEndpoint != "collector:4317" {
		t.Errorf("Unexpected tracing: %+v", cfg.Tracing)
	}
	if cfg.Ledger.RedisAddr != "localhost:6379" || cfg.Ledger.KeyPrefix != "casia" {
		t.Errorf("Unexpected ledger: %+v", cfg.Ledger)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

// TestLoadConfigOptional_EnvOverrides tests that environment variables override file values
func TestLoadConfigOptional_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configYAML := `
dataDir: "/file/data"
tempDir: "/file/templates"
nCores: 2
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	t.Setenv("IRISENROLL_DATA_DIR", "/env/data")
	t.Setenv("IRISENROLL_N_CORES", "12")
	t.Setenv("IRISENROLL_REDIS_ADDR", "env-redis:6380")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "yes")

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional should not error: %v", err)
	}

	if cfg.DataDir != "/env/data" {
		t.Errorf("Expected DataDir from env, got %q", cfg.DataDir)
	}
	if cfg.TempDir != "/file/templates" {
		t.Errorf("Expected TempDir from file, got %q", cfg.TempDir)
	}
	if cfg.NCores != 12 {
		t.Errorf("Expected NCores=12 from env, got %d", cfg.NCores)
	}
	if cfg.Ledger.RedisAddr != "env-redis:6380" {
		t.Errorf("Expected RedisAddr from env, got %q", cfg.Ledger.RedisAddr)
	}
	if !cfg.Tracing.OTLPInsecure {
		t.Error("Expected OTLPInsecure from env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero cores", func(c *Config) { c.NCores = 0 }, "nCores"},
		{"bad pattern", func(c *Config) { c.Pattern = "[" }, "pattern"},
		{"bad policy", func(c *Config) { c.FailurePolicy = "retry" }, "failurePolicy"},
		{"command without command", func(c *Config) { c.Extractor.Kind = "command" }, "extractor.command"},
		{"unknown extractor", func(c *Config) { c.Extractor.Kind = "cnn" }, "extractor.kind"},
		{"bad grid", func(c *Config) { c.Extractor.Rows = -1 }, "extractor.rows"},
		{"bad thresholds", func(c *Config) { c.Extractor.MaskLow = 200; c.Extractor.MaskHigh = 100 }, "mask thresholds"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "logFormat"},
		{"empty dirs", func(c *Config) { c.DataDir = ""; c.TempDir = " " }, "dataDir is required; tempDir is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfigOptional("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLogFormatFollowsEnv(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"", "text"},
		{"dev", "text"},
		{"prod", "json"},
	}
	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("LOG_FORMAT", "")
			cfg, err := LoadConfigOptional("")
			if err != nil {
				t.Fatal(err)
			}
			if cfg.LogFormat != tt.want {
				t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, tt.want)
			}
		})
	}
}

func TestParseSampleRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"0.25", 0.25},
		{" 1 ", 1},
		{"half", 0},
	}
	for _, tt := range tests {
		if got := parseSampleRatio(tt.in); got != tt.want {
			t.Errorf("parseSampleRatio(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "YES", "on", " y "} {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "maybe"} {
		if parseBool(v) {
			t.Errorf("parseBool(%q) = true", v)
		}
	}
}
