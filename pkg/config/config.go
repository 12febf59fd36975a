package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir = "../CASIA1/"
	DefaultTempDir = "./templates/CASIA1/"
	DefaultPattern = "*_1_*.jpg"
)

type ExtractorConfig struct {
	Kind             string   `yaml:"kind"`
	Command          string   `yaml:"command"`
	Args             []string `yaml:"args"`
	SingleThreadFlag string   `yaml:"singleThreadFlag"`
	Rows             int      `yaml:"rows"`
	Cols             int      `yaml:"cols"`
	MaskLow          float64  `yaml:"maskLow"`
	MaskHigh         float64  `yaml:"maskHigh"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
	ListenAddr   string `yaml:"listenAddr"`
}

type LedgerConfig struct {
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	KeyPrefix     string `yaml:"keyPrefix"`
}

type Config struct {
	DataDir       string          `yaml:"dataDir"`
	TempDir       string          `yaml:"tempDir"`
	NCores        int             `yaml:"nCores"`
	Pattern       string          `yaml:"pattern"`
	FailurePolicy string          `yaml:"failurePolicy"`
	Extractor     ExtractorConfig `yaml:"extractor"`
	LogLevel      string          `yaml:"logLevel"`
	LogFormat     string          `yaml:"logFormat"`
	Env           string          `yaml:"env"`
	Tracing       TracingConfig   `yaml:"tracing"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	Ledger        LedgerConfig    `yaml:"ledger"`
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional is LoadConfig without requiring a file: an empty path or
// a missing file yields defaults plus environment overrides.
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) == "" {
		return fromEnv(), nil
	}
	cfg, err := LoadConfig(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return fromEnv(), nil
	}
	return cfg, err
}

func fromEnv() *Config {
	var c Config
	c.applyEnv()
	c.applyDefaults()
	return &c
}

func (c *Config) applyEnv() {
	if v := os.Getenv("IRISENROLL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("IRISENROLL_TEMP_DIR"); v != "" {
		c.TempDir = v
	}
	if v := os.Getenv("IRISENROLL_N_CORES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NCores = n
		}
	}
	if v := os.Getenv("IRISENROLL_PATTERN"); v != "" {
		c.Pattern = v
	}
	if v := os.Getenv("IRISENROLL_FAILURE_POLICY"); v != "" {
		c.FailurePolicy = v
	}
	if v := os.Getenv("IRISENROLL_EXTRACTOR"); v != "" {
		c.Extractor.Kind = v
	}
	if v := os.Getenv("IRISENROLL_EXTRACTOR_COMMAND"); v != "" {
		c.Extractor.Command = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Tracing.ServiceName = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		c.Tracing.OTLPInsecure = parseBool(v)
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		c.Tracing.SampleRatio = parseSampleRatio(v)
	}
	if v := os.Getenv("IRISENROLL_METRICS_TEXTFILE"); v != "" {
		c.Metrics.TextfilePath = v
	}
	if v := os.Getenv("IRISENROLL_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}
	if v := os.Getenv("IRISENROLL_REDIS_ADDR"); v != "" {
		c.Ledger.RedisAddr = v
	}
	if v := os.Getenv("IRISENROLL_REDIS_PASSWORD"); v != "" {
		c.Ledger.RedisPassword = v
	}
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.TempDir == "" {
		c.TempDir = DefaultTempDir
	}
	if c.NCores == 0 {
		c.NCores = runtime.NumCPU()
	}
	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = "isolate"
	}
	if c.Extractor.Kind == "" {
		c.Extractor.Kind = "builtin"
	}
	if c.Extractor.SingleThreadFlag == "" {
		c.Extractor.SingleThreadFlag = "--single-thread"
	}
	if c.Extractor.Rows == 0 {
		c.Extractor.Rows = 20
	}
	if c.Extractor.Cols == 0 {
		c.Extractor.Cols = 240
	}
	if c.Extractor.MaskLow == 0 && c.Extractor.MaskHigh == 0 {
		c.Extractor.MaskLow = 10
		c.Extractor.MaskHigh = 245
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
		if c.Env == "dev" {
			c.LogFormat = "text"
		}
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "irisenroll"
	}
	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Ledger.KeyPrefix == "" {
		c.Ledger.KeyPrefix = "irisenroll"
	}
}

func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, "dataDir is required")
	}
	if strings.TrimSpace(c.TempDir) == "" {
		errs = append(errs, "tempDir is required")
	}
	if c.NCores < 1 {
		errs = append(errs, "nCores must be >= 1")
	}
	if _, err := filepath.Match(c.Pattern, ""); err != nil {
		errs = append(errs, fmt.Sprintf("pattern %q is not a valid glob", c.Pattern))
	}
	switch c.FailurePolicy {
	case "isolate", "abort":
	default:
		errs = append(errs, "failurePolicy must be one of: isolate, abort")
	}
	switch c.Extractor.Kind {
	case "builtin":
	case "command":
		if strings.TrimSpace(c.Extractor.Command) == "" {
			errs = append(errs, "extractor.command is required when extractor.kind=command")
		}
	default:
		errs = append(errs, "extractor.kind must be one of: builtin, command")
	}
	if c.Extractor.Rows <= 0 || c.Extractor.Cols <= 0 {
		errs = append(errs, "extractor.rows and extractor.cols must be > 0")
	}
	if c.Extractor.MaskLow < 0 || c.Extractor.MaskHigh > 255 || c.Extractor.MaskLow >= c.Extractor.MaskHigh {
		errs = append(errs, "extractor mask thresholds must satisfy 0 <= maskLow < maskHigh <= 255")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, "logFormat must be one of: json, text")
	}
	if c.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be within (0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}

func parseSampleRatio(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
