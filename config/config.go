// Package config loads devteam settings from defaults, an optional YAML
// file and DEVTEAM_* environment variables, in that order of precedence.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("devteam.yaml").
//	    Load()
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

// Config is the full devteam configuration.
type Config struct {
	Team       TeamConfig       `yaml:"team" env:"TEAM"`
	Evaluation EvaluationConfig `yaml:"evaluation" env:"EVALUATION"`
	LLM        LLMConfig        `yaml:"llm" env:"LLM"`
	Store      StoreConfig      `yaml:"store" env:"STORE"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
	Metrics    MetricsConfig    `yaml:"metrics" env:"METRICS"`
	Run        RunConfig        `yaml:"run" env:"RUN"`
}

// TeamConfig sizes the organisation.
type TeamConfig struct {
	MaxManagers            int  `yaml:"max_managers" env:"MAX_MANAGERS"`
	MaxEngineersPerManager int  `yaml:"max_engineers_per_manager" env:"MAX_ENGINEERS_PER_MANAGER"`
	MaxTotalWorkers        int  `yaml:"max_total_workers" env:"MAX_TOTAL_WORKERS"`
	AllowIterations        bool `yaml:"allow_iterations" env:"ALLOW_ITERATIONS"`
	MaxIterations          int  `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// MaxSeniorEngineers caps the seniors a manager hires. Zero defers to
	// MaxEngineersPerManager.
	MaxSeniorEngineers int `yaml:"max_senior_engineers" env:"MAX_SENIOR_ENGINEERS"`
	// WorkContext is handed to the complexity assessment.
	WorkContext string `yaml:"work_context" env:"WORK_CONTEXT"`
}

// Limits converts the section into the resource limits carried by state.
func (t TeamConfig) Limits() team.ResourceLimits {
	return team.ResourceLimits{
		MaxManagers:            t.MaxManagers,
		MaxEngineersPerManager: t.MaxEngineersPerManager,
		MaxTotalWorkers:        t.MaxTotalWorkers,
		AllowIterations:        t.AllowIterations,
		MaxIterations:          t.MaxIterations,
	}
}

// EvaluationConfig bounds the evaluator-optimizer loop.
type EvaluationConfig struct {
	MaxLoops       int `yaml:"max_loops" env:"MAX_LOOPS"`
	MaxEscalations int `yaml:"max_escalations" env:"MAX_ESCALATIONS"`
	// MaxTicks of zero derives the budget from the other two bounds.
	MaxTicks           int  `yaml:"max_ticks" env:"MAX_TICKS"`
	HoldForAggregation bool `yaml:"hold_for_aggregation" env:"HOLD_FOR_AGGREGATION"`
}

// LLMConfig selects the chat models. With no API key set every agent runs
// on canned output.
type LLMConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL"`
	OpenAIAPIKey    string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIModel     string `yaml:"openai_model" env:"OPENAI_MODEL"`
	GoogleAPIKey    string `yaml:"google_api_key" env:"GOOGLE_API_KEY"`
	GoogleModel     string `yaml:"google_model" env:"GOOGLE_MODEL"`
	// Providers orders the fallback chain. Providers without a key are
	// skipped.
	Providers  []string         `yaml:"providers" env:"PROVIDERS"`
	RatePreset model.RatePreset `yaml:"rate_preset" env:"RATE_PRESET"`
	// MaxAttempts per model, including the first call.
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// AssessTimeout bounds the complexity assessment call.
	AssessTimeout time.Duration `yaml:"assess_timeout" env:"ASSESS_TIMEOUT"`
}

// Enabled reports whether any provider has a key.
func (l LLMConfig) Enabled() bool {
	return l.AnthropicAPIKey != "" || l.OpenAIAPIKey != "" || l.GoogleAPIKey != ""
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

// StoreConfig selects where step records and checkpoints live.
type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	// Path is the SQLite database file.
	Path string `yaml:"path" env:"PATH"`
	// DSN is the MySQL data source name.
	DSN           string        `yaml:"dsn" env:"DSN"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	RedisTTL      time.Duration `yaml:"redis_ttl" env:"REDIS_TTL"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	Path       string `yaml:"path" env:"PATH"`
}

// RunConfig bounds a single pipeline invocation.
type RunConfig struct {
	MaxSteps        int           `yaml:"max_steps" env:"MAX_STEPS"`
	WallClockBudget time.Duration `yaml:"wall_clock_budget" env:"WALL_CLOCK_BUDGET"`
	NodeTimeout     time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
	CheckInvariants bool          `yaml:"check_invariants" env:"CHECK_INVARIANTS"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	limits := team.DefaultResourceLimits()
	return &Config{
		Team: TeamConfig{
			MaxManagers:            limits.MaxManagers,
			MaxEngineersPerManager: limits.MaxEngineersPerManager,
			MaxTotalWorkers:        limits.MaxTotalWorkers,
			AllowIterations:        limits.AllowIterations,
			MaxIterations:          limits.MaxIterations,
		},
		Evaluation: EvaluationConfig{
			MaxLoops:       team.DefaultMaxLoops,
			MaxEscalations: team.DefaultMaxEscalations,
		},
		LLM: LLMConfig{
			AnthropicModel: "claude-sonnet-4-5",
			OpenAIModel:    "gpt-4o",
			GoogleModel:    "gemini-1.5-pro",
			Providers:      []string{"anthropic", "openai", "google"},
			RatePreset:     model.RateModerate,
			MaxAttempts:    3,
			AssessTimeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Driver:    DriverMemory,
			Path:      "devteam.db",
			RedisAddr: "localhost:6379",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "devteam",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Run: RunConfig{
			MaxSteps:    1000,
			NodeTimeout: 2 * time.Minute,
		},
	}
}

var (
	validDrivers   = []string{DriverMemory, DriverSQLite, DriverMySQL, DriverRedis}
	validLevels    = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"console", "json"}
	validProviders = []string{"anthropic", "openai", "google"}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Team.MaxManagers < 1 {
		errs = append(errs, errors.New("team.max_managers must be at least 1"))
	}
	if c.Team.MaxEngineersPerManager < 1 {
		errs = append(errs, errors.New("team.max_engineers_per_manager must be at least 1"))
	}
	if c.Team.MaxTotalWorkers < c.Team.MaxManagers {
		errs = append(errs, errors.New("team.max_total_workers must cover one worker per manager"))
	}
	if c.Team.MaxSeniorEngineers < 0 {
		errs = append(errs, errors.New("team.max_senior_engineers must not be negative"))
	}
	if c.Evaluation.MaxLoops < 1 {
		errs = append(errs, errors.New("evaluation.max_loops must be at least 1"))
	}
	if c.Evaluation.MaxEscalations < 1 {
		errs = append(errs, errors.New("evaluation.max_escalations must be at least 1"))
	}
	if c.Evaluation.MaxTicks < 0 {
		errs = append(errs, errors.New("evaluation.max_ticks must not be negative"))
	}
	if !slices.Contains(validDrivers, c.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver %q must be one of %s", c.Store.Driver, strings.Join(validDrivers, ", ")))
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	case DriverMySQL:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the mysql driver"))
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis driver"))
		}
	}
	if !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level %q is not recognised", c.Log.Level))
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	for _, p := range c.LLM.Providers {
		if !slices.Contains(validProviders, p) {
			errs = append(errs, fmt.Errorf("llm.providers: unknown provider %q", p))
		}
	}
	if _, err := model.NewLimiter(c.LLM.RatePreset); err != nil {
		errs = append(errs, fmt.Errorf("llm.rate_preset: %w", err))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm.max_attempts must be at least 1"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}
	if c.Run.MaxSteps < 0 {
		errs = append(errs, errors.New("run.max_steps must not be negative"))
	}
	return errors.Join(errs...)
}
