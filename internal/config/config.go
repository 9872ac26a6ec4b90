// Package config defines process configuration and how it is loaded.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load(ctx) layers .env, an optional YAML file and SALTY_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/okian/saltyscope/internal/domain/model"
)

// Randomness sources.
const (
	RandomnessRandomOrg = "random.org"
	RandomnessLocal     = "local"
)

// Acting modes.
const (
	ActingWebsocket = "websocket"
	ActingDryRun    = "dry-run"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile, when set, sends logs to a rotated file instead of stdout.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the engine mailbox.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many wagering windows the at-most-once guard remembers.
	DedupeSize int `koanf:"dedupe_size"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `koanf:"cors_origins"`

	// DBPath is the sqlite file. Empty disables persistence.
	DBPath string `koanf:"db_path"`

	// RedisAddr enables the redis stream sink when set.
	RedisAddr   string `koanf:"redis_addr"`
	RedisStream string `koanf:"redis_stream"`

	// ConsoleStatus prints a status table to stdout on every change.
	ConsoleStatus bool `koanf:"console_status"`

	Ratings    RatingsConfig    `koanf:"ratings"`
	Randomness RandomnessConfig `koanf:"randomness"`
	Acting     ActingConfig     `koanf:"acting"`
	Policy     PolicyConfig     `koanf:"policy"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// RatingsConfig configures the rating lookup service.
type RatingsConfig struct {
	BaseURL   string  `koanf:"base_url"`
	TimeoutMS int     `koanf:"timeout_ms"`
	RPS       float64 `koanf:"rps"`
	Burst     int     `koanf:"burst"`
}

// Timeout returns the per-request timeout.
func (r RatingsConfig) Timeout() time.Duration { return time.Duration(r.TimeoutMS) * time.Millisecond }

// RandomnessConfig configures the coin-flip source.
type RandomnessConfig struct {
	Source    string `koanf:"source"`
	URL       string `koanf:"url"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

// Timeout returns the per-draw timeout.
func (r RandomnessConfig) Timeout() time.Duration { return time.Duration(r.TimeoutMS) * time.Millisecond }

// ActingConfig selects where wagers go.
type ActingConfig struct {
	Mode      string `koanf:"mode"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

// Timeout bounds one placement.
func (a ActingConfig) Timeout() time.Duration { return time.Duration(a.TimeoutMS) * time.Millisecond }

// MetricsConfig names the exported Prometheus series.
type MetricsConfig struct {
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`

	// Deployment, when set, is attached to every series as a constant label.
	Deployment string `koanf:"deployment"`

	// LatencyBucketsMS overrides the lookup and HTTP latency histogram buckets.
	LatencyBucketsMS []float64 `koanf:"latency_buckets_ms"`
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (m MetricsConfig) validate() error {
	for key, v := range map[string]string{"metrics.namespace": m.Namespace, "metrics.subsystem": m.Subsystem} {
		if !metricName.MatchString(v) {
			return fmt.Errorf("%w: %s %q is not a valid metric name part", ErrInvalidConfig, key, v)
		}
	}
	for i, b := range m.LatencyBucketsMS {
		if b <= 0 || (i > 0 && b <= m.LatencyBucketsMS[i-1]) {
			return fmt.Errorf("%w: metrics.latency_buckets_ms must be positive and increasing", ErrInvalidConfig)
		}
	}
	return nil
}

// PolicyConfig is the default wagering policy, used until one is saved.
type PolicyConfig struct {
	Mode                string  `koanf:"mode"`
	MaxBetValue         float64 `koanf:"max_bet_value"`
	MaxBetKind          string  `koanf:"max_bet_kind"`
	AllInValue          float64 `koanf:"all_in_value"`
	AllInKind           string  `koanf:"all_in_kind"`
	UpsetMode           bool    `koanf:"upset_mode"`
	AllInOnTournament   bool    `koanf:"all_in_on_tournament"`
	OneUnitOnExhibition bool    `koanf:"one_unit_on_exhibition"`
}

// Model converts and validates the policy.
func (p PolicyConfig) Model() (model.Policy, error) {
	return model.Policy{
		Mode:                model.PolicyMode(p.Mode),
		MaxBet:              model.Amount{Value: p.MaxBetValue, Kind: model.AmountKind(p.MaxBetKind)},
		AllIn:               model.Amount{Value: p.AllInValue, Kind: model.AmountKind(p.AllInKind)},
		UpsetMode:           p.UpsetMode,
		AllInOnTournament:   p.AllInOnTournament,
		OneUnitOnExhibition: p.OneUnitOnExhibition,
	}.Normalize()
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	def := model.DefaultPolicy()
	return &Config{
		LogLevel:    "info",
		Addr:        ":9080",
		QueueSize:   1024,
		DedupeSize:  1024,
		CORSOrigins: []string{"*"},
		DBPath:      "saltyscope.db",
		RedisStream: "saltyscope.status",
		Ratings: RatingsConfig{
			BaseURL:   "https://salty-boy.com/api",
			TimeoutMS: 5000,
			RPS:       2,
			Burst:     4,
		},
		Randomness: RandomnessConfig{
			Source:    RandomnessRandomOrg,
			URL:       "https://www.random.org/integers/?num=1&min=1&max=2&col=1&base=10&format=plain&rnd=new",
			TimeoutMS: 3000,
		},
		Acting: ActingConfig{
			Mode:      ActingWebsocket,
			TimeoutMS: 3000,
		},
		Policy: PolicyConfig{
			Mode:        string(def.Mode),
			MaxBetValue: def.MaxBet.Value,
			MaxBetKind:  string(def.MaxBet.Kind),
			AllInValue:  def.AllIn.Value,
			AllInKind:   string(def.AllIn.Kind),
		},
		Metrics: MetricsConfig{
			Namespace: "saltyscope",
			Subsystem: "engine",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.Ratings.BaseURL == "":
		return fmt.Errorf("%w: ratings.base_url must not be empty", ErrInvalidConfig)
	case c.Ratings.RPS <= 0 || c.Ratings.Burst <= 0:
		return fmt.Errorf("%w: ratings.rps and ratings.burst must be positive", ErrInvalidConfig)
	}
	switch c.Randomness.Source {
	case RandomnessRandomOrg, RandomnessLocal:
	default:
		return fmt.Errorf("%w: randomness.source %q (want %s or %s)",
			ErrInvalidConfig, c.Randomness.Source, RandomnessRandomOrg, RandomnessLocal)
	}
	switch c.Acting.Mode {
	case ActingWebsocket, ActingDryRun:
	default:
		return fmt.Errorf("%w: acting.mode %q (want %s or %s)",
			ErrInvalidConfig, c.Acting.Mode, ActingWebsocket, ActingDryRun)
	}
	if _, err := c.Policy.Model(); err != nil {
		return fmt.Errorf("%w: policy: %w", ErrInvalidConfig, err)
	}
	return c.Metrics.validate()
}
