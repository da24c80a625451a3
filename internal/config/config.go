// Package config resolves settings from defaults, an optional config file,
// a .env file, ORBITOPS_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/Debrato2005/OrbitOps/internal/analysis"
	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/catalog/pgstore"
	"github.com/Debrato2005/OrbitOps/internal/maneuver"
	"github.com/Debrato2005/OrbitOps/internal/screening"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ORBITOPS"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the resolved application configuration.
type Config struct {
	LogLevel slog.Level

	Analysis     analysis.Config
	Screening    screening.Options
	Maneuver     maneuver.Config
	Store        StoreConfig
	Catalog      tle.Sources
	FeedURL      string
	FeedFile     string
	ScheduleSpec string
	Primaries    []int
	MetricsAddr  string
}

// StoreConfig selects and sizes the conjunction store.
type StoreConfig struct {
	Driver   string
	Postgres pgstore.Config
}

// New returns a viper instance with every key defaulted and environment
// lookup enabled. Callers bind flags into it before Load.
func New() *viper.Viper {
	v := viper.New()

	an := analysis.DefaultConfig()
	sc := screening.DefaultOptions()
	mc := maneuver.DefaultConfig()

	v.SetDefault("log_level", "info")

	v.SetDefault("screen.duration", an.Duration)
	v.SetDefault("screen.step", an.Step)
	v.SetDefault("screen.threshold_km", an.ThresholdKm)
	v.SetDefault("screen.filter_margin_km", sc.FilterMarginKm)
	v.SetDefault("screen.workers", sc.Workers)
	v.SetDefault("screen.candidate_timeout", sc.CandidateTimeout)
	v.SetDefault("screen.pass_timeout", an.PassTimeout)
	v.SetDefault("screen.duplicate_speed_epsilon", sc.DuplicateSpeedEpsilon)

	v.SetDefault("risk.safety_floor_km", an.Criteria.SafetyFloorKm)
	v.SetDefault("risk.probability_threshold", an.Criteria.ProbabilityThreshold)
	v.SetDefault("risk.planning_horizon", an.Criteria.Horizon)

	v.SetDefault("maneuver.safe_distance_km", mc.SafeDistanceKm)
	v.SetDefault("maneuver.lead_time_minutes", mc.LeadTime.Minutes())
	v.SetDefault("maneuver.seed_mps", mc.SeedMps)
	v.SetDefault("maneuver.cap_mps", mc.CapMps)
	v.SetDefault("maneuver.iterations", mc.Iterations)
	v.SetDefault("maneuver.tolerance_km", mc.ToleranceKm)
	v.SetDefault("maneuver.workers", an.PlanWorkers)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("catalog.tle_file", "")
	v.SetDefault("catalog.custom_file", "")
	v.SetDefault("catalog.satcat_file", "")

	v.SetDefault("feed.url", "")
	v.SetDefault("feed.file", "")

	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("schedule.primaries", "")

	v.SetDefault("metrics.addr", ":9090")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (if set) and envFile (if present) into v and
// resolves the final Config. Malformed values are logged and replaced by
// their defaults; only settings with no usable default are errors.
func Load(v *viper.Viper, configFile, envFile string, logger *slog.Logger) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		logger.Info("using config file", "path", v.ConfigFileUsed())
	}

	l := loader{v: v, logger: logger}
	an := analysis.DefaultConfig()
	sc := screening.DefaultOptions()
	mc := maneuver.DefaultConfig()

	cfg := Config{LogLevel: l.level("log_level", slog.LevelInfo)}

	positive := func(d time.Duration) bool { return d > 0 }
	cfg.Analysis = analysis.Config{
		Duration:    l.duration("screen.duration", an.Duration, positive),
		Step:        l.duration("screen.step", an.Step, positive),
		ThresholdKm: l.float("screen.threshold_km", an.ThresholdKm, gt(0)),
		PassTimeout: l.duration("screen.pass_timeout", an.PassTimeout, positive),
		Criteria: catalog.Criteria{
			SafetyFloorKm:        l.float("risk.safety_floor_km", an.Criteria.SafetyFloorKm, gt(0)),
			ProbabilityThreshold: l.float("risk.probability_threshold", an.Criteria.ProbabilityThreshold, between(0, 1)),
			Horizon:              l.duration("risk.planning_horizon", an.Criteria.Horizon, positive),
		},
		PlanWorkers: l.int("maneuver.workers", an.PlanWorkers, 1),
	}
	if cfg.Analysis.Step > cfg.Analysis.Duration {
		logger.Warn("screen.step longer than screen.duration, using defaults",
			"step", cfg.Analysis.Step, "duration", cfg.Analysis.Duration)
		cfg.Analysis.Step, cfg.Analysis.Duration = an.Step, an.Duration
	}

	cfg.Screening = screening.Options{
		Workers:               l.int("screen.workers", sc.Workers, 1),
		FilterMarginKm:        l.float("screen.filter_margin_km", sc.FilterMarginKm, gte(0)),
		CandidateTimeout:      l.duration("screen.candidate_timeout", sc.CandidateTimeout, positive),
		DuplicateSpeedEpsilon: l.float("screen.duplicate_speed_epsilon", sc.DuplicateSpeedEpsilon, gt(0)),
	}

	lead := l.float("maneuver.lead_time_minutes", mc.LeadTime.Minutes(), func(m float64) bool {
		return m < 0 && m >= -maneuver.MaxLeadTime.Minutes()
	})
	cfg.Maneuver = maneuver.Config{
		SafeDistanceKm: l.float("maneuver.safe_distance_km", mc.SafeDistanceKm, gt(0)),
		LeadTime:       time.Duration(lead * float64(time.Minute)),
		SeedMps:        l.float("maneuver.seed_mps", mc.SeedMps, gt(0)),
		CapMps:         l.float("maneuver.cap_mps", mc.CapMps, between(0, maneuver.MaxCapMps)),
		Iterations:     l.int("maneuver.iterations", mc.Iterations, 1),
		ToleranceKm:    l.float("maneuver.tolerance_km", mc.ToleranceKm, gte(0)),
	}
	if err := cfg.Maneuver.Validate(); err != nil {
		logger.Warn("maneuver settings inconsistent, using defaults", "error", err)
		cfg.Maneuver = mc
	}

	cfg.Store = StoreConfig{
		Driver: strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
		Postgres: pgstore.Config{
			DSN:             v.GetString("store.dsn"),
			MaxOpenConns:    l.int("store.max_open_conns", 10, 1),
			MaxIdleConns:    l.int("store.max_idle_conns", 5, 0),
			ConnMaxLifetime: l.duration("store.conn_max_lifetime", 30*time.Minute, positive),
		},
	}
	switch cfg.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.Store.Postgres.DSN == "" {
			return Config{}, errors.New("store.driver is postgres but store.dsn is empty")
		}
	default:
		logger.Warn("invalid store.driver value, using default", "value", cfg.Store.Driver, "default", DriverMemory)
		cfg.Store.Driver = DriverMemory
	}

	cfg.Catalog = tle.Sources{
		TLEFile:    v.GetString("catalog.tle_file"),
		CustomFile: v.GetString("catalog.custom_file"),
		SATCATFile: v.GetString("catalog.satcat_file"),
	}
	cfg.FeedURL = v.GetString("feed.url")
	cfg.FeedFile = v.GetString("feed.file")
	cfg.ScheduleSpec = v.GetString("schedule.spec")
	cfg.Primaries = l.ids("schedule.primaries")
	cfg.MetricsAddr = v.GetString("metrics.addr")

	logger.Info("config loaded",
		"log_level", cfg.LogLevel.String(),
		"screen_duration", cfg.Analysis.Duration.String(),
		"screen_step", cfg.Analysis.Step.String(),
		"threshold_km", cfg.Analysis.ThresholdKm,
		"screen_workers", cfg.Screening.Workers,
		"safe_distance_km", cfg.Maneuver.SafeDistanceKm,
		"lead_time", cfg.Maneuver.LeadTime.String(),
		"store_driver", cfg.Store.Driver,
		"schedule", cfg.ScheduleSpec,
	)
	return cfg, nil
}

// loader reads typed values, warning and falling back on bad input.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l loader) warn(key string, raw, def interface{}) {
	l.logger.Warn("invalid config value, using default", "key", key, "value", raw, "default", def)
}

func (l loader) duration(key string, def time.Duration, ok func(time.Duration) bool) time.Duration {
	raw := l.v.Get(key)
	d, err := cast.ToDurationE(raw)
	if err != nil || !ok(d) {
		l.warn(key, raw, def.String())
		return def
	}
	return d
}

func (l loader) float(key string, def float64, ok func(float64) bool) float64 {
	raw := l.v.Get(key)
	f, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(f) || !ok(f) {
		l.warn(key, raw, def)
		return def
	}
	return f
}

func (l loader) int(key string, def, min int) int {
	raw := l.v.Get(key)
	n, err := cast.ToIntE(raw)
	if err != nil || n < min {
		l.warn(key, raw, def)
		return def
	}
	return n
}

func (l loader) level(key string, def slog.Level) slog.Level {
	raw := l.v.GetString(key)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		l.warn(key, raw, def.String())
		return def
	}
	return lvl
}

// ids accepts a list or a comma-separated string of NORAD IDs.
func (l loader) ids(key string) []int {
	raw := l.v.Get(key)
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	default:
		parts = cast.ToStringSlice(val)
	}

	var ids []int
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil || id <= 0 {
			l.logger.Warn("ignoring invalid NORAD ID", "key", key, "value", p)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func gt(min float64) func(float64) bool  { return func(f float64) bool { return f > min } }
func gte(min float64) func(float64) bool { return func(f float64) bool { return f >= min } }

func between(lo, hi float64) func(float64) bool {
	return func(f float64) bool { return f > lo && f <= hi }
}
