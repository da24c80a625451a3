package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Debrato2005/OrbitOps/internal/analysis"
	"github.com/Debrato2005/OrbitOps/internal/maneuver"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "", "", quietLogger())
	require.NoError(t, err)

	assert.Equal(t, analysis.DefaultConfig(), cfg.Analysis)
	assert.Equal(t, maneuver.DefaultConfig(), cfg.Maneuver)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "@every 6h", cfg.ScheduleSpec)
	assert.Empty(t, cfg.Primaries)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ORBITOPS_SCREEN_STEP", "30s")
	t.Setenv("ORBITOPS_SCREEN_THRESHOLD_KM", "25")
	t.Setenv("ORBITOPS_MANEUVER_LEAD_TIME_MINUTES", "-45")
	t.Setenv("ORBITOPS_SCHEDULE_PRIMARIES", "25544, 99001,bogus")
	t.Setenv("ORBITOPS_LOG_LEVEL", "debug")

	cfg, err := Load(New(), "", "", quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Analysis.Step)
	assert.Equal(t, 25.0, cfg.Analysis.ThresholdKm)
	assert.Equal(t, -45*time.Minute, cfg.Maneuver.LeadTime)
	assert.Equal(t, []int{25544, 99001}, cfg.Primaries)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		env   string
		value string
		check func(t *testing.T, cfg Config)
	}{
		{"ORBITOPS_SCREEN_DURATION", "soon", func(t *testing.T, cfg Config) {
			assert.Equal(t, 24*time.Hour, cfg.Analysis.Duration)
		}},
		{"ORBITOPS_SCREEN_WORKERS", "0", func(t *testing.T, cfg Config) {
			assert.Equal(t, 8, cfg.Screening.Workers)
		}},
		{"ORBITOPS_RISK_PROBABILITY_THRESHOLD", "1.5", func(t *testing.T, cfg Config) {
			assert.Equal(t, 1e-4, cfg.Analysis.Criteria.ProbabilityThreshold)
		}},
		{"ORBITOPS_MANEUVER_LEAD_TIME_MINUTES", "30", func(t *testing.T, cfg Config) {
			assert.Equal(t, -30*time.Minute, cfg.Maneuver.LeadTime)
		}},
		{"ORBITOPS_MANEUVER_CAP_MPS", "500", func(t *testing.T, cfg Config) {
			assert.Equal(t, maneuver.MaxCapMps, cfg.Maneuver.CapMps)
		}},
		{"ORBITOPS_STORE_DRIVER", "sqlite", func(t *testing.T, cfg Config) {
			assert.Equal(t, DriverMemory, cfg.Store.Driver)
		}},
		{"ORBITOPS_LOG_LEVEL", "loud", func(t *testing.T, cfg Config) {
			assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			cfg, err := Load(New(), "", "", quietLogger())
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadStepLongerThanDuration(t *testing.T) {
	t.Setenv("ORBITOPS_SCREEN_DURATION", "10m")
	t.Setenv("ORBITOPS_SCREEN_STEP", "1h")

	cfg, err := Load(New(), "", "", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Analysis.Duration)
	assert.Equal(t, 60*time.Second, cfg.Analysis.Step)
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	t.Setenv("ORBITOPS_STORE_DRIVER", "postgres")

	_, err := Load(New(), "", "", quietLogger())
	assert.Error(t, err)
}

func TestLoadConfigFileAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "orbitops.yaml")
	yaml := `
screen:
  duration: 12h
  filter_margin_km: 2.5
store:
  driver: postgres
  dsn: postgres://localhost/orbitops?sslmode=disable
schedule:
  primaries: [1, 2, 3]
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("ORBITOPS_CATALOG_TLE_FILE=/data/catalog.tle\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ORBITOPS_CATALOG_TLE_FILE") })

	// Environment wins over the file.
	t.Setenv("ORBITOPS_SCREEN_FILTER_MARGIN_KM", "4")

	cfg, err := Load(New(), cfgPath, envPath, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 12*time.Hour, cfg.Analysis.Duration)
	assert.Equal(t, 4.0, cfg.Screening.FilterMarginKm)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/orbitops?sslmode=disable", cfg.Store.Postgres.DSN)
	assert.Equal(t, []int{1, 2, 3}, cfg.Primaries)
	assert.Equal(t, "/data/catalog.tle", cfg.Catalog.TLEFile)
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	_, err := Load(New(), "", filepath.Join(t.TempDir(), "absent.env"), quietLogger())
	assert.NoError(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"), "", quietLogger())
	assert.Error(t, err)
}
