package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Debrato2005/OrbitOps/internal/analysis"
	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/catalog/pgstore"
	"github.com/Debrato2005/OrbitOps/internal/config"
	"github.com/Debrato2005/OrbitOps/internal/maneuver"
	"github.com/Debrato2005/OrbitOps/internal/metrics"
	"github.com/Debrato2005/OrbitOps/internal/propagation"
	"github.com/Debrato2005/OrbitOps/internal/screening"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// app is everything a command needs, opened at command start.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	objects *tle.Store
	store   catalog.Store
	catalog *catalog.Catalog
	service *analysis.Service
}

func bind(v *viper.Viper, f *pflag.Flag, key string) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", f.Name, err))
	}
}

// open loads configuration, the object catalog and the conjunction store.
// needObjects is false for commands that only touch stored events.
func (o *rootOptions) open(ctx context.Context, needObjects bool) (*app, error) {
	logger := o.logger()

	cfg, err := config.Load(o.v, o.configFile, o.envFile, logger)
	if err != nil {
		return nil, err
	}
	o.level.Set(cfg.LogLevel)

	objects := tle.NewStore()
	if cfg.Catalog.TLEFile != "" {
		ds, err := tle.LoadDataset(cfg.Catalog, time.Now(), logger)
		if err != nil {
			return nil, err
		}
		objects.Set(ds)
		metrics.SetCatalogObjects(objects.Len())
	} else if needObjects {
		return nil, fmt.Errorf("catalog.tle_file (--tle-file) is required")
	}

	store, err := o.openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	provider := propagation.NewSGP4Provider(logger)
	solver, err := maneuver.NewSolver(provider, cfg.Maneuver, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	cat := catalog.New(store, logger)
	screener := screening.New(provider, cfg.Screening, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		objects: objects,
		store:   store,
		catalog: cat,
		service: analysis.New(objects, cat, screener, solver, cfg.Analysis, logger),
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (catalog.Store, error) {
	if cfg.Driver != config.DriverPostgres {
		logger.Info("using in-memory conjunction store")
		return catalog.NewMemoryStore(), nil
	}
	s, err := pgstore.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// warnEphemeral flags writing commands whose results die with the process.
// Only the run daemon keeps an in-memory store alive between operations.
func (a *app) warnEphemeral(command string) {
	if a.cfg.Store.Driver == config.DriverMemory {
		a.logger.Warn("in-memory store: results are discarded when the command exits; set store.driver=postgres to keep them",
			"command", command)
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

func parseNORAD(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid NORAD ID %q", arg)
	}
	return id, nil
}
