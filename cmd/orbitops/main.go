package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/config"
)

type rootOptions struct {
	configFile string
	envFile    string
	level      slog.LevelVar
	v          *viper.Viper
	logOut     io.Writer
	openStore  func(context.Context, config.StoreConfig, *slog.Logger) (catalog.Store, error)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{v: config.New(), logOut: os.Stderr, openStore: openStore})
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "orbitops",
		Short:         "Conjunction screening and collision-avoidance maneuver planning",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("store-driver", config.DriverMemory, "conjunction store: memory or postgres")
	pf.String("store-dsn", "", "PostgreSQL connection string")
	pf.String("tle-file", "", "3-line TLE catalog file")
	pf.String("custom-file", "", "TLE file of user-defined assets")
	pf.String("satcat-file", "", "SATCAT CSV used for object types")

	bind(opts.v, pf.Lookup("log-level"), "log_level")
	bind(opts.v, pf.Lookup("store-driver"), "store.driver")
	bind(opts.v, pf.Lookup("store-dsn"), "store.dsn")
	bind(opts.v, pf.Lookup("tle-file"), "catalog.tle_file")
	bind(opts.v, pf.Lookup("custom-file"), "catalog.custom_file")
	bind(opts.v, pf.Lookup("satcat-file"), "catalog.satcat_file")

	root.AddCommand(
		newScreenCmd(opts),
		newPlanCmd(opts),
		newRisksCmd(opts),
		newIngestCmd(opts),
		newClearCmd(opts),
		newRunCmd(opts),
	)
	return root
}

// logger writes JSON to stderr so command output on stdout stays clean.
func (o *rootOptions) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(o.logOut, &slog.HandlerOptions{Level: &o.level}))
}
