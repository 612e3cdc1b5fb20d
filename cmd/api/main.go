package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/mis-api/internal/config"
	"github.com/jwalitptl/mis-api/internal/repository"
	"github.com/jwalitptl/mis-api/internal/repository/memory"
	"github.com/jwalitptl/mis-api/internal/repository/postgres"
	"github.com/jwalitptl/mis-api/pkg/logger"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "mis",
		Short:         "Medical consultation API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(seedCmd(&configPath))
	rootCmd.AddCommand(workerCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the global logger
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	return cfg, nil
}

// openStore connects the configured storage backend. The returned func
// releases it.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*repository.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Msg("using in-memory storage, data is lost on exit")
		return memory.NewStore(), func() {}, nil
	case "postgres", "":
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("host", cfg.Host).Str("database", cfg.Name).Msg("connected to database")
		return postgres.NewStore(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
