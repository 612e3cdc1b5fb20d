package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/mis-api/internal/config"
	"github.com/jwalitptl/mis-api/internal/repository"
	"github.com/jwalitptl/mis-api/internal/seed"
	authservice "github.com/jwalitptl/mis-api/internal/service/auth"
	"github.com/jwalitptl/mis-api/pkg/auth"
	"github.com/jwalitptl/mis-api/pkg/metrics"
	"github.com/jwalitptl/mis-api/pkg/security"
)

func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo admin, clinic, doctor, patient and consultation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := openStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := runSeed(ctx, cfg, store)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Test data ready\n\nAdmin:    username=%s\nDoctor:   username=%s\nPatient:  username=%s\n",
				res.Admin.Username, res.Doctor.User.Username, res.Patient.User.Username)
			return nil
		},
	}
}

func runSeed(ctx context.Context, cfg *config.Config, store *repository.Store) (*seed.Result, error) {
	fixture, err := seed.LoadFixture()
	if err != nil {
		return nil, err
	}

	registrar := authservice.NewService(
		store.Users,
		auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		security.NewBcryptHasher(security.DefaultCost),
		authservice.NewMemoryBlacklist(),
		metrics.NewNop(),
	)
	return seed.NewSeeder(store, registrar).Run(ctx, fixture)
}
