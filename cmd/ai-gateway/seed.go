package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Azure/ai-gateway/pkg/app/di"
	"github.com/Azure/ai-gateway/pkg/catalog"
	"github.com/Azure/ai-gateway/pkg/logger"
	"github.com/Azure/ai-gateway/pkg/storage/bolt"
)

func newSeedCmd() *cobra.Command {
	var (
		flags commonFlags
		force bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the provider catalog into the database",
		Long:  `seed writes the catalog (the embedded default, or --catalog) into the database. Without --force an already populated database is left untouched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg, false)
			log := logger.Component("seed")
			ctx := cmd.Context()

			if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
				return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
			}
			store, err := bolt.Open(cfg.StorePath(), log)
			if err != nil {
				return err
			}
			defer store.Close()

			if !force {
				if err := di.SeedIfEmpty(ctx, store, cfg.CatalogFile, log); err != nil {
					return err
				}
			} else {
				cat, err := catalog.Load(cfg.CatalogFile)
				if err != nil {
					return err
				}
				if err := catalog.Seed(ctx, store, cat, log); err != nil {
					return err
				}
			}

			models, err := store.ListModels(ctx, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog holds %d models in %s\n", len(models), store.Path())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Upsert the catalog even when the database already has providers")
	return cmd
}
