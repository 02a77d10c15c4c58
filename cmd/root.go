package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanatlas/spatial-cli/internal/catalog"
	"github.com/urbanatlas/spatial-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "spatial-cli",
	Short: "Spatial data source ingestion toolkit",
	Long: `spatial-cli ingests GIS files (shapefiles, GeoJSON, GeoPackages) into
normalized spatial data source records, catalogs them, and serves the
catalog over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initCatalog opens the configured catalog store and applies migrations.
func initCatalog(ctx context.Context) (catalog.Store, error) {
	st, err := catalog.New(ctx, cfg.Catalog)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
