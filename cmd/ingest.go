package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/urbanatlas/spatial-cli/internal/catalog"
	"github.com/urbanatlas/spatial-cli/internal/datasource"
)

var (
	ingestFile        string
	ingestFormat      string
	ingestName        string
	ingestDescription string
	ingestRegion      string
	ingestOwnerEmail  string
	ingestAccessGroup string
	ingestManifest    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a GIS file into the catalog",
	Long: `Validates and normalizes a shapefile, GeoJSON, or GeoPackage file, then
records the resulting data source in the catalog. With --manifest, ingests
a batch of files concurrently.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if ingestManifest != "" {
			m, err := loadManifest(ingestManifest)
			if err != nil {
				return err
			}
			return processManifest(ctx, st, m.Sources, cfg.Ingest.Concurrency)
		}

		if ingestFile == "" {
			return eris.New("ingest: either --file or --manifest is required")
		}

		entry := manifestEntry{
			File:        ingestFile,
			Format:      ingestFormat,
			Name:        ingestName,
			Description: ingestDescription,
			RegionID:    ingestRegion,
			OwnerEmail:  ingestOwnerEmail,
			AccessGroup: ingestAccessGroup,
		}
		if err := entry.validate(); err != nil {
			return err
		}

		src, err := ingestOne(ctx, st, entry, datasource.NewLogProgressListener(entry.Name))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(src)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path of the GIS file to ingest")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "file format: shapefile, geojson, or geopackage (default inferred from the extension)")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "display name for the data source")
	ingestCmd.Flags().StringVar(&ingestDescription, "description", "", "description of the data source")
	ingestCmd.Flags().StringVar(&ingestRegion, "region", "", "region the data source belongs to")
	ingestCmd.Flags().StringVar(&ingestOwnerEmail, "owner-email", "", "email of the owning user")
	ingestCmd.Flags().StringVar(&ingestAccessGroup, "access-group", "", "access group granted to the data source")
	ingestCmd.Flags().StringVar(&ingestManifest, "manifest", "", "YAML manifest for batch ingestion")
	rootCmd.AddCommand(ingestCmd)
}

// manifest lists the sources of one batch ingestion.
type manifest struct {
	Sources []manifestEntry `yaml:"sources"`
}

type manifestEntry struct {
	File        string `yaml:"file"`
	Format      string `yaml:"format,omitempty"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	RegionID    string `yaml:"region_id"`
	OwnerEmail  string `yaml:"owner_email,omitempty"`
	AccessGroup string `yaml:"access_group,omitempty"`
}

func (e manifestEntry) validate() error {
	var missing []string
	if e.File == "" {
		missing = append(missing, "file")
	}
	if e.Name == "" {
		missing = append(missing, "name")
	}
	if e.RegionID == "" {
		missing = append(missing, "region")
	}
	if len(missing) > 0 {
		return eris.Errorf("ingest: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (e manifestEntry) resolveFormat() (datasource.Format, error) {
	if e.Format != "" {
		return datasource.ParseFormat(e.Format)
	}
	return datasource.FormatForPath(e.File)
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read manifest %s", path)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "parse manifest %s", path)
	}
	if len(m.Sources) == 0 {
		return nil, eris.Errorf("manifest %s lists no sources", path)
	}
	for i, e := range m.Sources {
		if err := e.validate(); err != nil {
			return nil, eris.Wrapf(err, "manifest %s source %d", path, i)
		}
	}
	return &m, nil
}

// ingestOne runs the full ingest for one entry and records the result in
// the catalog.
func ingestOne(ctx context.Context, st catalog.Store, entry manifestEntry, listener datasource.ProgressListener) (*datasource.SpatialDataSource, error) {
	format, err := entry.resolveFormat()
	if err != nil {
		return nil, err
	}

	ing, err := datasource.ForFormat(format)
	if err != nil {
		return nil, err
	}
	ing.InitializeDataSource(entry.Name, entry.Description, entry.RegionID, datasource.UserPermissions{
		Email:       entry.OwnerEmail,
		AccessGroup: entry.AccessGroup,
	})

	if err := ing.Ingest(ctx, entry.File, listener); err != nil {
		return nil, err
	}

	src := ing.DataSource()
	if err := st.Save(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

// processManifest ingests the manifest entries concurrently. Individual
// failures are counted and logged without aborting the batch.
func processManifest(ctx context.Context, st catalog.Store, entries []manifestEntry, concurrency int) error {
	zap.L().Info("processing manifest",
		zap.Int("sources", len(entries)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, entry := range entries {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", entry.File))

			src, err := ingestOne(gctx, st, entry, datasource.NoopProgressListener{})
			if err != nil {
				failed.Add(1)
				log.Error("ingest failed", zap.Error(err))
				return nil // don't abort the batch on individual failure
			}

			succeeded.Add(1)
			log.Info("ingest complete",
				zap.String("id", src.ID),
				zap.Int("features", src.FeatureCount),
				zap.Int("issues", len(src.Issues)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "process manifest")
	}

	zap.L().Info("manifest complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	if n := failed.Load(); n > 0 {
		return eris.Errorf("%d of %d sources failed", n, len(entries))
	}
	return nil
}
