package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/urbanatlas/spatial-cli/internal/catalog"
	"github.com/urbanatlas/spatial-cli/internal/datasource"
	"github.com/urbanatlas/spatial-cli/internal/geometry"
)

var datasourcesCmd = &cobra.Command{
	Use:   "datasources",
	Short: "Inspect cataloged data sources",
	Long:  "Commands for listing, viewing, and deleting ingested spatial data sources.",
}

// -- datasources list --

var datasourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cataloged data sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("datasources"); err != nil {
			return err
		}

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		format, _ := cmd.Flags().GetString("format")
		region, _ := cmd.Flags().GetString("region")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := catalog.Filter{
			RegionID: region,
			Limit:    limit,
			Offset:   offset,
		}
		if format != "" {
			f, err := datasource.ParseFormat(format)
			if err != nil {
				return err
			}
			filter.Format = f
		}

		sources, err := st.List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "datasources list")
		}

		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No data sources found.")
			return nil
		}

		formatDataSourceList(os.Stdout, sources)
		return nil
	},
}

// -- datasources show --

var datasourcesShowCmd = &cobra.Command{
	Use:   "show <datasource-id>",
	Short: "Show full details of a data source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("datasources"); err != nil {
			return err
		}

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		src, err := st.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "datasources show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(src)
	},
}

// -- datasources delete --

var datasourcesDeleteCmd = &cobra.Command{
	Use:   "delete <datasource-id>",
	Short: "Delete a data source from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("datasources"); err != nil {
			return err
		}

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Delete(ctx, args[0]); err != nil {
			return eris.Wrap(err, "datasources delete")
		}

		fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
		return nil
	},
}

// -- datasources stats --

var datasourcesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate catalog statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("datasources"); err != nil {
			return err
		}

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		region, _ := cmd.Flags().GetString("region")

		filter := catalog.Filter{RegionID: region}
		filter.Limit = 10000 // high limit for stats

		sources, err := st.List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "datasources stats")
		}

		stats := computeDataSourceStats(sources)
		formatDataSourceStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	datasourcesListCmd.Flags().String("format", "", "filter by file format (shapefile, geojson, geopackage)")
	datasourcesListCmd.Flags().String("region", "", "filter by region id")
	datasourcesListCmd.Flags().Int("limit", 50, "max number of data sources to display")
	datasourcesListCmd.Flags().Int("offset", 0, "number of data sources to skip")

	datasourcesStatsCmd.Flags().String("region", "", "restrict stats to one region")

	datasourcesCmd.AddCommand(datasourcesListCmd)
	datasourcesCmd.AddCommand(datasourcesShowCmd)
	datasourcesCmd.AddCommand(datasourcesDeleteCmd)
	datasourcesCmd.AddCommand(datasourcesStatsCmd)
	rootCmd.AddCommand(datasourcesCmd)
}

// dataSourceStats holds aggregate statistics computed from a set of
// cataloged data sources.
type dataSourceStats struct {
	Total         int
	ByFormat      map[datasource.Format]int
	TotalFeatures int
	WithIssues    int
	Bounds        geometry.Envelope
}

// computeDataSourceStats computes aggregate statistics from a list of
// data sources.
func computeDataSourceStats(sources []datasource.SpatialDataSource) dataSourceStats {
	s := dataSourceStats{
		ByFormat: make(map[datasource.Format]int),
		Bounds:   geometry.EmptyEnvelope(),
	}

	for _, src := range sources {
		s.Total++
		s.ByFormat[src.Format]++
		s.TotalFeatures += src.FeatureCount
		if len(src.Issues) > 0 {
			s.WithIssues++
		}
		s.Bounds.Union(src.WGSBounds)
	}
	return s
}

// formatDataSourceList writes a tabular list of data sources to w.
func formatDataSourceList(out io.Writer, sources []datasource.SpatialDataSource) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tREGION\tFORMAT\tTYPE\tFEATURES\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t----\t--------\t-------")

	for _, src := range sources {
		name := src.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(src.ID),
			name,
			src.RegionID,
			src.Format,
			src.GeometryType,
			src.FeatureCount,
			src.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatDataSourceStats writes aggregate stats to w.
func formatDataSourceStats(out io.Writer, s dataSourceStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total data sources:\t%d\n", s.Total)
	for _, f := range datasource.Formats() {
		if n := s.ByFormat[f]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", f, n)
		}
	}
	_, _ = fmt.Fprintf(w, "Total features:\t%d\n", s.TotalFeatures)
	_, _ = fmt.Fprintf(w, "With issues:\t%d\n", s.WithIssues)
	if !s.Bounds.IsEmpty() {
		_, _ = fmt.Fprintf(w, "Coverage:\t%.4f, %.4f to %.4f, %.4f\n",
			s.Bounds.MinLng, s.Bounds.MinLat, s.Bounds.MaxLng, s.Bounds.MaxLat)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
