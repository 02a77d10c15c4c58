package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/urbanatlas/spatial-cli/internal/datasource"
	"github.com/urbanatlas/spatial-cli/internal/polygonindex"
)

var (
	waittimeLayer        string
	waittimeFormat       string
	waittimeWaitAttr     string
	waittimePriorityAttr string
	waittimeNameAttr     string
	waittimeDefaultWait  float64
)

var waittimeCmd = &cobra.Command{
	Use:   "waittime <lon,lat> [lon,lat ...]",
	Short: "Look up zone wait times for points",
	Long: `Indexes a polygon layer of service zones and reports, for each given
point, the wait time of the highest-priority zone containing it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		opts := polygonindex.Options{
			WaitTimeAttribute: waittimeWaitAttr,
			PriorityAttribute: waittimePriorityAttr,
			NameAttribute:     waittimeNameAttr,
			DefaultWait:       waittimeDefaultWait,
		}

		idx, err := loadWaitTimeIndex(ctx, polygonindex.PathResolver, waittimeLayer, waittimeFormat, opts)
		if err != nil {
			return err
		}

		points := make([][2]float64, 0, len(args))
		for _, arg := range args {
			lon, lat, err := parsePoint(arg)
			if err != nil {
				return err
			}
			points = append(points, [2]float64{lon, lat})
		}

		formatWaitTimes(os.Stdout, idx, points)

		for _, e := range idx.Errors() {
			fmt.Fprintln(os.Stderr, "warning:", e)
		}
		return nil
	},
}

func init() {
	waittimeCmd.Flags().StringVar(&waittimeLayer, "layer", "", "polygon layer with the service zones")
	waittimeCmd.Flags().StringVar(&waittimeFormat, "format", "", "layer format (default inferred from the extension)")
	waittimeCmd.Flags().StringVar(&waittimeWaitAttr, "wait-attribute", "", `attribute holding the wait time in minutes (default "wait")`)
	waittimeCmd.Flags().StringVar(&waittimePriorityAttr, "priority-attribute", "", `attribute ranking overlapping zones (default "priority")`)
	waittimeCmd.Flags().StringVar(&waittimeNameAttr, "name-attribute", "", `attribute naming the zone (default "name")`)
	waittimeCmd.Flags().Float64Var(&waittimeDefaultWait, "default-wait", 0, "wait time for points outside every zone")
	_ = waittimeCmd.MarkFlagRequired("layer")
	rootCmd.AddCommand(waittimeCmd)
}

// loadWaitTimeIndex resolves the layer reference and indexes it. The
// format is inferred from the resolved path unless given explicitly.
func loadWaitTimeIndex(ctx context.Context, resolve polygonindex.Resolver, ref, format string, opts polygonindex.Options) (*polygonindex.Collection, error) {
	path, err := resolve(ref)
	if err != nil {
		return nil, err
	}

	var f datasource.Format
	if format != "" {
		f, err = datasource.ParseFormat(format)
	} else {
		f, err = datasource.FormatForPath(path)
	}
	if err != nil {
		return nil, err
	}

	return polygonindex.Load(ctx, f, path, opts)
}

// parsePoint parses "lon,lat" into coordinates.
func parsePoint(s string) (lon, lat float64, err error) {
	lonStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, eris.Errorf("point %q is not lon,lat", s)
	}

	lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, eris.Errorf("point %q has an invalid longitude", s)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, eris.Errorf("point %q has an invalid latitude", s)
	}

	if lon < -180 || lon > 180 {
		return 0, 0, eris.Errorf("longitude %v out of range", lon)
	}
	if lat < -90 || lat > 90 {
		return 0, 0, eris.Errorf("latitude %v out of range", lat)
	}
	return lon, lat, nil
}

// formatWaitTimes writes one row per looked-up point to w.
func formatWaitTimes(out io.Writer, idx *polygonindex.Collection, points [][2]float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POINT\tWAIT_MIN\tZONE\tSERVED")
	_, _ = fmt.Fprintln(w, "-----\t--------\t----\t------")

	for _, p := range points {
		wait, zone := idx.WaitTime(p[0], p[1])

		served := "yes"
		if polygonindex.Unserved(wait) {
			served = "no"
		}
		if zone == "" {
			zone = "-"
		}

		_, _ = fmt.Fprintf(w, "%.5f,%.5f\t%.1f\t%s\t%s\n", p[0], p[1], wait, zone, served)
	}
	_ = w.Flush()
}
