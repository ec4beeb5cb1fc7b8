package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/query"
)

// bindForm registers one flag per search input.
func bindForm(cmd *cobra.Command, f *query.Form) {
	fl := cmd.Flags()
	fl.StringVar(&f.MinMag, "min-mag", "", "minimum magnitude (requires --max-mag)")
	fl.StringVar(&f.MaxMag, "max-mag", "", "maximum magnitude (requires --min-mag)")
	fl.StringVar(&f.StartDate, "start-date", "", "first day, YYYY-MM-DD (requires --end-date)")
	fl.StringVar(&f.EndDate, "end-date", "", "last day, YYYY-MM-DD, inclusive")
	fl.StringVar(&f.Latitude, "lat", "", "reference latitude")
	fl.StringVar(&f.Longitude, "lon", "", "reference longitude")
	fl.StringVar(&f.Distance, "distance", "", "radius in km around --lat/--lon, or max label distance without them")
	fl.StringVar(&f.Place, "place", "", "case-insensitive place substring")
	fl.StringVar(&f.NightTime, "night", "", "only events above magnitude 4 between 18:00 and 06:59 UTC (true/false)")
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		form   query.Form
		format string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "search stored events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := query.ParseCriteria(form)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := a.newService(store).Search(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, res)
			}
			if err := writeEventTable(out, res.Matches); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d matches, %d skipped\n", len(res.Matches), res.Skipped)
			return nil
		},
	}
	bindForm(cmd, &form)
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func newClustersCmd(a *app) *cobra.Command {
	var (
		form   query.Form
		format string
	)
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "group matching events into proximity clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := query.ParseCriteria(form)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			clusters, warnings, err := a.newService(store).ClustersFor(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, clusters)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEED\tMEMBERS\tMAX MAG\tCENTROID\tCELL")
			for _, c := range clusters {
				fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.3f,%.3f\t%s\n",
					c.Seed, len(c.Members), c.MaxMagnitude, c.Centroid.Lat, c.Centroid.Lon, c.Cell)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d clusters\n", len(clusters))
			return nil
		},
	}
	bindForm(cmd, &form)
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "count large events and large events at night",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			svc := a.newService(store)
			large, err := svc.CountLarge(cmd.Context())
			if err != nil {
				return err
			}
			night, err := svc.CountLargeAtNight(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "large (mag > 5): %d\nnight (mag > 4): %d\n", large, night)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEventTable(w io.Writer, events []domain.SeismicEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMAG\tLAT\tLON\tDEPTH\tPLACE")
	for _, e := range events {
		lat, lon := "-", "-"
		if e.Geo != nil {
			lat = strconv.FormatFloat(e.Geo.Lat, 'f', 3, 64)
			lon = strconv.FormatFloat(e.Geo.Lon, 'f', 3, 64)
		}
		depth := "-"
		if e.Depth != nil {
			depth = strconv.FormatFloat(*e.Depth, 'f', 1, 64)
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%s\t%s\n",
			e.Time.UTC().Format(time.DateTime), e.Magnitude, lat, lon, depth, e.Place)
	}
	return tw.Flush()
}
