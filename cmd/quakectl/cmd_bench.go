package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-search-service/internal/query"
	"github.com/couchcryptid/quake-search-service/internal/search"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		n       int
		seed    uint64
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "time a batch of randomly generated searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n < 1 {
				return fmt.Errorf("--n must be positive, got %d", n)
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			svc := a.newService(store)

			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			now := time.Now().UTC()
			bar := newProgressBar(cmd.ErrOrStderr(), "searching", n)

			var (
				latencies = make([]time.Duration, 0, n)
				failed    int
				tooMany   int
				matched   int
			)
			for i := range n {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				form := randomForm(rng, now)
				criteria, err := query.ParseCriteria(form)
				if err != nil {
					return fmt.Errorf("generated invalid query %+v: %w", form, err)
				}

				start := time.Now()
				res, err := svc.Search(cmd.Context(), criteria)
				elapsed := time.Since(start)
				latencies = append(latencies, elapsed)

				switch {
				case errors.Is(err, search.ErrTooManyCandidates):
					tooMany++
				case err != nil:
					failed++
					a.logger.Warn("bench query failed", "query", i, "error", err)
				default:
					matched += len(res.Matches)
				}
				if verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "%4d  %8.2fms  %+v\n", i, ms(elapsed), form)
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}

			s := summarize(latencies)
			fmt.Fprintf(cmd.OutOrStdout(),
				"queries: %d  failed: %d  too many candidates: %d  matches: %d\n"+
					"mean: %.2fms  p50: %.2fms  p95: %.2fms  max: %.2fms  total: %s\n",
				n, failed, tooMany, matched,
				ms(s.mean), ms(s.p50), ms(s.p95), ms(s.max), s.total.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 1000, "number of queries")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every query and its latency")
	return cmd
}

// randomForm draws a query with every input set: a magnitude window inside
// [0, 10], a date window of up to a year starting within the last year, a
// point anywhere on the globe with a radius up to 1000 km, a random place
// fragment and a random night flag.
func randomForm(rng *rand.Rand, now time.Time) query.Form {
	minMag := rng.Float64() * 10
	maxMag := minMag + rng.Float64()*(10-minMag)
	start := now.AddDate(0, 0, -(1 + rng.IntN(365)))
	end := start.AddDate(0, 0, 1+rng.IntN(365))

	return query.Form{
		MinMag:    formatFloat(minMag),
		MaxMag:    formatFloat(maxMag),
		StartDate: start.Format(time.DateOnly),
		EndDate:   end.Format(time.DateOnly),
		Latitude:  formatFloat(rng.Float64()*180 - 90),
		Longitude: formatFloat(rng.Float64()*360 - 180),
		Distance:  formatFloat(1 + rng.Float64()*999),
		Place:     randomLetters(rng, 5+rng.IntN(11)),
		NightTime: strconv.FormatBool(rng.IntN(2) == 1),
	}
}

func randomLetters(rng *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.IntN(len(letters))]
	}
	return string(b)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

type latencySummary struct {
	total, mean, p50, p95, max time.Duration
}

func summarize(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var s latencySummary
	for _, d := range sorted {
		s.total += d
	}
	s.mean = s.total / time.Duration(len(sorted))
	s.p50 = percentile(sorted, 0.50)
	s.p95 = percentile(sorted, 0.95)
	s.max = sorted[len(sorted)-1]
	return s
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	rank := int(q*float64(len(sorted))+0.999999) - 1
	return sorted[max(0, min(rank, len(sorted)-1))]
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
