package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-search-service/internal/adapter/csvsource"
	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/couchcryptid/quake-search-service/internal/pipeline"
)

func newLoadCmd(a *app) *cobra.Command {
	var (
		csvPath   string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "load a USGS catalog CSV export into the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer closeQuietly(f)

			src, err := csvsource.NewReader(f, filepath.Base(csvPath))
			if err != nil {
				return err
			}

			metrics := observability.NewUnregisteredMetrics()
			loader := &progressLoader{next: store, bar: newProgressBar(cmd.ErrOrStderr(), "loading", -1)}
			rejects := &rejectLog{w: cmd.ErrOrStderr()}
			p := pipeline.New(src, pipeline.NewTransformer(nil, a.logger), loader, a.logger, metrics, batchSize,
				pipeline.WithDeadLetters(rejects))
			if err := p.Run(ctx); err != nil {
				return err
			}
			loader.finish()
			if err := ctx.Err(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d events from %s (%d rejected)\n",
				loader.loaded, csvPath, rejects.count)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "USGS catalog CSV file")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "rows per insert transaction")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

// progressLoader counts loaded events and advances an optional progress bar.
type progressLoader struct {
	next   pipeline.BatchLoader
	bar    *progressbar.ProgressBar
	loaded int
}

func (l *progressLoader) LoadBatch(ctx context.Context, events []domain.SeismicEvent) error {
	if err := l.next.LoadBatch(ctx, events); err != nil {
		return err
	}
	l.loaded += len(events)
	if l.bar != nil {
		_ = l.bar.Add(len(events))
	}
	return nil
}

func (l *progressLoader) finish() {
	if l.bar != nil {
		_ = l.bar.Finish()
	}
}

// rejectLog reports rows that could not be parsed. A CSV file has no dead
// letter topic, so the row is printed and skipped.
type rejectLog struct {
	w     io.Writer
	count int
}

func (r *rejectLog) DeadLetter(_ context.Context, raw domain.RawEvent, cause error) error {
	r.count++
	fmt.Fprintf(r.w, "%s line %d (%s): %v\n", raw.Topic, raw.Offset, raw.Key, cause)
	return nil
}

// newProgressBar returns a bar on terminals and nil otherwise. A total of -1
// draws a spinner.
func newProgressBar(w io.Writer, desc string, total int) *progressbar.ProgressBar {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
