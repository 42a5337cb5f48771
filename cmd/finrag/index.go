package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/ingest"
)

type indexOptions struct {
	dir    string
	watch  bool
	upsert bool
}

func newIndexCmd(g *globals) *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed and index the corpus directory",
		Long: `Reads every .txt file in the corpus directory, chunks and embeds it, and
rebuilds the collection. The previous generation keeps serving until the new
one is complete. With --watch, rebuilds again whenever corpus files change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, g, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "corpus directory (overrides corpus.dir)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "rebuild when corpus files change")
	cmd.Flags().BoolVar(&opts.upsert, "upsert", false, "add or update chunks instead of a full rebuild")
	return cmd
}

func runIndex(cmd *cobra.Command, g *globals, opts *indexOptions) error {
	cfg, logger := g.cfg, g.logger
	dir := opts.dir
	if dir == "" {
		dir = cfg.Corpus.Dir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	build := func(ctx context.Context) error {
		docs, err := ingest.LoadDir(dir)
		if err != nil {
			return err
		}
		start := time.Now()
		if opts.upsert {
			col, err := a.index.Upsert(ctx, cfg.Index.Collection, docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Upserted %d documents into %s (%d chunks total) in %s\n",
				len(docs), col.Name, col.ChunkCount, time.Since(start).Round(time.Millisecond))
			return nil
		}
		col, err := a.index.Build(ctx, cfg.Index.Collection, docs)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents into %s: %d chunks, %d dims, generation %s (%s)\n",
			len(docs), col.Name, col.ChunkCount, col.Dimensions, col.Generation,
			time.Since(start).Round(time.Millisecond))
		return nil
	}

	if err := build(ctx); err != nil {
		if !opts.watch {
			return fmt.Errorf("index %s: %w", dir, err)
		}
		logger.Error("Initial build failed, waiting for corpus changes", zap.Error(err))
	}
	if !opts.watch {
		return nil
	}

	debounce := time.Duration(cfg.Corpus.DebounceSec) * time.Second
	if err := ingest.Watch(ctx, dir, debounce, build, logger); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return nil
}
