package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/finrag/internal/domain"
)

const (
	inspectSample  = 3
	inspectSnippet = 120
)

func newInspectCmd(g *globals) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show collection metadata and the first chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			name := g.cfg.Index.Collection
			col, err := a.index.Stats(cmd.Context(), name)
			if errors.Is(err, domain.ErrCollectionMissing) {
				fmt.Fprintf(out, "Collection missing: %s\n", name)
				return nil
			}
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}

			fmt.Fprintf(out, "Collection: %s\n", col.Name)
			fmt.Fprintf(out, "Model:      %s\n", col.Model)
			fmt.Fprintf(out, "Dimensions: %d\n", col.Dimensions)
			fmt.Fprintf(out, "Chunking:   %s\n", col.Chunking)
			fmt.Fprintf(out, "Generation: %s\n", col.Generation)
			fmt.Fprintf(out, "Created:    %s\n", time.UnixMilli(col.CreatedAt).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "Count:      %d\n", col.ChunkCount)
			if col.ChunkCount == 0 {
				fmt.Fprintln(out, "Collection is empty.")
				return nil
			}

			hits, err := a.index.Sample(cmd.Context(), name, n)
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			fmt.Fprintln(out, "Sample:")
			for _, h := range hits {
				fmt.Fprintf(out, "  %s  source=%s\n    %s\n",
					domain.ChunkKey(h.DocID, domain.ParseChunkID(h.ChunkID)), h.Source,
					domain.Snippet(h.Text, inspectSnippet))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", inspectSample, "number of chunks to show")
	return cmd
}
