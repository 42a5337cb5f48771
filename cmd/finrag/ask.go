package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/finrag/internal/domain"
	logpkg "github.com/kailas-cloud/finrag/internal/logger"
)

func newAskCmd(g *globals) *cobra.Command {
	var (
		k      int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is empty: %w", domain.ErrInvalidRequest)
			}

			a, err := newApp(cmd.Context(), g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, _ := logpkg.WithRequest(cmd.Context(), g.logger, uuid.NewString())

			ans, err := a.answers.Answer(ctx, question, k)
			if err != nil {
				return fmt.Errorf("answer: %w", err)
			}
			return writeAnswer(cmd.OutOrStdout(), ans, asJSON)
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to retrieve (default retrieval.default_k)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return cmd
}

// writeAnswer prints ans to w, either as indented JSON or as plain text with
// numbered citations.
func writeAnswer(w io.Writer, ans domain.Answer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ans); err != nil {
			return fmt.Errorf("encode answer: %w", err)
		}
		return nil
	}

	fmt.Fprintf(w, "%s\n\nConfidence: %.2f\n", ans.Answer, ans.Confidence)
	if len(ans.Citations) == 0 {
		return nil
	}
	fmt.Fprintln(w, "Citations:")
	for i, c := range ans.Citations {
		fmt.Fprintf(w, "  [%d] %s/%d  %s\n", i+1, c.DocID, c.ChunkID, c.Preview)
	}
	return nil
}
