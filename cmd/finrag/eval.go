package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/finrag/internal/eval"
)

func newEvalCmd(g *globals) *cobra.Command {
	var (
		questionsPath string
		out           string
		k             int
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run a question set through the pipeline and record results as JSONL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			questions := eval.DefaultQuestions
			if questionsPath != "" {
				qs, err := eval.LoadQuestions(questionsPath)
				if err != nil {
					return err
				}
				questions = qs
			}

			a, err := newApp(cmd.Context(), g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := eval.NewRunner(a.answers, k, g.logger).RunToFile(cmd.Context(), questions, out)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Answered %d/%d questions (%d failed). Wrote: %s\n",
				sum.OK, len(questions), sum.Failed, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&questionsPath, "questions", "q", "", "file with one question per line (default built-in set)")
	cmd.Flags().StringVarP(&out, "out", "o", eval.DefaultOutput, "output JSONL path")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to retrieve (default retrieval.default_k)")
	return cmd
}
