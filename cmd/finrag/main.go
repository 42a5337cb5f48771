package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/config"
	logpkg "github.com/kailas-cloud/finrag/internal/logger"
	"github.com/kailas-cloud/finrag/internal/version"
)

// globals are resolved once in the root PersistentPreRunE.
type globals struct {
	env        string
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "finrag",
		Short:         "Question answering over SEC filing excerpts",
		Long:          "finrag indexes filing excerpts into a vector index and answers questions from them with cited, grounded responses.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&g.env, "env", config.GetEnv(), "environment name, selects config/<env>.yaml")
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "explicit config file (overrides --env)")

	root.AddCommand(
		newServeCmd(g),
		newIndexCmd(g),
		newAskCmd(g),
		newEvalCmd(g),
		newInspectCmd(g),
	)
	return root
}

func (g *globals) load(_ *cobra.Command) error {
	var err error
	if g.configPath != "" {
		g.cfg, err = config.LoadFile(g.configPath)
	} else {
		g.cfg, err = config.Load(g.env)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	g.logger, err = logpkg.New(logpkg.Options{
		Env:    g.env,
		Level:  g.cfg.Logging.Level,
		Format: g.cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	return nil
}
