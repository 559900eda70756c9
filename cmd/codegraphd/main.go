// Package main implements codegraphd, the code graph/RAG indexing
// engine's daemon and CLI. Command implementations live in their own
// cmd_*.go files; this file holds the entry point, root command, and
// global flags.
//
// File Index:
//   - main.go      - entry point, rootCmd, global flags, init()
//   - cmd_index.go - `index` subcommand
//   - cmd_serve.go - `serve` subcommand (hosts tools over MCP/stdio)
//   - cmd_query.go - `query` subcommand
//   - cmd_reset.go - `reset` subcommand
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/config"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

var (
	verbose    bool
	configPath string
	workspace  string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "codegraphd",
	Short: "Code graph / RAG indexing engine",
	Long: `codegraphd parses a source tree into a typed entity/relationship
graph, embeds entities for semantic retrieval, and serves both over a
fixed tool-call surface (index, query, semantic_search, ...), either
as one-shot CLI subcommands or as an MCP server over stdio.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if workspace != "" {
			loaded.Database.Path = workspace
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(cfg.Logging.Dir, level); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "database", "d", "", "Override database.path from config")

	rootCmd.AddCommand(indexCmd, serveCmd, queryCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
