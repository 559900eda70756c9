package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index [directory]",
	Short: "Index a directory into the graph store",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := os.Getwd()
	if err == nil && dir == "." {
		dir = abs
	}

	ctx := context.Background()
	e, err := newEngine(ctx, cfg, dir)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.indexer.IndexDirectory(ctx, dir, indexer.IndexOptions{})
	if err != nil {
		return fmt.Errorf("index %s: %w", dir, err)
	}

	fmt.Printf("scanned %d files, indexed %d, skipped %d (unchanged)\n", res.FilesScanned, res.FilesIndexed, res.FilesSkipped)
	fmt.Printf("entities: %d, relationships: %d\n", res.Entities, res.Relationships)
	if res.LargeRepoDetected {
		fmt.Println("large repository detected: aggressive excludes and a larger batch size were applied")
	}
	if len(res.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "%d file(s) failed to index:\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "  - %v\n", e)
		}
	}
	return nil
}
