package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every entity, relationship, file record, and vector from the graph store",
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	wd, _ := os.Getwd()
	e, err := newEngine(ctx, cfg, wd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.ResetAll(ctx); err != nil {
		return fmt.Errorf("reset graph store: %w", err)
	}
	if err := e.vector.Clear(ctx); err != nil {
		return fmt.Errorf("reset vector index: %w", err)
	}
	fmt.Println("graph store and vector index reset")
	return nil
}
