package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	queryTool string
	queryArgs string
)

var queryCmd = &cobra.Command{
	Use:   "query --tool <name> --args <json>",
	Short: "Invoke one tool-call surface operation and print its JSON result",
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryTool, "tool", "get_graph_health", "Tool name, e.g. semantic_search")
	queryCmd.Flags().StringVar(&queryArgs, "args", "{}", "JSON argument object for the tool")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	wd, _ := os.Getwd()
	e, err := newEngine(ctx, cfg, wd)
	if err != nil {
		return err
	}
	defer e.Close()

	registry := newRegistry(e)
	result, err := registry.Execute(ctx, queryTool, json.RawMessage(queryArgs))
	if err != nil && result == nil {
		return fmt.Errorf("execute %s: %w", queryTool, err)
	}

	out, marshalErr := json.MarshalIndent(result, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("marshal result: %w", marshalErr)
	}
	fmt.Println(string(out))
	return nil
}
