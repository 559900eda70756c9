package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/toolserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the tool-call surface as an MCP server over stdio",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	wd, _ := os.Getwd()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go func() {
		for {
			select {
			case <-sigCh:
				logging.Get(logging.CategoryBoot).Info("received shutdown signal, stopping MCP server")
				cancel()
				return
			case <-dumpCh:
				logging.Get(logging.CategoryBoot).Info("diagnostic dump requested (SIGUSR1): see get_metrics tool for live counters")
			}
		}
	}()

	e, err := newEngine(ctx, cfg, wd)
	if err != nil {
		return err
	}
	defer e.Close()

	registry := newRegistry(e)
	server := mcp.NewServer(&mcp.Implementation{Name: "codegraphd", Version: "0.1.0"}, nil)
	registerTools(server, registry)

	logging.Get(logging.CategoryBoot).Info("MCP server ready, listening on stdin/stdout (%d tools)", registry.Count())
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		if ctx.Err() != nil {
			logging.Get(logging.CategoryBoot).Info("MCP server stopped gracefully")
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// registerTools adapts every entry in registry onto the MCP server.
// Each tool's argument object arrives as raw JSON and is forwarded
// unparsed to the Registry, which owns per-tool decoding; the
// response's Go value is returned as-is for the SDK to marshal back
// to the client as structured tool output.
func registerTools(server *mcp.Server, registry *toolserver.Registry) {
	for _, name := range registry.Names() {
		tool := registry.Get(name)
		mcp.AddTool(server, &mcp.Tool{Name: tool.Name, Description: tool.Description},
			func(ctx context.Context, req *mcp.CallToolRequest, input json.RawMessage) (*mcp.CallToolResult, any, error) {
				result, err := registry.Execute(ctx, tool.Name, input)
				if err != nil {
					return &mcp.CallToolResult{IsError: true}, nil, err
				}
				return nil, result.Result, nil
			})
	}
}
