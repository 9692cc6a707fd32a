package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	memoryTool "github.com/theapemachine/semem-store/pkg/tools/memory"
)

var historyLimit int

// serveCmd runs the MCP server over stdio
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory tool over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(cmd.Context())

		mcpServer := server.NewMCPServer(
			"semem",
			"1.0.0",
			server.WithResourceCapabilities(false, false),
			server.WithLogging(),
		)

		registry := NewToolRegistry(mcpServer)
		registry.RegisterTool(memoryTool.New(store))

		logger.Info("Server started, waiting for requests...", "tools", len(registry.tools))

		if err := server.ServeStdio(mcpServer); err != nil {
			return fmt.Errorf("server error: %w", err)
		}

		logger.Info("Server shutdown complete")
		return nil
	},
}

// verifyCmd ensures the history graph exists
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Create the history graph if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		if err := store.Verify(ctx); err != nil {
			return err
		}

		logger.Info("graph verified", "graph", store.GraphName())
		return nil
	},
}

// queryCmd runs a read query and prints the results document
var queryCmd = &cobra.Command{
	Use:   "query [sparql]",
	Short: "Run a SELECT or ASK query and print the JSON results",
	Long: `Runs a read query against the query endpoint.

Example:
  semem query 'SELECT * WHERE { GRAPH ?g { ?s ?p ?o } } LIMIT 10'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		results, err := store.Query(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		return printJSON(results)
	},
}

// updateCmd runs a SPARQL Update
var updateCmd = &cobra.Command{
	Use:   "update [sparql]",
	Short: "Run a SPARQL Update against the update endpoint",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		return store.Update(ctx, strings.Join(args, " "))
	},
}

// historyCmd prints the persisted interaction history
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the persisted short-term and long-term memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		shortTerm, longTerm, err := store.LoadHistory(ctx)
		if err != nil {
			return err
		}

		if historyLimit > 0 {
			if len(shortTerm) > historyLimit {
				shortTerm = shortTerm[len(shortTerm)-historyLimit:]
			}
			if len(longTerm) > historyLimit {
				longTerm = longTerm[len(longTerm)-historyLimit:]
			}
		}

		return printJSON(map[string]any{
			"shortTermMemory": shortTerm,
			"longTermMemory":  longTerm,
		})
	},
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
