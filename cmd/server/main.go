// Command server exposes a semem SPARQL store as an MCP server and as a
// small command line client.
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/theapemachine/semem-store/pkg/config"
	"github.com/theapemachine/semem-store/pkg/memory"
	"github.com/theapemachine/semem-store/pkg/tools"
)

var (
	verbose bool
	timeout time.Duration

	logger *log.Logger
	cfg    *config.Config
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "semem",
	Short: "SPARQL-backed semantic memory store",
	Long: `semem persists interaction history in a SPARQL 1.1 triple store and
serves it to agents over MCP.

Configuration is read from the environment (a .env file is loaded if
present) or from semem.yaml. The endpoint is set with
SPARQL_QUERY_ENDPOINT and SPARQL_UPDATE_ENDPOINT.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg = config.Load()

		logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          "semem",
			ReportTimestamp: true,
		})

		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		if verbose {
			level = log.DebugLevel
		}
		logger.SetLevel(level)

		// Route library output written through the standard logger away
		// from stdout, which belongs to the MCP transport.
		stdlog.SetFlags(0)
		stdlog.SetOutput(&logWriter{logger: logger})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Timeout for one-shot commands")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Only print the newest N interactions per memory type")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore validates the configuration and opens the cached store.
func openStore() (*memory.CachedSPARQLStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := memory.NewCachedSPARQLStore(cfg.Endpoint(), cfg.StoreOptions(logger.WithPrefix("sparql")))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	logger.Debug(
		"store opened",
		"query", cfg.SPARQL.QueryEndpoint,
		"update", cfg.SPARQL.UpdateEndpoint,
		"graph", cfg.SPARQL.Graph,
		"cache", cfg.Cache.Enabled,
	)

	return store, nil
}

// ToolRegistry manages tool registration and lifecycle
type ToolRegistry struct {
	server *server.MCPServer
	tools  map[string]tools.Tool
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry(mcpServer *server.MCPServer) *ToolRegistry {
	return &ToolRegistry{
		server: mcpServer,
		tools:  make(map[string]tools.Tool),
	}
}

// RegisterTool registers a tool with the server
func (r *ToolRegistry) RegisterTool(tool tools.Tool) {
	r.tools[tool.Name()] = tool
	r.server.AddTool(tool.Handle(), tool.Handler)
}

// logWriter forwards standard library log output to the structured logger,
// dropping the noise clients trigger by probing for prompts.
type logWriter struct {
	logger *log.Logger
}

// Write implements io.Writer
func (w *logWriter) Write(bytes []byte) (int, error) {
	msg := strings.TrimSpace(string(bytes))

	if msg == "" || strings.Contains(msg, "Prompts not supported") {
		return len(bytes), nil
	}

	w.logger.Debug(msg)
	return len(bytes), nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
