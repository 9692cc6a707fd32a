// Package memory provides the memory tool implementation
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	memstore "github.com/theapemachine/semem-store/pkg/memory"
	"github.com/theapemachine/semem-store/pkg/sparql"
	"github.com/theapemachine/semem-store/pkg/tools"
)

const defaultHistoryLimit = 10

// Store is the part of a SPARQL store the tool drives.
type Store interface {
	Verify(ctx context.Context) error
	Query(ctx context.Context, query string) (*sparql.Results, error)
	Update(ctx context.Context, update string) error
	LoadHistory(ctx context.Context) (shortTerm []memstore.Interaction, longTerm []memstore.Interaction, err error)
}

// CacheManager is implemented by stores that cache query results.
type CacheManager interface {
	InvalidateCache()
	CleanupCache() int
	CacheStats() memstore.CacheStats
}

// Tool implements the memory management tool
type Tool struct {
	*tools.BaseTool
	store Store
	cache CacheManager
}

// New creates a new memory tool instance. Cache operations are available
// when store also implements CacheManager.
func New(store Store) *Tool {
	tool := &Tool{
		BaseTool: tools.NewBaseTool(mcp.NewTool(
			"memory",
			mcp.WithDescription("Query and maintain the semantic memory held in a SPARQL store"),
			mcp.WithString(
				"operation",
				mcp.Required(),
				mcp.Description("The operation to perform (query, update, history, verify, invalidate, cleanup, stats)"),
			),
			mcp.WithString(
				"sparql",
				mcp.Description("The SPARQL query (for query) or SPARQL Update (for update) to run"),
			),
			mcp.WithNumber(
				"limit",
				mcp.Description("How many of the most recent interactions per memory type to return (for history, 0 returns all)"),
			),
		)),
		store: store,
	}

	if cache, ok := store.(CacheManager); ok {
		tool.cache = cache
	}

	return tool
}

// validate checks if the request contains valid parameters
func (tool *Tool) validate(request mcp.CallToolRequest) (ok bool, err error) {
	op, err := tools.StringParam(request, "operation", true)
	if err != nil || op == "" {
		return false, fmt.Errorf("operation is required")
	}

	switch op {
	case "query", "update":
		statement, err := tools.StringParam(request, "sparql", false)
		if err != nil {
			return false, err
		}

		if strings.TrimSpace(statement) == "" {
			return false, fmt.Errorf("sparql is required for %s", op)
		}
	case "invalidate", "cleanup", "stats":
		if tool.cache == nil {
			return false, fmt.Errorf("%s: %w: the store does not cache", op, tools.ErrNotImplemented)
		}
	}

	limit, err := tools.IntParam(request, "limit", defaultHistoryLimit)
	if err != nil {
		return false, err
	}

	if limit < 0 {
		return false, fmt.Errorf("%w: limit must not be negative", tools.ErrInvalidParams)
	}

	return true, nil
}

// Handler processes memory tool requests
func (tool *Tool) Handler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		ok  bool
		err error
	)

	if ok, err = tool.validate(request); !ok {
		return tools.NewErrorResult(err), nil
	}

	statement, _ := tools.StringParam(request, "sparql", false)

	switch op, _ := tools.StringParam(request, "operation", true); op {
	case "query":
		return tool.handleQuery(ctx, statement)
	case "update":
		return tool.handleUpdate(ctx, statement)
	case "history":
		limit, _ := tools.IntParam(request, "limit", defaultHistoryLimit)
		return tool.handleHistory(ctx, limit)
	case "verify":
		if err := tool.store.Verify(ctx); err != nil {
			return tools.NewErrorResult(err), nil
		}
		return tools.NewTextResult("Graph verified"), nil
	case "invalidate":
		tool.cache.InvalidateCache()
		return tools.NewTextResult("Cache invalidated"), nil
	case "cleanup":
		return tools.NewTextResult(fmt.Sprintf("Removed %d cache entries", tool.cache.CleanupCache())), nil
	case "stats":
		return tool.handleStats()
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Invalid operation: %s", op)), nil
	}
}

func (tool *Tool) handleQuery(ctx context.Context, query string) (*mcp.CallToolResult, error) {
	results, err := tool.store.Query(ctx, query)
	if err != nil {
		return tools.NewErrorResult(fmt.Errorf("failed to run query: %w", err)), nil
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return tools.NewErrorResult(err), nil
	}

	return tools.NewTextResult(string(payload)), nil
}

func (tool *Tool) handleUpdate(ctx context.Context, update string) (*mcp.CallToolResult, error) {
	if err := tool.store.Update(ctx, update); err != nil {
		return tools.NewErrorResult(fmt.Errorf("failed to run update: %w", err)), nil
	}

	return tools.NewTextResult("Update applied"), nil
}

// handleHistory lists the newest interactions of each type, or all of them
// when limit is 0. History comes back ordered by timestamp, so the newest
// are at the tail.
func (tool *Tool) handleHistory(ctx context.Context, limit int) (*mcp.CallToolResult, error) {
	shortTerm, longTerm, err := tool.store.LoadHistory(ctx)
	if err != nil {
		return tools.NewErrorResult(err), nil
	}

	results := []string{
		fmt.Sprintf("%d short-term and %d long-term interactions", len(shortTerm), len(longTerm)),
	}

	for _, bucket := range []struct {
		tag          string
		interactions []memstore.Interaction
	}{
		{"SHORT_TERM_MEMORIES", shortTerm},
		{"LONG_TERM_MEMORIES", longTerm},
	} {
		recent := bucket.interactions
		if limit > 0 && len(recent) > limit {
			recent = recent[len(recent)-limit:]
		}

		if len(recent) == 0 {
			continue
		}

		results = append(results, "<"+bucket.tag+">")
		for _, interaction := range recent {
			results = append(results, "\t"+formatInteraction(interaction))
		}
		results = append(results, "</"+bucket.tag+">")
	}

	return tools.NewTextResult(strings.Join(results, "\n")), nil
}

func (tool *Tool) handleStats() (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(tool.cache.CacheStats())
	if err != nil {
		return tools.NewErrorResult(err), nil
	}

	return tools.NewTextResult(string(payload)), nil
}

func formatInteraction(interaction memstore.Interaction) string {
	when := time.UnixMilli(interaction.Timestamp).UTC().Format(time.RFC3339)
	line := fmt.Sprintf("[%s] %s: %q -> %q", when, interaction.ID, interaction.Prompt, interaction.Output)

	if len(interaction.Concepts) > 0 {
		line += " (" + strings.Join(interaction.Concepts, ", ") + ")"
	}

	return line
}

var _ tools.Tool = (*Tool)(nil)
