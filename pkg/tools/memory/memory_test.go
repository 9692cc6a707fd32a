// Package memory provides the memory tool implementation
package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/smartystreets/goconvey/convey"
	memstore "github.com/theapemachine/semem-store/pkg/memory"
	"github.com/theapemachine/semem-store/pkg/sparql"
)

// MockStore implements the Store interface for testing
type MockStore struct {
	queries   []string
	updates   []string
	verified  int
	results   *sparql.Results
	shortTerm []memstore.Interaction
	longTerm  []memstore.Interaction
	err       error
}

func (m *MockStore) Verify(ctx context.Context) error {
	m.verified++
	return m.err
}

func (m *MockStore) Query(ctx context.Context, query string) (*sparql.Results, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.queries = append(m.queries, query)
	return m.results, nil
}

func (m *MockStore) Update(ctx context.Context, update string) error {
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, update)
	return nil
}

func (m *MockStore) LoadHistory(ctx context.Context) ([]memstore.Interaction, []memstore.Interaction, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.shortTerm, m.longTerm, nil
}

// MockCachedStore adds the CacheManager methods
type MockCachedStore struct {
	MockStore
	invalidated int
	removed     int
	stats       memstore.CacheStats
}

func (m *MockCachedStore) InvalidateCache() {
	m.invalidated++
}

func (m *MockCachedStore) CleanupCache() int {
	return m.removed
}

func (m *MockCachedStore) CacheStats() memstore.CacheStats {
	return m.stats
}

// Helper function for creating mock request
func newMockRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments,omitempty"`
			Meta      *struct {
				ProgressToken mcp.ProgressToken `json:"progressToken,omitempty"`
			} `json:"_meta,omitempty"`
		}{
			Name:      "memory",
			Arguments: args,
		},
	}
}

func resultText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}

	if text, ok := result.Content[0].(mcp.TextContent); ok {
		return text.Text
	}

	return ""
}

// TestNew tests the New constructor
func TestNew(t *testing.T) {
	Convey("Given a store", t, func() {
		Convey("When creating a new memory tool", func() {
			tool := New(&MockStore{})

			Convey("It should have the correct name", func() {
				So(tool, ShouldNotBeNil)
				So(tool.Name(), ShouldEqual, "memory")
				So(tool.Handle().Name, ShouldEqual, "memory")
			})

			Convey("It should not expose cache operations", func() {
				So(tool.cache, ShouldBeNil)
			})
		})

		Convey("When the store caches", func() {
			tool := New(&MockCachedStore{})

			Convey("It should pick up the cache manager", func() {
				So(tool.cache, ShouldNotBeNil)
			})
		})
	})
}

// TestValidate tests the validate method
func TestValidate(t *testing.T) {
	Convey("Given a memory tool over an uncached store", t, func() {
		tool := New(&MockStore{})

		Convey("When validating with missing operation", func() {
			ok, err := tool.validate(newMockRequest(map[string]interface{}{}))

			Convey("It should return an error", func() {
				So(ok, ShouldBeFalse)
				So(err.Error(), ShouldEqual, "operation is required")
			})
		})

		Convey("When validating query without sparql", func() {
			ok, err := tool.validate(newMockRequest(map[string]interface{}{
				"operation": "query",
				"sparql":    "   ",
			}))

			Convey("It should return an error", func() {
				So(ok, ShouldBeFalse)
				So(err.Error(), ShouldEqual, "sparql is required for query")
			})
		})

		Convey("When validating a cache operation", func() {
			ok, err := tool.validate(newMockRequest(map[string]interface{}{
				"operation": "stats",
			}))

			Convey("It should report that caching is unavailable", func() {
				So(ok, ShouldBeFalse)
				So(err.Error(), ShouldContainSubstring, "does not cache")
			})
		})

		Convey("When validating a negative limit", func() {
			ok, err := tool.validate(newMockRequest(map[string]interface{}{
				"operation": "history",
				"limit":     float64(-1),
			}))

			Convey("It should return an error", func() {
				So(ok, ShouldBeFalse)
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When validating a well formed update", func() {
			ok, err := tool.validate(newMockRequest(map[string]interface{}{
				"operation": "update",
				"sparql":    "INSERT DATA { <a> <b> <c> }",
			}))

			Convey("It should validate successfully", func() {
				So(ok, ShouldBeTrue)
				So(err, ShouldBeNil)
			})
		})
	})
}

// TestHandler tests the Handler method
func TestHandler(t *testing.T) {
	Convey("Given a memory tool over a cached store", t, func() {
		ctx := context.Background()
		store := &MockCachedStore{}
		tool := New(store)

		Convey("When running a query", func() {
			store.results = &sparql.Results{
				Vars:     []string{"s"},
				Bindings: []sparql.Binding{{"s": {Type: "uri", Value: "http://example.org/x"}}},
			}

			result, err := tool.Handler(ctx, newMockRequest(map[string]interface{}{
				"operation": "query",
				"sparql":    "SELECT ?s WHERE { ?s ?p ?o }",
			}))

			Convey("It should return the bindings as JSON", func() {
				So(err, ShouldBeNil)
				So(result.IsError, ShouldBeFalse)
				So(resultText(result), ShouldContainSubstring, `"value":"http://example.org/x"`)
				So(store.queries, ShouldResemble, []string{"SELECT ?s WHERE { ?s ?p ?o }"})
			})
		})

		Convey("When running an update", func() {
			result, err := tool.Handler(ctx, newMockRequest(map[string]interface{}{
				"operation": "update",
				"sparql":    "CLEAR SILENT GRAPH <g>",
			}))

			Convey("It should pass it through", func() {
				So(err, ShouldBeNil)
				So(resultText(result), ShouldEqual, "Update applied")
				So(store.updates, ShouldHaveLength, 1)
			})
		})

		Convey("When the store fails", func() {
			store.err = errors.New("endpoint unreachable")

			result, err := tool.Handler(ctx, newMockRequest(map[string]interface{}{
				"operation": "update",
				"sparql":    "CLEAR SILENT GRAPH <g>",
			}))

			Convey("It should return an error result, not a Go error", func() {
				So(err, ShouldBeNil)
				So(result.IsError, ShouldBeTrue)
				So(resultText(result), ShouldContainSubstring, "endpoint unreachable")
			})
		})

		Convey("When listing history", func() {
			for i := int64(1); i <= 3; i++ {
				store.shortTerm = append(store.shortTerm, memstore.Interaction{
					ID: "s" + string(rune('0'+i)), Prompt: "p", Output: "o", Timestamp: i * 1000,
				})
			}
			store.longTerm = []memstore.Interaction{{ID: "l1", Concepts: []string{"alpha"}}}

			result, err := tool.Handler(ctx, newMockRequest(map[string]interface{}{
				"operation": "history",
				"limit":     float64(2),
			}))
			text := resultText(result)

			Convey("It should show counts and the newest entries", func() {
				So(err, ShouldBeNil)
				So(text, ShouldStartWith, "3 short-term and 1 long-term interactions")
				So(text, ShouldNotContainSubstring, "s1:")
				So(text, ShouldContainSubstring, "s2:")
				So(text, ShouldContainSubstring, "s3:")
				So(text, ShouldContainSubstring, "<LONG_TERM_MEMORIES>")
				So(text, ShouldContainSubstring, "(alpha)")
			})
		})

		Convey("When listing history with a zero limit", func() {
			for i := int64(1); i <= 3; i++ {
				store.shortTerm = append(store.shortTerm, memstore.Interaction{
					ID: "s" + string(rune('0'+i)), Prompt: "p", Output: "o", Timestamp: i * 1000,
				})
			}

			result, err := tool.Handler(ctx, newMockRequest(map[string]interface{}{
				"operation": "history",
				"limit":     float64(0),
			}))
			text := resultText(result)

			Convey("It should show every entry", func() {
				So(err, ShouldBeNil)
				So(result.IsError, ShouldBeFalse)
				So(text, ShouldContainSubstring, "<SHORT_TERM_MEMORIES>")
				So(text, ShouldContainSubstring, "s1:")
				So(text, ShouldContainSubstring, "s2:")
				So(text, ShouldContainSubstring, "s3:")
			})
		})

		Convey("When verifying", func() {
			result, _ := tool.Handler(ctx, newMockRequest(map[string]interface{}{
				"operation": "verify",
			}))

			Convey("It should verify the graph", func() {
				So(resultText(result), ShouldEqual, "Graph verified")
				So(store.verified, ShouldEqual, 1)
			})
		})

		Convey("When managing the cache", func() {
			store.removed = 4
			store.stats = memstore.CacheStats{Entries: 2, Hits: 3, Misses: 1, HitRate: 0.75}

			invalidate, _ := tool.Handler(ctx, newMockRequest(map[string]interface{}{"operation": "invalidate"}))
			cleanup, _ := tool.Handler(ctx, newMockRequest(map[string]interface{}{"operation": "cleanup"}))
			stats, _ := tool.Handler(ctx, newMockRequest(map[string]interface{}{"operation": "stats"}))

			Convey("It should delegate to the cache manager", func() {
				So(resultText(invalidate), ShouldEqual, "Cache invalidated")
				So(store.invalidated, ShouldEqual, 1)
				So(resultText(cleanup), ShouldEqual, "Removed 4 cache entries")
				So(resultText(stats), ShouldContainSubstring, `"hitRate":0.75`)
			})
		})

		Convey("When the operation is unknown", func() {
			result, err := tool.Handler(ctx, newMockRequest(map[string]interface{}{
				"operation": "forget",
			}))

			Convey("It should return an error result", func() {
				So(err, ShouldBeNil)
				So(result.IsError, ShouldBeTrue)
				So(resultText(result), ShouldEqual, "Invalid operation: forget")
			})
		})
	})
}
