// Package memory provides interfaces and implementations for memory storage
package memory

import (
	"context"

	"github.com/theapemachine/semem-store/pkg/sparql"
)

// Querier executes a single SPARQL query or update against an endpoint.
type Querier interface {
	ExecuteSparqlQuery(ctx context.Context, query string, endpointURL string) (*sparql.Results, error)
}

// GraphStore defines the interface for graph database operations
type GraphStore interface {
	Querier

	// Verify ensures the target named graph exists
	Verify(ctx context.Context) error

	// Query runs a read query against the query endpoint
	Query(ctx context.Context, query string) (*sparql.Results, error)

	// Update runs a SPARQL Update against the update endpoint
	Update(ctx context.Context, update string) error

	// SaveMemoryToHistory replaces the persisted history with the given memory
	SaveMemoryToHistory(ctx context.Context, memory *MemoryStore) error

	// LoadHistory reads back the short-term and long-term interactions
	LoadHistory(ctx context.Context) (shortTerm []Interaction, longTerm []Interaction, err error)

	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	// Close releases all resources held by the store
	Close(ctx context.Context) error
}

// Endpoint holds the read and write URLs of a SPARQL service.
type Endpoint struct {
	Query  string
	Update string
}

// MemoryType classifies an interaction into one of the two history buckets.
type MemoryType string

const (
	ShortTerm MemoryType = "short-term"
	LongTerm  MemoryType = "long-term"
)

// Interaction is one prompt/output exchange together with its embedding.
type Interaction struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Output      string    `json:"output"`
	Embedding   []float64 `json:"embedding"`
	Timestamp   int64     `json:"timestamp"`
	AccessCount int       `json:"accessCount"`
	Concepts    []string  `json:"concepts"`
	DecayFactor float64   `json:"decayFactor"`
}

// MemoryStore is the in-process view of the history that gets persisted.
type MemoryStore struct {
	ShortTermMemory []Interaction
	LongTermMemory  []Interaction
}

var (
	_ GraphStore = (*SPARQLStore)(nil)
	_ GraphStore = (*CachedSPARQLStore)(nil)
)
