package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/semem-store/pkg/sparql"
)

const (
	contentTypeQuery  = "application/sparql-query"
	contentTypeUpdate = "application/sparql-update"
	acceptResults     = "application/sparql-results+json"

	// Error bodies are kept for diagnostics, bounded so a misbehaving
	// endpoint cannot bloat error values.
	maxErrorBody = 4096
)

// SPARQLStore implements the GraphStore interface for a SPARQL 1.1 endpoint
type SPARQLStore struct {
	endpoint  Endpoint
	user      string
	password  string
	graphName string
	dimension int
	client    *http.Client
	logger    *log.Logger

	// querier is what every operation routes its statements through. It is
	// the store itself unless a caching layer has interposed.
	querier Querier

	txMu          sync.Mutex
	inTransaction bool
	snapshotGraph string
	txEpoch       uint64
}

// NewSPARQLStore creates a new SPARQL graph store
func NewSPARQLStore(endpoint Endpoint, opts Options) (*SPARQLStore, error) {
	for name, raw := range map[string]string{"query": endpoint.Query, "update": endpoint.Update} {
		if raw == "" {
			return nil, fmt.Errorf("missing %s endpoint", name)
		}

		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid %s endpoint %q", name, raw)
		}
	}

	opts = opts.withDefaults()

	store := &SPARQLStore{
		endpoint:  endpoint,
		user:      opts.User,
		password:  opts.Password,
		graphName: opts.GraphName,
		dimension: opts.Dimension,
		client:    opts.HTTPClient,
		logger:    opts.Logger,
	}
	store.querier = store

	return store, nil
}

// Endpoint returns the endpoint pair the store talks to.
func (store *SPARQLStore) Endpoint() Endpoint {
	return store.endpoint
}

// GraphName returns the named graph holding the history.
func (store *SPARQLStore) GraphName() string {
	return store.graphName
}

// Dimension returns the configured embedding length.
func (store *SPARQLStore) Dimension() int {
	return store.dimension
}

// Verify ensures the target named graph exists
func (store *SPARQLStore) Verify(ctx context.Context) error {
	statement := "CREATE SILENT GRAPH " + sparql.IRI(store.graphName)

	if _, err := store.querier.ExecuteSparqlQuery(ctx, statement, store.endpoint.Update); err != nil {
		return fmt.Errorf("failed to verify graph %s: %w", store.graphName, err)
	}

	return nil
}

// Query runs a read query against the query endpoint
func (store *SPARQLStore) Query(ctx context.Context, query string) (*sparql.Results, error) {
	return store.querier.ExecuteSparqlQuery(ctx, query, store.endpoint.Query)
}

// Update runs a SPARQL Update against the update endpoint
func (store *SPARQLStore) Update(ctx context.Context, update string) error {
	_, err := store.querier.ExecuteSparqlQuery(ctx, update, store.endpoint.Update)
	return err
}

// ExecuteSparqlQuery sends a single statement to endpointURL. A failure while
// a transaction is active rolls the transaction back before the original
// error is returned.
func (store *SPARQLStore) ExecuteSparqlQuery(ctx context.Context, query string, endpointURL string) (*sparql.Results, error) {
	results, err := store.post(ctx, query, endpointURL)
	if err != nil {
		return nil, store.abort(ctx, err)
	}

	return results, nil
}

// isUpdate decides how a statement is sent. With distinct endpoints the
// target URL decides; with a shared one the statement's form does.
func (store *SPARQLStore) isUpdate(statement string, endpointURL string) bool {
	if store.endpoint.Query != store.endpoint.Update {
		switch endpointURL {
		case store.endpoint.Update:
			return true
		case store.endpoint.Query:
			return false
		}
	}

	return !sparql.IsReadQuery(statement)
}

func (store *SPARQLStore) post(ctx context.Context, statement string, endpointURL string) (*sparql.Results, error) {
	update := store.isUpdate(statement, endpointURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, strings.NewReader(statement))
	if err != nil {
		return nil, &QueryExecutionError{Endpoint: endpointURL, Err: err}
	}

	if update {
		req.Header.Set("Content-Type", contentTypeUpdate)
	} else {
		req.Header.Set("Content-Type", contentTypeQuery)
	}
	req.Header.Set("Accept", acceptResults)

	if store.user != "" {
		req.SetBasicAuth(store.user, store.password)
	}

	resp, err := store.client.Do(req)
	if err != nil {
		return nil, &QueryExecutionError{Endpoint: endpointURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &QueryExecutionError{Endpoint: endpointURL, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}

		return nil, &QueryExecutionError{
			Endpoint:   endpointURL,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	if update {
		return &sparql.Results{}, nil
	}

	results, err := sparql.ParseResults(body)
	if err != nil {
		return nil, &QueryExecutionError{Endpoint: endpointURL, StatusCode: resp.StatusCode, Err: err}
	}

	return results, nil
}

// Close releases all resources held by the store. An open transaction is
// abandoned, not rolled back.
func (store *SPARQLStore) Close(ctx context.Context) error {
	if snapshot, active := store.endTransaction(); active {
		store.logger.Warn("closing store with an open transaction", "graph", store.graphName, "snapshot", snapshot)
	}

	store.client.CloseIdleConnections()
	return nil
}

// IsQueryExecutionError reports whether err carries a failed request.
func IsQueryExecutionError(err error) bool {
	var qe *QueryExecutionError
	return errors.As(err, &qe)
}
