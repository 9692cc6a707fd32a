package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/theapemachine/semem-store/pkg/sparql"
	"github.com/tidwall/gjson"
)

const (
	sememNamespace    = "http://purl.org/stuff/semem/"
	interactionPrefix = sememNamespace + "interaction/"
)

// ValidateEmbedding checks vector against the configured dimension and
// rejects non-finite elements.
func (store *SPARQLStore) ValidateEmbedding(vector []float64) error {
	if len(vector) != store.dimension {
		return &DimensionMismatchError{Expected: store.dimension, Actual: len(vector)}
	}

	for i, v := range vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidValueError{Index: i, Value: v}
		}
	}

	return nil
}

// ValidateEmbeddingValues validates an untyped vector, as decoded from JSON,
// and converts it to []float64.
func (store *SPARQLStore) ValidateEmbeddingValues(values []any) ([]float64, error) {
	if len(values) != store.dimension {
		return nil, &DimensionMismatchError{Expected: store.dimension, Actual: len(values)}
	}

	vector := make([]float64, len(values))

	for i, value := range values {
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &InvalidValueError{Index: i, Value: value}
		}
		vector[i] = f
	}

	return vector, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// SaveMemoryToHistory replaces the persisted history with the contents of
// memory in one batched update. Interactions without an ID are assigned one.
// Unless the caller already holds a transaction, the write runs in its own.
func (store *SPARQLStore) SaveMemoryToHistory(ctx context.Context, memory *MemoryStore) error {
	if memory == nil {
		return &PersistenceError{Op: "save memory history", Err: errors.New("nil memory store")}
	}

	for _, bucket := range [][]Interaction{memory.ShortTermMemory, memory.LongTermMemory} {
		for i := range bucket {
			if bucket[i].ID == "" {
				bucket[i].ID = uuid.NewString()
			}

			if err := store.ValidateEmbedding(bucket[i].Embedding); err != nil {
				return fmt.Errorf("interaction %s: %w", bucket[i].ID, err)
			}
		}
	}

	update, err := store.historyUpdate(memory)
	if err != nil {
		return &PersistenceError{Op: "serialize memory history", Err: err}
	}

	save := func(ctx context.Context) error {
		if _, err := store.querier.ExecuteSparqlQuery(ctx, update, store.endpoint.Update); err != nil {
			return &PersistenceError{Op: "save memory history", Err: err}
		}
		return nil
	}

	if store.InTransaction() {
		err = save(ctx)
	} else {
		err = store.WithTransaction(ctx, save)
	}

	if err != nil {
		var pe *PersistenceError
		if !errors.As(err, &pe) {
			err = &PersistenceError{Op: "save memory history", Err: err}
		}
		return err
	}

	store.logger.Info(
		"saved memory history",
		"graph", store.graphName,
		"shortTerm", len(memory.ShortTermMemory),
		"longTerm", len(memory.LongTermMemory),
	)

	return nil
}

// historyUpdate builds CLEAR + INSERT DATA for the whole memory store.
func (store *SPARQLStore) historyUpdate(memory *MemoryStore) (string, error) {
	graph := sparql.IRI(store.graphName)

	var b strings.Builder
	fmt.Fprintf(&b, "CLEAR SILENT GRAPH %s", graph)

	if len(memory.ShortTermMemory)+len(memory.LongTermMemory) == 0 {
		return b.String(), nil
	}

	fmt.Fprintf(&b, " ;\nPREFIX semem: <%s>\nINSERT DATA {\n  GRAPH %s {\n", sememNamespace, graph)

	for _, bucket := range []struct {
		kind         MemoryType
		interactions []Interaction
	}{
		{ShortTerm, memory.ShortTermMemory},
		{LongTerm, memory.LongTermMemory},
	} {
		for _, interaction := range bucket.interactions {
			if err := writeInteraction(&b, interaction, bucket.kind); err != nil {
				return "", fmt.Errorf("interaction %s: %w", interaction.ID, err)
			}
		}
	}

	b.WriteString("  }\n}")
	return b.String(), nil
}

func writeInteraction(b *strings.Builder, interaction Interaction, kind MemoryType) error {
	embedding, err := json.Marshal(interaction.Embedding)
	if err != nil {
		return err
	}

	concepts := interaction.Concepts
	if concepts == nil {
		concepts = []string{}
	}

	conceptsJSON, err := json.Marshal(concepts)
	if err != nil {
		return err
	}

	fmt.Fprintf(b, "    %s a semem:Interaction ;\n", sparql.IRI(interactionPrefix+url.PathEscape(interaction.ID)))
	fmt.Fprintf(b, "      semem:id %s ;\n", sparql.Literal(interaction.ID))
	fmt.Fprintf(b, "      semem:prompt %s ;\n", sparql.Literal(interaction.Prompt))
	fmt.Fprintf(b, "      semem:output %s ;\n", sparql.Literal(interaction.Output))
	fmt.Fprintf(b, "      semem:embedding %s ;\n", sparql.Literal(string(embedding)))
	fmt.Fprintf(b, "      semem:timestamp %s ;\n", sparql.IntegerLiteral(interaction.Timestamp))
	fmt.Fprintf(b, "      semem:accessCount %s ;\n", sparql.IntegerLiteral(int64(interaction.AccessCount)))
	fmt.Fprintf(b, "      semem:concepts %s ;\n", sparql.Literal(string(conceptsJSON)))
	fmt.Fprintf(b, "      semem:decayFactor %s ;\n", sparql.DoubleLiteral(interaction.DecayFactor))
	fmt.Fprintf(b, "      semem:memoryType %s .\n", sparql.Literal(string(kind)))

	return nil
}

func (store *SPARQLStore) historyQuery() string {
	return fmt.Sprintf(`PREFIX semem: <%s>
SELECT ?id ?prompt ?output ?embedding ?timestamp ?accessCount ?concepts ?decayFactor ?memoryType
WHERE {
  GRAPH %s {
    ?interaction a semem:Interaction ;
      semem:id ?id ;
      semem:prompt ?prompt ;
      semem:output ?output ;
      semem:embedding ?embedding ;
      semem:timestamp ?timestamp ;
      semem:memoryType ?memoryType .
    OPTIONAL { ?interaction semem:accessCount ?accessCount }
    OPTIONAL { ?interaction semem:concepts ?concepts }
    OPTIONAL { ?interaction semem:decayFactor ?decayFactor }
  }
}
ORDER BY ?timestamp`, sememNamespace, sparql.IRI(store.graphName))
}

// LoadHistory reads the persisted interactions back, split by memory type.
// Rows that cannot be decoded are skipped and logged.
func (store *SPARQLStore) LoadHistory(ctx context.Context) (shortTerm []Interaction, longTerm []Interaction, err error) {
	results, err := store.querier.ExecuteSparqlQuery(ctx, store.historyQuery(), store.endpoint.Query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load memory history: %w", err)
	}

	shortTerm = []Interaction{}
	longTerm = []Interaction{}

	for _, binding := range results.Bindings {
		interaction, err := store.decodeInteraction(binding)
		if err != nil {
			store.logger.Warn("skipping unreadable interaction", "id", binding.Value("id"), "error", err)
			continue
		}

		if MemoryType(binding.Value("memoryType")) == LongTerm {
			longTerm = append(longTerm, interaction)
		} else {
			shortTerm = append(shortTerm, interaction)
		}
	}

	store.logger.Debug("loaded memory history", "shortTerm", len(shortTerm), "longTerm", len(longTerm))
	return shortTerm, longTerm, nil
}

func (store *SPARQLStore) decodeInteraction(binding sparql.Binding) (Interaction, error) {
	interaction := Interaction{
		ID:          binding.Value("id"),
		Prompt:      binding.Value("prompt"),
		Output:      binding.Value("output"),
		Concepts:    []string{},
		DecayFactor: 1.0,
	}

	raw := binding.Value("embedding")
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsArray() {
		return interaction, fmt.Errorf("embedding is not a JSON array")
	}

	var values []any
	for _, v := range gjson.Parse(raw).Array() {
		values = append(values, v.Value())
	}

	embedding, err := store.ValidateEmbeddingValues(values)
	if err != nil {
		return interaction, err
	}
	interaction.Embedding = embedding

	if interaction.Timestamp, err = strconv.ParseInt(binding.Value("timestamp"), 10, 64); err != nil {
		return interaction, fmt.Errorf("timestamp: %w", err)
	}

	if v := binding.Value("accessCount"); v != "" {
		if interaction.AccessCount, err = strconv.Atoi(v); err != nil {
			return interaction, fmt.Errorf("accessCount: %w", err)
		}
	}

	if v := binding.Value("decayFactor"); v != "" {
		if interaction.DecayFactor, err = strconv.ParseFloat(v, 64); err != nil {
			return interaction, fmt.Errorf("decayFactor: %w", err)
		}
	}

	if v := binding.Value("concepts"); v != "" {
		parsed := gjson.Parse(v)
		if !gjson.Valid(v) || !parsed.IsArray() {
			return interaction, fmt.Errorf("concepts is not a JSON array")
		}

		for _, c := range parsed.Array() {
			interaction.Concepts = append(interaction.Concepts, c.String())
		}
	}

	return interaction, nil
}
