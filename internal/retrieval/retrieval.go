package retrieval

import (
	"context"
	"fmt"
	"strings"

	"village-assist/internal/embeddings"
	"village-assist/internal/store"
)

// Retriever returns up to k context snippets relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// StoreRetriever embeds the query and runs a nearest-neighbour search over
// chunks of ready documents.
type StoreRetriever struct {
	embedder embeddings.Embedder
	store    store.Store
}

// NewStoreRetriever wires an embedder to a vector-capable store.
func NewStoreRetriever(e embeddings.Embedder, s store.Store) *StoreRetriever {
	return &StoreRetriever{embedder: e, store: s}
}

func (r *StoreRetriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.store.TopK(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	out := make([]string, 0, len(results))
	for _, res := range results {
		if t := strings.TrimSpace(res.Chunk.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// None is a Retriever that never finds context.
type None struct{}

func (None) Retrieve(context.Context, string, int) ([]string, error) { return nil, nil }
