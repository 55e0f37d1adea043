package retriever

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/applymate/agent-go/core"
)

// ChromemRetriever indexes and searches documents with chromem-go, an
// embedded pure-Go vector database. Each user namespace gets its own
// collection, so cross-user leakage is structurally impossible.
type ChromemRetriever struct {
	db          *chromem.DB
	embedder    Embedder
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

var _ Retriever = (*ChromemRetriever)(nil)

// NewChromem creates an in-memory chromem-backed retriever.
func NewChromem(embedder Embedder) (*ChromemRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("nil embedder")
	}
	return &ChromemRetriever{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the namespace's collection, creating it on first
// use. create=false avoids materializing collections for read-only
// queries against namespaces that were never populated.
func (r *ChromemRetriever) collection(namespace string, create bool) (*chromem.Collection, error) {
	name := "ns_" + namespace

	r.mu.RLock()
	col, ok := r.collections[namespace]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}
	if !create {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if col, ok := r.collections[namespace]; ok {
		return col, nil
	}

	col, err := r.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	r.collections[namespace] = col
	return col, nil
}

// Index embeds and stores documents into the namespace. It is the entry
// point for the external population job.
func (r *ChromemRetriever) Index(ctx context.Context, namespace string, docs []Document) error {
	if strings.TrimSpace(namespace) == "" {
		return fmt.Errorf("missing namespace")
	}
	col, err := r.collection(namespace, true)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		embedding, err := r.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", doc.ID, err)
		}
		err = col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Embedding: embedding,
			Metadata: map[string]string{
				"source_type": doc.SourceType,
				"source_id":   doc.SourceID,
			},
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}
	log.Printf("[RETRIEVER] Indexed %d documents into namespace %s", len(docs), namespace)
	return nil
}

// Search embeds the query and returns the top-k snippets for the
// namespace. An unpopulated namespace returns an empty result.
func (r *ChromemRetriever) Search(ctx context.Context, namespace, query string, k int) ([]core.RetrievedDocument, error) {
	if k <= 0 {
		k = 4
	}
	col, err := r.collection(namespace, false)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, nil
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// chromem rejects nResults larger than the collection; shrink until
	// the query fits, bottoming out at an empty result.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, nil, nil)
		if err == nil {
			break
		}
		if !isTooFewDocsError(err) {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		if limit == 1 {
			return nil, nil
		}
	}

	out := make([]core.RetrievedDocument, 0, len(results))
	for _, res := range results {
		out = append(out, core.RetrievedDocument{
			Text:       res.Content,
			SourceType: res.Metadata["source_type"],
			SourceID:   res.Metadata["source_id"],
			Score:      res.Similarity,
		})
	}
	return out, nil
}

func isTooFewDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
