// Package retriever provides per-user similarity search over embedded
// profile, job, and conversation documents. Namespacing is a hard
// isolation boundary: one user's snippets are never visible to another.
package retriever

import (
	"context"

	"github.com/applymate/agent-go/core"
)

// Retriever answers read-time similarity queries. Index population is an
// external batch job; the agent loop only ever calls Search.
type Retriever interface {
	// Search returns up to k snippets ranked by similarity. An empty or
	// missing namespace yields an empty result, never an error.
	Search(ctx context.Context, namespace, query string, k int) ([]core.RetrievedDocument, error)
}

// Document is a unit of text to index into one user's namespace.
type Document struct {
	ID         string
	Text       string
	SourceType string // "profile", "job", or "conversation"
	SourceID   string
}

// Embedder converts text to vector embeddings. The embedding backend
// itself is an external collaborator; implementations plug in here.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
