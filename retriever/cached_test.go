package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/applymate/agent-go/core"
)

// countingRetriever records how many searches reach the inner layer.
type countingRetriever struct {
	calls int
	docs  []core.RetrievedDocument
}

func (c *countingRetriever) Search(ctx context.Context, namespace, query string, k int) ([]core.RetrievedDocument, error) {
	c.calls++
	return c.docs, nil
}

func TestCachedServesRepeatsFromCache(t *testing.T) {
	inner := &countingRetriever{docs: []core.RetrievedDocument{{Text: "snippet", SourceID: "d1"}}}
	cached, err := NewCached(inner, 16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()

	ctx := context.Background()
	if _, err := cached.Search(ctx, "alice", "golang roles", 4); err != nil {
		t.Fatal(err)
	}
	cached.Wait()

	docs, err := cached.Search(ctx, "alice", "golang roles", 4)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if len(docs) != 1 || docs[0].SourceID != "d1" {
		t.Errorf("cached result differs: %+v", docs)
	}
}

func TestCachedKeysIncludeNamespaceAndK(t *testing.T) {
	inner := &countingRetriever{}
	cached, err := NewCached(inner, 16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()

	ctx := context.Background()
	queries := []struct {
		ns    string
		query string
		k     int
	}{
		{"alice", "roles", 4},
		{"bob", "roles", 4},
		{"alice", "roles", 8},
	}
	for _, q := range queries {
		if _, err := cached.Search(ctx, q.ns, q.query, q.k); err != nil {
			t.Fatal(err)
		}
		cached.Wait()
	}

	if inner.calls != len(queries) {
		t.Errorf("distinct namespace/k must miss: expected %d inner calls, got %d", len(queries), inner.calls)
	}
}
