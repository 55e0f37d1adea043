package mock

import (
	"context"
	"math"
	"testing"
)

func TestEmbedIsDeterministic(t *testing.T) {
	e := New(64)
	a, err := e.Embed(context.Background(), "golang backend roles")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), "golang backend roles")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEmbedDistinctTextsDiffer(t *testing.T) {
	e := New(64)
	a, _ := e.Embed(context.Background(), "first")
	b, _ := e.Embed(context.Background(), "second")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct texts produced identical embeddings")
	}
}

func TestEmbedProducesUnitVector(t *testing.T) {
	e := New(0)
	vec, err := e.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 384 {
		t.Fatalf("expected default 384 dimensions, got %d", len(vec))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-3 {
		t.Errorf("expected unit vector, norm is %f", math.Sqrt(norm))
	}
}
