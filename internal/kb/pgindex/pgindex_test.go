package pgindex_test

import (
	"context"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/linnemanlabs/intake/internal/kb"
	"github.com/linnemanlabs/intake/internal/kb/pgindex"
	"github.com/linnemanlabs/intake/internal/postgres"
)

func openIndex(t *testing.T) *pgindex.Index {
	t.Helper()
	dsn := os.Getenv("INTAKE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("INTAKE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	idx, err := pgindex.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgindex.New: %v", err)
	}
	return idx
}

// unitVector returns a 768-dim embedding that is zero except at pos.
func unitVector(pos int) []float32 {
	v := make([]float32, 768)
	v[pos] = 1
	return v
}

func randomID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 12)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return "test-" + string(b)
}

func TestAddAndSearch(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	near := kb.Source{ID: randomID(), Title: "VPN troubleshooting", Content: "Restart the client.", URL: "https://kb/vpn"}
	far := kb.Source{ID: randomID(), Title: "Printer setup", Content: "Install the driver."}

	if err := idx.Add(ctx, near, unitVector(0)); err != nil {
		t.Fatalf("Add near: %v", err)
	}
	if err := idx.Add(ctx, far, unitVector(1)); err != nil {
		t.Fatalf("Add far: %v", err)
	}

	got, err := idx.Search(ctx, unitVector(0), 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("got %d results, want >= 2", len(got))
	}
	if got[0].ID != near.ID {
		t.Errorf("first result = %s, want %s", got[0].ID, near.ID)
	}
	if got[0].Score < 0.999 {
		t.Errorf("identical vector score = %v, want ~1.0", got[0].Score)
	}
	if got[0].URL != near.URL {
		t.Errorf("URL = %q, want %q", got[0].URL, near.URL)
	}
}

func TestAddUpsert(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	id := randomID()
	doc := kb.Source{ID: id, Title: "first", Content: "v1"}
	if err := idx.Add(ctx, doc, unitVector(2)); err != nil {
		t.Fatalf("Add initial: %v", err)
	}
	doc.Title = "second"
	doc.Content = "v2"
	if err := idx.Add(ctx, doc, unitVector(2)); err != nil {
		t.Fatalf("Add update: %v", err)
	}

	got, err := idx.Search(ctx, unitVector(2), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Title != "second" || got[0].Content != "v2" {
		t.Errorf("upsert not applied: %+v", got[0])
	}
}

func TestCount(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	before, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if err := idx.Add(ctx, kb.Source{ID: randomID(), Title: "t", Content: "c"}, unitVector(3)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	after, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if after != before+1 {
		t.Errorf("Count = %d, want %d", after, before+1)
	}
}

func TestSearchLimit(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	for i := range 3 {
		doc := kb.Source{ID: randomID(), Title: "limit", Content: "c"}
		if err := idx.Add(ctx, doc, unitVector(4+i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := idx.Search(ctx, unitVector(4), 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) > 2 {
		t.Errorf("got %d results, want <= 2", len(got))
	}
}
