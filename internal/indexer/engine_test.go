package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func sampleDocs() map[int]string {
	return map[int]string{
		0: "apple banana",
		1: "banana cherry",
		2: "apple cherry grape",
	}
}

func newEngine(t *testing.T, incremental bool) *Engine {
	t.Helper()
	e, err := New(context.Background(), docstore.NewMemoryFrom(sampleDocs()), config.IndexerConfig{Incremental: incremental}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func postings(t *testing.T, e *Engine, term string) []int {
	t.Helper()
	var ids []int
	err := e.View(context.Background(), func(_ map[int]string, ix *index.Index) error {
		ids = index.ToIDs(ix.Postings(term))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return ids
}

func TestNewBuildsIndex(t *testing.T) {
	e := newEngine(t, false)
	if got := postings(t, e, "apple"); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("apple = %v", got)
	}
	st := e.Stats()
	if st.Documents != 3 || st.Terms != 4 {
		t.Errorf("stats = %+v", st)
	}
}

func TestMutationsUpdateIndex(t *testing.T) {
	for _, incremental := range []bool{false, true} {
		name := "full"
		if incremental {
			name = "incremental"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, incremental)

			id, err := e.Insert(ctx, "Kiwi apple")
			if err != nil {
				t.Fatal(err)
			}
			if id != 3 {
				t.Errorf("id = %d, want 3", id)
			}
			if got := postings(t, e, "kiwi"); !reflect.DeepEqual(got, []int{3}) {
				t.Errorf("kiwi = %v", got)
			}

			if err := e.Delete(ctx, 0); err != nil {
				t.Fatal(err)
			}
			if got := postings(t, e, "apple"); !reflect.DeepEqual(got, []int{2, 3}) {
				t.Errorf("apple after delete = %v", got)
			}

			notFound, err := e.DeleteBatch(ctx, []int{1, 42})
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(notFound, []int{42}) {
				t.Errorf("notFound = %v", notFound)
			}
			if got := postings(t, e, "banana"); len(got) != 0 {
				t.Errorf("banana = %v, want none", got)
			}
			if e.Stats().Documents != 2 {
				t.Errorf("documents = %d", e.Stats().Documents)
			}
		})
	}
}

func TestIncrementalMatchesRebuild(t *testing.T) {
	ctx := context.Background()
	inc := newEngine(t, true)
	full := newEngine(t, false)
	for _, e := range []*Engine{inc, full} {
		if _, err := e.InsertBatch(ctx, []string{"grape fig", "fig fig apple"}); err != nil {
			t.Fatal(err)
		}
		if _, err := e.DeleteBatch(ctx, []int{2, 3}); err != nil {
			t.Fatal(err)
		}
	}
	var a, b []index.TermEntry
	inc.View(ctx, func(_ map[int]string, ix *index.Index) error { a = ix.Snapshot(); return nil })
	full.View(ctx, func(_ map[int]string, ix *index.Index) error { b = ix.Snapshot(); return nil })
	if !reflect.DeepEqual(a, b) {
		t.Errorf("incremental %v != rebuilt %v", a, b)
	}
}

func TestRebuildPicksUpStoreWrites(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryFrom(sampleDocs())
	e, err := New(ctx, store, config.IndexerConfig{Incremental: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	before := e.Stats().LastBuild
	id, err := store.Insert(ctx, "kiwi apple")
	if err != nil {
		t.Fatal(err)
	}
	if got := postings(t, e, "kiwi"); len(got) != 0 {
		t.Fatalf("kiwi indexed before rebuild: %v", got)
	}
	if err := e.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if got := postings(t, e, "kiwi"); !reflect.DeepEqual(got, []int{id}) {
		t.Errorf("kiwi = %v, want [%d]", got, id)
	}
	if got := postings(t, e, "apple"); !reflect.DeepEqual(got, []int{0, 2, id}) {
		t.Errorf("apple = %v", got)
	}
	st := e.Stats()
	if st.Documents != 4 || st.LastBuild.Before(before) {
		t.Errorf("stats = %+v", st)
	}
}

func TestInsertValidation(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
	}{
		{"empty", []string{""}},
		{"whitespace", []string{"  \n\t"}},
		{"invalid utf8", []string{"\xff\xfe"}},
		{"too large", []string{strings.Repeat("a", MaxContentBytes+1)}},
		{"one bad in batch", []string{"ok", ""}},
		{"no documents", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, false)
			_, err := e.InsertBatch(ctx, tt.texts)
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if e.Stats().Documents != 3 {
				t.Errorf("store changed after rejected insert")
			}
		})
	}
}

func TestDeleteMissing(t *testing.T) {
	e := newEngine(t, false)
	err := e.Delete(context.Background(), 99)
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("err = %v, want ErrDocumentNotFound", err)
	}
	if apperrors.HTTPStatusCode(err) != 404 {
		t.Errorf("status = %d", apperrors.HTTPStatusCode(err))
	}
}

func TestGet(t *testing.T) {
	e := newEngine(t, false)
	text, err := e.Get(context.Background(), 1)
	if err != nil || text != "banana cherry" {
		t.Errorf("Get(1) = %q, %v", text, err)
	}
}

func TestOnMutate(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)
	var got []Mutation
	e.OnMutate(func(_ context.Context, m Mutation) { got = append(got, m) })

	if _, err := e.InsertBatch(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.DeleteBatch(ctx, []int{0, 0, 77}); err != nil {
		t.Fatal(err)
	}
	// Nothing deleted, no notification.
	if _, err := e.DeleteBatch(ctx, []int{77}); err != nil {
		t.Fatal(err)
	}

	want := []Mutation{
		{Op: OpInsert, IDs: []int{3, 4}},
		{Op: OpDelete, IDs: []int{0}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mutations = %+v, want %+v", got, want)
	}
}

func TestReloadFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "documents.json")
	store, err := docstore.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(ctx, store, config.IndexerConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Insert(ctx, "apple"); err != nil {
		t.Fatal(err)
	}
	if changed, err := e.Reload(ctx); err != nil || changed {
		t.Fatalf("Reload after own write = %v, %v", changed, err)
	}

	if err := os.WriteFile(path, []byte(`{"0": "apple", "1": "durian"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	reloaded := false
	e.OnMutate(func(_ context.Context, m Mutation) { reloaded = m.Op == OpReload })
	changed, err := e.Reload(ctx)
	if err != nil || !changed {
		t.Fatalf("Reload = %v, %v", changed, err)
	}
	if !reloaded {
		t.Error("reload hook not called")
	}
	if got := postings(t, e, "durian"); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("durian = %v", got)
	}
}

func TestReloadWithoutReloader(t *testing.T) {
	e := newEngine(t, false)
	changed, err := e.Reload(context.Background())
	if err != nil || changed {
		t.Errorf("Reload = %v, %v", changed, err)
	}
}

func TestConcurrentViewAndMutate(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, true)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id, err := e.Insert(ctx, "melon apple")
				if err != nil {
					t.Error(err)
					return
				}
				if err := e.Delete(ctx, id); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				err := e.View(ctx, func(docs map[int]string, ix *index.Index) error {
					if ix.DocCount() != len(docs) {
						t.Errorf("index has %d docs, store has %d", ix.DocCount(), len(docs))
					}
					return nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if got := postings(t, e, "melon"); len(got) != 0 {
		t.Errorf("melon = %v", got)
	}
}

func BenchmarkInsertIncremental(b *testing.B) {
	benchmarkInsert(b, true)
}

func BenchmarkInsertRebuild(b *testing.B) {
	benchmarkInsert(b, false)
}

func benchmarkInsert(b *testing.B, incremental bool) {
	ctx := context.Background()
	docs := make(map[int]string, 1000)
	for i := 0; i < 1000; i++ {
		docs[i] = "the quick brown fox jumps over the lazy dog"
	}
	e, err := New(ctx, docstore.NewMemoryFrom(docs), config.IndexerConfig{Incremental: incremental}, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Insert(ctx, "a new document about foxes"); err != nil {
			b.Fatal(err)
		}
	}
}
