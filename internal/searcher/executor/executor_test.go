package executor

import (
	"math"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

var corpus = map[int]string{
	0: "apple banana",
	1: "banana cherry",
	2: "apple cherry grape",
}

func ids(matches []Match) []int {
	out := make([]int, len(matches))
	for i, m := range matches {
		out[i] = m.DocID
	}
	return out
}

func mustParse(t *testing.T, query string) *parser.Query {
	t.Helper()
	q, err := parser.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	return q
}

func TestEvalSetAlgebra(t *testing.T) {
	ix := index.Build(corpus)
	tests := []struct {
		query string
		want  []int
	}{
		{"apple AND banana", []int{0}},
		{"apple OR cherry", []int{0, 1, 2}},
		{"NOT apple", []int{1}},
		{"banana AND NOT cherry", []int{0}},
		{"(apple OR banana) AND cherry", []int{1, 2}},
		{"apple OR banana AND cherry", []int{0, 1, 2}},
		{"kiwi", []int{}},
		{"NOT kiwi", []int{0, 1, 2}},
		{"kiwi OR grape", []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := Eval(mustParse(t, tt.query), ix)
			if err != nil {
				t.Fatal(err)
			}
			if ids := index.ToIDs(got); !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("Eval = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestEvalMatchesPostingAlgebra(t *testing.T) {
	ix := index.Build(corpus)
	terms := []string{"apple", "banana", "cherry", "grape", "kiwi"}
	for _, a := range terms {
		for _, b := range terms {
			pa, pb := ix.Postings(a), ix.Postings(b)
			and, err := Eval(mustParse(t, a+" AND "+b), ix)
			if err != nil {
				t.Fatal(err)
			}
			or, err := Eval(mustParse(t, a+" OR "+b), ix)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := index.ToIDs(and), index.ToIDs(roaring64.And(pa, pb)); !reflect.DeepEqual(got, want) {
				t.Errorf("%s AND %s = %v, want %v", a, b, got, want)
			}
			if got, want := index.ToIDs(or), index.ToIDs(roaring64.Or(pa, pb)); !reflect.DeepEqual(got, want) {
				t.Errorf("%s OR %s = %v, want %v", a, b, got, want)
			}
		}
	}
}

func TestBooleanEndToEnd(t *testing.T) {
	ix := index.Build(corpus)
	ex := New(100)
	tests := []struct {
		query string
		want  []int
	}{
		{"apple AND banana", []int{0}},
		{"apple NOT cherry", []int{0}},
		{"banana NOT apple", []int{1}},
		{"grape AND banana", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			matches, _, err := ex.Boolean(mustParse(t, tt.query), corpus, ix)
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(matches); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}

	matches, _, err := ex.Boolean(mustParse(t, "apple OR cherry"), corpus, ix)
	if err != nil {
		t.Fatal(err)
	}
	got := ids(matches)
	if len(got) != 3 {
		t.Fatalf("apple OR cherry = %v", got)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("results not sorted by score: %v", matches)
		}
	}
}

func TestBooleanWideDocumentIDs(t *testing.T) {
	const wide = 1 << 32
	docs := map[int]string{0: "apple", wide: "banana"}
	ix := index.Build(docs)
	ex := New(100)
	tests := []struct {
		query string
		want  []int
	}{
		{"banana", []int{wide}},
		{"apple", []int{0}},
		{"NOT apple", []int{wide}},
		{"apple OR banana", []int{0, wide}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			matches, _, err := ex.Boolean(mustParse(t, tt.query), docs, ix)
			if err != nil {
				t.Fatal(err)
			}
			got := ids(matches)
			sort.Ints(got)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBooleanSubstringExclusion(t *testing.T) {
	docs := map[int]string{
		0: "apple banana",
		1: "apple banana cherryade",
		2: "apple banana Cherry",
	}
	ix := index.Build(docs)
	q := mustParse(t, "apple AND banana NOT cherry")

	matched, _ := Eval(q, ix)
	if got := index.ToIDs(matched); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("index-only evaluation = %v, want [0 1]", got)
	}

	matches, stats, err := New(100).Boolean(q, docs, ix)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(matches); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("ids = %v, want [0]: cherryade must be excluded by substring", got)
	}
	if stats.Excluded != 1 {
		t.Errorf("Excluded = %d, want 1", stats.Excluded)
	}
}

func TestBooleanPureNegationScore(t *testing.T) {
	ix := index.Build(corpus)
	matches, _, err := New(100).Boolean(mustParse(t, "NOT grape"), corpus, ix)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(matches); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("ids = %v", got)
	}
	for _, m := range matches {
		if m.Score != PureNegationScore {
			t.Errorf("doc %d score = %v, want %v", m.DocID, m.Score, PureNegationScore)
		}
	}
}

func TestBooleanScoresIgnoreExcludedTerms(t *testing.T) {
	ix := index.Build(corpus)
	matches, _, err := New(100).Boolean(mustParse(t, "apple NOT cherry"), corpus, ix)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %v", matches)
	}
	// Scored against "apple" over {query, doc0}: idf(apple)=1, idf(banana)=ln(3/2)+1.
	w := math.Log(1.5) + 1
	want := 1 / math.Sqrt(1+w*w)
	if math.Abs(matches[0].Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", matches[0].Score, want)
	}
}

func TestRankedEndToEnd(t *testing.T) {
	ix := index.Build(corpus)
	matches, stats := New(100).Ranked("apple", corpus, ix)
	if stats.Candidates != 2 {
		t.Errorf("Candidates = %d, want 2", stats.Candidates)
	}
	if got := ids(matches); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("ids = %v, want [0 2]", got)
	}
	w := math.Log(2) + 1
	want := []float64{1 / math.Sqrt(1+w*w), 1 / math.Sqrt(1+2*w*w)}
	for i, m := range matches {
		if math.Abs(m.Score-want[i]) > 1e-9 {
			t.Errorf("doc %d score = %v, want %v", m.DocID, m.Score, want[i])
		}
		if m.FullText != corpus[m.DocID] || m.Snippet != corpus[m.DocID] {
			t.Errorf("doc %d text mismatch", m.DocID)
		}
	}
}

func TestRankedNoCandidates(t *testing.T) {
	ix := index.Build(corpus)
	matches, stats := New(100).Ranked("kiwi mango", corpus, ix)
	if len(matches) != 0 || stats.Candidates != 0 {
		t.Errorf("matches = %v, candidates = %d", matches, stats.Candidates)
	}
	matches, _ = New(100).Ranked("", corpus, ix)
	if len(matches) != 0 {
		t.Errorf("empty query matches = %v", matches)
	}
}

func TestRankedScoreBounds(t *testing.T) {
	docs := map[int]string{
		0: "go is a language",
		1: "go go go",
		2: "rust is a language",
		3: "the go gopher",
		4: "language models",
	}
	ix := index.Build(docs)
	matches, _ := New(100).Ranked("go language", docs, ix)
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	for i, m := range matches {
		if m.Score <= 0 || m.Score > 1 {
			t.Errorf("score %v out of (0, 1]", m.Score)
		}
		if i > 0 && m.Score > matches[i-1].Score {
			t.Errorf("not sorted at %d", i)
		}
	}
}

func TestSortMatchesTieBreak(t *testing.T) {
	matches := []Match{
		{Score: 0.5, DocID: 9},
		{Score: 0.9, DocID: 4},
		{Score: 0.5, DocID: 2},
		{Score: 0.5, DocID: 5},
	}
	SortMatches(matches)
	if got := ids(matches); !reflect.DeepEqual(got, []int{4, 2, 5, 9}) {
		t.Errorf("order = %v", got)
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("ab", 80)
	if got := Snippet(long, 100); len(got) != 100 {
		t.Errorf("len = %d", len(got))
	}
	if got := Snippet("short", 100); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Snippet("héllo wörld", 4); got != "héll" {
		t.Errorf("rune-aware snippet = %q", got)
	}
}

func TestRedact(t *testing.T) {
	got := Redact("Cherry pie and cherryade", []string{"cherry"})
	want := "[FILTERED] pie and [FILTERED]ade"
	if got != want {
		t.Errorf("Redact = %q, want %q", got, want)
	}
	if got := Redact("a.b", []string{"."}); got != "a[FILTERED]b" {
		t.Errorf("Redact must quote meta characters, got %q", got)
	}
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		terms []string
		want  string
	}{
		{"ascii whole word", "Apple pie and pineapple", []string{"apple"}, "<b>Apple</b> pie and pineapple"},
		{"no terms", "text", nil, "text"},
		{"accented word", "un café noir", []string{"café"}, "un <b>café</b> noir"},
		{"accented case folding", "CAFÉ au lait", []string{"café"}, "<b>CAFÉ</b> au lait"},
		{"accent is part of the word", "cafés", []string{"café"}, "cafés"},
		{"cjk run", "東京", []string{"東京"}, "<b>東京</b>"},
		{"cjk inside longer run", "東京タワー", []string{"東京"}, "東京タワー"},
		{"adjacent matches", "café café", []string{"café"}, "<b>café</b> <b>café</b>"},
		{"longer term wins", "apples and apple", []string{"apple", "apples"}, "<b>apples</b> and <b>apple</b>"},
		{"punctuation boundary", "(naïve).", []string{"naïve"}, "(<b>naïve</b>)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Highlight(tt.text, tt.terms, "<b>", "</b>"); got != tt.want {
				t.Errorf("Highlight(%q, %q) = %q, want %q", tt.text, tt.terms, got, tt.want)
			}
		})
	}
}

func BenchmarkRanked(b *testing.B) {
	docs := make(map[int]string, 500)
	for i := 0; i < 500; i++ {
		docs[i] = strings.Repeat("search engine index ", i%5+1) + "document"
	}
	ix := index.Build(docs)
	ex := New(100)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ex.Ranked("search index", docs, ix)
	}
}
