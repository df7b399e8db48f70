package executor

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	// PureNegationScore is assigned to every survivor of a query made only
	// of NOT terms. It carries no relevance information.
	PureNegationScore = 0.5
	RedactionMarker   = "[FILTERED]"
	DefaultSnippetLen = 100
)

type Match struct {
	Score    float64 `json:"score"`
	DocID    int     `json:"doc_id"`
	Snippet  string  `json:"snippet"`
	FullText string  `json:"full_text"`
}

// Stats describes the work a query did.
type Stats struct {
	Candidates int
	Excluded   int
}

type Executor struct {
	snippetLen int
	logger     *slog.Logger
}

func New(snippetLen int) *Executor {
	if snippetLen <= 0 {
		snippetLen = DefaultSnippetLen
	}
	return &Executor{
		snippetLen: snippetLen,
		logger:     slog.Default().With("component", "query-executor"),
	}
}

// Eval runs the postfix program of q against ix. NOT complements against
// every indexed document.
func Eval(q *parser.Query, ix *index.Index) (*roaring64.Bitmap, error) {
	stack := make([]*roaring64.Bitmap, 0, len(q.Postfix))
	pop := func() (*roaring64.Bitmap, bool) {
		if len(stack) == 0 {
			return nil, false
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, true
	}
	for _, tok := range q.Postfix {
		switch tok.Kind {
		case parser.Literal:
			stack = append(stack, ix.Postings(tok.Text))
		case parser.Not:
			operand, ok := pop()
			if !ok {
				return nil, fmt.Errorf("%w: NOT without operand", apperrors.ErrInternal)
			}
			stack = append(stack, roaring64.AndNot(ix.AllDocs(), operand))
		case parser.And, parser.Or:
			right, okR := pop()
			left, okL := pop()
			if !okR || !okL {
				return nil, fmt.Errorf("%w: %s without two operands", apperrors.ErrInternal, tok.Kind)
			}
			if tok.Kind == parser.And {
				stack = append(stack, roaring64.And(left, right))
			} else {
				stack = append(stack, roaring64.Or(left, right))
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %s in postfix", apperrors.ErrInternal, tok.Kind)
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: postfix left %d operands", apperrors.ErrInternal, len(stack))
	}
	return stack[0].Clone(), nil
}

// Boolean evaluates q, drops every document whose text contains an excluded
// term as a case-insensitive substring, and scores the survivors against the
// query's remaining terms.
func (e *Executor) Boolean(q *parser.Query, docs map[int]string, ix *index.Index) ([]Match, Stats, error) {
	matched, err := Eval(q, ix)
	if err != nil {
		return nil, Stats{}, err
	}
	stats := Stats{Candidates: int(matched.GetCardinality())}
	if matched.IsEmpty() {
		return []Match{}, stats, nil
	}

	ids := make([]int, 0, stats.Candidates)
	texts := make([]string, 0, stats.Candidates)
	for _, id := range index.ToIDs(matched) {
		text, ok := docs[id]
		if !ok {
			continue
		}
		if containsAny(text, q.Excluded) {
			stats.Excluded++
			continue
		}
		ids = append(ids, id)
		texts = append(texts, text)
	}
	if len(ids) == 0 {
		return []Match{}, stats, nil
	}

	var scores []float64
	if len(q.Terms) > 0 {
		scores = ranker.Similarities(strings.Join(q.Terms, " "), texts)
	} else {
		scores = make([]float64, len(ids))
		for i := range scores {
			scores[i] = PureNegationScore
		}
	}

	matches := make([]Match, len(ids))
	for i, id := range ids {
		matches[i] = Match{
			Score:    scores[i],
			DocID:    id,
			Snippet:  Redact(Snippet(texts[i], e.snippetLen), q.Excluded),
			FullText: texts[i],
		}
	}
	SortMatches(matches)
	e.logger.Debug("boolean query evaluated",
		"query", q.Raw,
		"postfix", q.String(),
		"candidates", stats.Candidates,
		"excluded", stats.Excluded,
		"results", len(matches),
	)
	return matches, stats, nil
}

// Ranked scores the documents sharing at least one token with query. When no
// document does, it returns without building any vectors.
func (e *Executor) Ranked(query string, docs map[int]string, ix *index.Index) ([]Match, Stats) {
	candidates := ix.Candidates(tokenizer.Tokenize(query))
	stats := Stats{Candidates: int(candidates.GetCardinality())}
	if candidates.IsEmpty() {
		return []Match{}, stats
	}

	ids := make([]int, 0, stats.Candidates)
	texts := make([]string, 0, stats.Candidates)
	for _, id := range index.ToIDs(candidates) {
		if text, ok := docs[id]; ok {
			ids = append(ids, id)
			texts = append(texts, text)
		}
	}

	scores := ranker.Similarities(query, texts)
	matches := make([]Match, 0, len(ids))
	for i, id := range ids {
		if scores[i] <= 0 {
			continue
		}
		matches = append(matches, Match{
			Score:    scores[i],
			DocID:    id,
			Snippet:  Snippet(texts[i], e.snippetLen),
			FullText: texts[i],
		})
	}
	SortMatches(matches)
	e.logger.Debug("ranked query evaluated",
		"query", query,
		"candidates", stats.Candidates,
		"results", len(matches),
	)
	return matches, stats
}

// SortMatches orders by score descending, then document id ascending.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DocID < matches[j].DocID
	})
}

// Snippet returns the first n characters of text.
func Snippet(text string, n int) string {
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// Redact replaces every case-insensitive occurrence of each term with
// RedactionMarker.
func Redact(text string, terms []string) string {
	for _, term := range terms {
		if term == "" {
			continue
		}
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))
		text = re.ReplaceAllLiteralString(text, RedactionMarker)
	}
	return text
}

// Highlight wraps whole-word, case-insensitive occurrences of terms in
// pre and post markers.
func Highlight(text string, terms []string, pre, post string) string {
	if len(terms) == 0 {
		return text
	}
	sorted := append([]string(nil), terms...)
	// Longest first so a shorter term cannot shadow a longer one at the same offset.
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, 0, len(sorted))
	for _, term := range sorted {
		if term != "" {
			quoted = append(quoted, regexp.QuoteMeta(term))
		}
	}
	if len(quoted) == 0 {
		return text
	}
	re := regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)

	var b strings.Builder
	last, pos := 0, 0
	for pos < len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil || loc[0] == loc[1] {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if onWordBoundary(text, start, end) {
			b.WriteString(text[last:start])
			b.WriteString(pre)
			b.WriteString(text[start:end])
			b.WriteString(post)
			last, pos = end, end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// onWordBoundary reports whether text[start:end] is neither preceded nor
// followed by a word rune, using the tokenizer's notion of a word.
func onWordBoundary(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); tokenizer.IsWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); tokenizer.IsWordRune(r) {
			return false
		}
	}
	return true
}

func containsAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
