package parser

import (
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func TestLex(t *testing.T) {
	toks := Lex("(Apple and banana) OR not Cherry-pie!")
	var kinds []Kind
	var texts []string
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
		texts = append(texts, tok.Text)
	}
	wantKinds := []Kind{LParen, Literal, And, Literal, RParen, Or, Not, Literal, Literal}
	wantTexts := []string{"(", "apple", "AND", "banana", ")", "OR", "NOT", "cherry", "pie"}
	if !reflect.DeepEqual(kinds, wantKinds) {
		t.Errorf("kinds = %v, want %v", kinds, wantKinds)
	}
	if !reflect.DeepEqual(texts, wantTexts) {
		t.Errorf("texts = %v, want %v", texts, wantTexts)
	}
	if toks[1].Pos != 1 || toks[2].Pos != 7 {
		t.Errorf("positions = %d, %d", toks[1].Pos, toks[2].Pos)
	}
}

func TestParsePostfix(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"apple", "apple"},
		{"apple AND banana", "apple banana AND"},
		{"apple OR cherry", "apple cherry OR"},
		{"a OR b AND c", "a b c AND OR"},
		{"a AND b OR c", "a b AND c OR"},
		{"a AND b AND c", "a b AND c AND"},
		{"(a OR b) AND c", "a b OR c AND"},
		{"NOT a", "a NOT"},
		{"NOT a AND b", "a NOT b AND"},
		{"apple NOT cherry", "apple cherry NOT AND"},
		{"apple AND banana NOT cherry", "apple banana AND cherry NOT AND"},
		{"a OR NOT b", "a b NOT OR"},
		{"((a))", "a"},
		{"a and (b or not c)", "a b c NOT OR AND"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.query, err)
			}
			if got := q.String(); got != tt.want {
				t.Errorf("postfix = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTerms(t *testing.T) {
	q, err := Parse("Apple AND banana NOT Cherry OR (grape NOT cherry)")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(q.Excluded, []string{"cherry"}) {
		t.Errorf("Excluded = %v", q.Excluded)
	}
	if !reflect.DeepEqual(q.Terms, []string{"apple", "banana", "grape"}) {
		t.Errorf("Terms = %v", q.Terms)
	}
	if !q.IsExcluded("cherry") || q.IsExcluded("apple") {
		t.Error("IsExcluded mismatch")
	}

	q, err = Parse("NOT cherry")
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Terms) != 0 {
		t.Errorf("pure NOT query Terms = %v", q.Terms)
	}
}

func TestParseImplicitAnd(t *testing.T) {
	q, err := Parse("apple NOT cherry")
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Tokens) != 4 || q.Tokens[1].Kind != And || !q.Tokens[1].Implicit {
		t.Errorf("expected implicit AND, got %+v", q.Tokens)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		query string
		pos   int
	}{
		{"", 0},
		{"   ", 0},
		{"!!", 0},
		{"apple banana", 6},
		{"AND apple", 0},
		{"apple AND", 6},
		{"apple OR OR banana", 9},
		{"NOT", 0},
		{"apple NOT", 6},
		{"NOT (a OR b)", 0},
		{"NOT NOT a", 0},
		{"(apple", 0},
		{"apple)", 5},
		{"()", 1},
		{"(apple AND)", 10},
		{"apple (banana)", 6},
		{"(a) b", 4},
		{"((a)", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := Parse(tt.query)
			if err == nil {
				t.Fatalf("Parse(%q) = %v, want error", tt.query, q)
			}
			if q != nil {
				t.Error("query must be nil on error")
			}
			if !errors.Is(err, apperrors.ErrQueryParse) {
				t.Errorf("error %v does not wrap ErrQueryParse", err)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not *ParseError", err)
			}
			if perr.Pos != tt.pos {
				t.Errorf("Pos = %d, want %d (%s)", perr.Pos, tt.pos, perr.Msg)
			}
		})
	}
}

func BenchmarkParse(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Parse("(apple OR banana) AND NOT cherry OR grape AND (kiwi OR mango)")
	}
}
