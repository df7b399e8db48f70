// Package parser turns a boolean query string into postfix form.
//
// Operators AND, OR and NOT are recognised case-insensitively and bind
// NOT > AND > OR, with AND and OR left-associative. NOT is unary and takes
// exactly one following term. A NOT written directly after an operand is read
// as AND NOT, so "apple NOT cherry" means "apple AND NOT cherry". Two terms
// with no operator between them are rejected.
package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type Kind int

const (
	Literal Kind = iota
	And
	Or
	Not
	LParen
	RParen
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "term"
	case And:
		return "AND"
	case Or:
		return "OR"
	case Not:
		return "NOT"
	case LParen:
		return "("
	case RParen:
		return ")"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) isBinary() bool {
	return k == And || k == Or
}

func (k Kind) precedence() int {
	switch k {
	case Not:
		return 3
	case And:
		return 2
	case Or:
		return 1
	}
	return 0
}

// Token is one lexical element. Pos is the byte offset in the raw query;
// implicit operators carry the position of the token that caused them.
type Token struct {
	Kind     Kind
	Text     string
	Pos      int
	Implicit bool
}

type Query struct {
	Raw string
	// Tokens is the validated infix stream including implicit operators.
	Tokens  []Token
	Postfix []Token
	// Excluded holds every term that directly follows a NOT.
	Excluded []string
	// Terms holds the remaining terms in query order, for scoring.
	Terms []string
}

// IsExcluded reports whether term was negated anywhere in the query.
func (q *Query) IsExcluded(term string) bool {
	for _, ex := range q.Excluded {
		if ex == term {
			return true
		}
	}
	return false
}

type ParseError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return apperrors.ErrQueryParse
}

// Lex splits query into operators, parentheses and lower-cased terms.
// Characters that are neither word characters nor parentheses separate
// tokens and are otherwise ignored.
func Lex(query string) []Token {
	var tokens []Token
	for i := 0; i < len(query); {
		r, size := utf8.DecodeRuneInString(query[i:])
		switch {
		case r == '(':
			tokens = append(tokens, Token{Kind: LParen, Text: "(", Pos: i})
			i += size
		case r == ')':
			tokens = append(tokens, Token{Kind: RParen, Text: ")", Pos: i})
			i += size
		case tokenizer.IsWordRune(r):
			start := i
			for i < len(query) {
				r, size = utf8.DecodeRuneInString(query[i:])
				if !tokenizer.IsWordRune(r) {
					break
				}
				i += size
			}
			tokens = append(tokens, word(query[start:i], start))
		default:
			i += size
		}
	}
	return tokens
}

func word(text string, pos int) Token {
	switch {
	case strings.EqualFold(text, "AND"):
		return Token{Kind: And, Text: "AND", Pos: pos}
	case strings.EqualFold(text, "OR"):
		return Token{Kind: Or, Text: "OR", Pos: pos}
	case strings.EqualFold(text, "NOT"):
		return Token{Kind: Not, Text: "NOT", Pos: pos}
	}
	return Token{Kind: Literal, Text: strings.ToLower(text), Pos: pos}
}

// Parse validates query and converts it to postfix. Any malformed input
// returns a *ParseError and no Query.
func Parse(query string) (*Query, error) {
	raw := Lex(query)
	if len(raw) == 0 {
		msg := "empty query"
		if strings.TrimFunc(query, unicode.IsSpace) != "" {
			msg = "query contains no terms"
		}
		return nil, &ParseError{Query: query, Pos: 0, Msg: msg}
	}

	tokens, err := validate(query, raw)
	if err != nil {
		return nil, err
	}

	q := &Query{
		Raw:     query,
		Tokens:  tokens,
		Postfix: toPostfix(tokens),
	}
	excluded := make(map[string]bool)
	for i, tok := range tokens {
		if tok.Kind == Not && i+1 < len(tokens) && tokens[i+1].Kind == Literal {
			term := tokens[i+1].Text
			if !excluded[term] {
				excluded[term] = true
				q.Excluded = append(q.Excluded, term)
			}
		}
	}
	for _, tok := range tokens {
		if tok.Kind == Literal && !excluded[tok.Text] {
			q.Terms = append(q.Terms, tok.Text)
		}
	}
	return q, nil
}

// validate walks the stream once, tracking whether an operand or an
// operator is due, and inserts the implicit AND before a trailing NOT.
func validate(query string, raw []Token) ([]Token, error) {
	fail := func(pos int, format string, args ...any) error {
		return &ParseError{Query: query, Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}

	out := make([]Token, 0, len(raw)+2)
	var open []int
	expectOperand := true

	for i, tok := range raw {
		switch tok.Kind {
		case Literal:
			if !expectOperand {
				prev := out[len(out)-1]
				return nil, fail(tok.Pos, "missing operator between %q and %q", prev.Text, tok.Text)
			}
			expectOperand = false
		case Not:
			if !expectOperand {
				out = append(out, Token{Kind: And, Text: "AND", Pos: tok.Pos, Implicit: true})
			}
			if i+1 >= len(raw) || raw[i+1].Kind != Literal {
				return nil, fail(tok.Pos, "NOT must be followed by a term")
			}
			expectOperand = true
		case And, Or:
			if expectOperand {
				return nil, fail(tok.Pos, "%s is missing its left operand", tok.Kind)
			}
			expectOperand = true
		case LParen:
			if !expectOperand {
				return nil, fail(tok.Pos, "missing operator before '('")
			}
			open = append(open, tok.Pos)
		case RParen:
			if len(open) == 0 {
				return nil, fail(tok.Pos, "unmatched ')'")
			}
			if expectOperand {
				if prev := out[len(out)-1]; prev.Kind == LParen {
					return nil, fail(tok.Pos, "empty parentheses")
				}
				return nil, fail(tok.Pos, "%s is missing its right operand", out[len(out)-1].Kind)
			}
			open = open[:len(open)-1]
		}
		out = append(out, tok)
	}

	if expectOperand {
		last := out[len(out)-1]
		if last.Kind == LParen {
			return nil, fail(last.Pos, "unmatched '('")
		}
		return nil, fail(last.Pos, "%s is missing its right operand", last.Kind)
	}
	if len(open) > 0 {
		return nil, fail(open[len(open)-1], "unmatched '('")
	}
	return out, nil
}

// toPostfix is the shunting-yard conversion. tokens must be validated.
func toPostfix(tokens []Token) []Token {
	output := make([]Token, 0, len(tokens))
	var ops []Token
	for _, tok := range tokens {
		switch tok.Kind {
		case Literal:
			output = append(output, tok)
		case Not:
			ops = append(ops, tok)
		case And, Or:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.Kind == LParen || top.Kind.precedence() < tok.Kind.precedence() {
					break
				}
				output = append(output, top)
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, tok)
		case LParen:
			ops = append(ops, tok)
		case RParen:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.Kind == LParen {
					break
				}
				output = append(output, top)
			}
		}
	}
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Kind != LParen {
			output = append(output, ops[i])
		}
	}
	return output
}

// String renders the postfix stream, e.g. "apple cherry NOT AND".
func (q *Query) String() string {
	parts := make([]string, len(q.Postfix))
	for i, tok := range q.Postfix {
		parts[i] = tok.Text
	}
	return strings.Join(parts, " ")
}
