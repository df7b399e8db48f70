// Package ranker scores documents against a query with TF-IDF weighted
// cosine similarity.
//
// Weights follow the smoothed formulation: raw term counts scaled by
// idf(t) = ln((1+n)/(1+df(t))) + 1, where n is the number of texts the model
// was fitted on (the query plus the candidate documents).
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// Vector is a sparse term-weight vector.
type Vector map[string]float64

type Model struct {
	idf   map[string]float64
	nDocs int
}

// Fit computes document frequencies over the tokenized texts.
func Fit(texts [][]string) *Model {
	df := make(map[string]int)
	for _, tokens := range texts {
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	n := float64(len(texts))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((1+n)/(1+float64(count))) + 1
	}
	return &Model{idf: idf, nDocs: len(texts)}
}

// IDF returns the weight of term, or 0 for a term outside the fitted
// vocabulary.
func (m *Model) IDF(term string) float64 {
	return m.idf[term]
}

// Vector weights tokens. Terms outside the vocabulary are dropped.
func (m *Model) Vector(tokens []string) Vector {
	vec := make(Vector, len(tokens))
	for term, tf := range tokenizer.Frequencies(tokens) {
		if idf, ok := m.idf[term]; ok {
			vec[term] = float64(tf) * idf
		}
	}
	return vec
}

func (v Vector) Magnitude() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b in [0, 1]. A zero-magnitude
// operand yields 0.
func Cosine(a, b Vector) float64 {
	magA, magB := a.Magnitude(), b.Magnitude()
	if magA == 0 || magB == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		dot += w * b[term]
	}
	sim := dot / (magA * magB)
	switch {
	case sim > 1:
		return 1
	case sim < 0:
		return 0
	}
	return sim
}

// Similarities fits a model on the query together with docs and returns the
// similarity of each doc to the query, in the order given.
func Similarities(query string, docs []string) []float64 {
	texts := make([][]string, 0, len(docs)+1)
	texts = append(texts, tokenizer.Tokenize(query))
	for _, doc := range docs {
		texts = append(texts, tokenizer.Tokenize(doc))
	}
	model := Fit(texts)
	queryVec := model.Vector(texts[0])

	scores := make([]float64, len(docs))
	for i := range docs {
		scores[i] = Cosine(queryVec, model.Vector(texts[i+1]))
	}
	return scores
}
