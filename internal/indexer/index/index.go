// Package index implements the inverted index: a presence map from token to
// the 64-bit roaring bitmap of document ids whose text contains that token.
//
// An Index is not safe for concurrent mutation. The indexer engine guards it
// together with the document store under one lock.
package index

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

type Index struct {
	postings map[string]*roaring64.Bitmap
	docTerms map[uint64][]string
	all      *roaring64.Bitmap
}

func New() *Index {
	return &Index{
		postings: make(map[string]*roaring64.Bitmap),
		docTerms: make(map[uint64][]string),
		all:      roaring64.New(),
	}
}

// Build indexes every document in docs from scratch.
func Build(docs map[int]string) *Index {
	ix := New()
	for id, text := range docs {
		ix.Add(id, text)
	}
	return ix
}

// Add indexes text under id, replacing any earlier text for the same id.
func (ix *Index) Add(id int, text string) {
	docID := uint64(id)
	if _, exists := ix.docTerms[docID]; exists {
		ix.remove(docID)
	}
	terms := tokenizer.Unique(text)
	for _, term := range terms {
		bm, ok := ix.postings[term]
		if !ok {
			bm = roaring64.New()
			ix.postings[term] = bm
		}
		bm.Add(docID)
	}
	ix.docTerms[docID] = terms
	ix.all.Add(docID)
}

// Remove drops id from every posting set. It reports whether id was indexed.
func (ix *Index) Remove(id int) bool {
	return ix.remove(uint64(id))
}

func (ix *Index) remove(docID uint64) bool {
	terms, exists := ix.docTerms[docID]
	if !exists {
		return false
	}
	for _, term := range terms {
		if bm := ix.postings[term]; bm != nil {
			bm.Remove(docID)
			if bm.IsEmpty() {
				delete(ix.postings, term)
			}
		}
	}
	delete(ix.docTerms, docID)
	ix.all.Remove(docID)
	return true
}

// Postings returns the documents containing term. The lookup is
// case-insensitive and an unseen term yields an empty bitmap. The result
// must be treated as read-only.
func (ix *Index) Postings(term string) *roaring64.Bitmap {
	if bm, ok := ix.postings[strings.ToLower(term)]; ok {
		return bm
	}
	return roaring64.New()
}

// Candidates unions the postings of terms.
func (ix *Index) Candidates(terms []string) *roaring64.Bitmap {
	sets := make([]*roaring64.Bitmap, 0, len(terms))
	for _, term := range terms {
		if bm, ok := ix.postings[strings.ToLower(term)]; ok {
			sets = append(sets, bm)
		}
	}
	switch len(sets) {
	case 0:
		return roaring64.New()
	case 1:
		return sets[0].Clone()
	}
	return roaring64.FastOr(sets...)
}

// AllDocs returns every indexed document id. Read-only.
func (ix *Index) AllDocs() *roaring64.Bitmap {
	return ix.all
}

func (ix *Index) Contains(term string, id int) bool {
	bm, ok := ix.postings[strings.ToLower(term)]
	return ok && bm.Contains(uint64(id))
}

func (ix *Index) DocCount() int {
	return int(ix.all.GetCardinality())
}

func (ix *Index) TermCount() int {
	return len(ix.postings)
}

// Terms returns the indexed vocabulary in sorted order.
func (ix *Index) Terms() []string {
	terms := make([]string, 0, len(ix.postings))
	for term := range ix.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Snapshot returns every term with its sorted document ids.
func (ix *Index) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(ix.postings))
	for _, term := range ix.Terms() {
		entries = append(entries, TermEntry{
			Term:   term,
			DocIDs: ToIDs(ix.postings[term]),
		})
	}
	return entries
}
