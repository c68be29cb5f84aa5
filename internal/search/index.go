// Package search builds a lightweight per-record keyword index over the
// in-memory catalog collections and scores matches for a query. Ranking is
// deliberately simple: substring and prefix matching only, no stemming and
// no edit distance.
package search

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.Und)

// Document is anything the index can be built over.
type Document interface {
	SearchText() string
}

type entry[T Document] struct {
	item       T
	searchText string
	keywords   []string
}

// Index holds the derived entries for one snapshot of a collection. Entries
// are never mutated in place; a new collection generation triggers a full
// rebuild.
type Index[T Document] struct {
	entries    []entry[T]
	generation uint64
}

// Build derives an index from a collection snapshot. The generation is the
// collection's version counter; Engine uses it to decide when a rebuild is
// needed.
func Build[T Document](records []T, generation uint64) *Index[T] {
	entries := make([]entry[T], 0, len(records))
	for _, rec := range records {
		text := lower.String(rec.SearchText())
		entries = append(entries, entry[T]{
			item:       rec,
			searchText: text,
			keywords:   strings.Fields(text),
		})
	}
	return &Index[T]{entries: entries, generation: generation}
}

// Len returns the number of indexed records.
func (idx *Index[T]) Len() int { return len(idx.entries) }
