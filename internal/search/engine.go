package search

import (
	"sort"
	"strings"
	"sync"
)

// Scoring weights. Prefix matches outrank arbitrary substring matches, and a
// whole-query hit in the concatenated search text outranks both.
const (
	fullMatchScore   = 100.0
	keywordScoreBase = 10.0
	prefixBonus      = 20.0
)

// Engine memoizes the index per collection generation and answers queries
// against it.
type Engine[T Document] struct {
	mu    sync.Mutex
	index *Index[T]
}

// NewEngine constructs an empty engine.
func NewEngine[T Document]() *Engine[T] {
	return &Engine[T]{}
}

// Query scores the collection snapshot against a raw query and returns the
// top limit records by descending score. A blank or whitespace-only query
// returns nil without touching the index.
func (e *Engine[T]) Query(records []T, generation uint64, query string, limit int) []T {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil
	}
	idx := e.indexFor(records, generation)
	return idx.query(trimmed, limit)
}

// indexFor returns the memoized index, rebuilding only when the collection
// generation has changed.
func (e *Engine[T]) indexFor(records []T, generation uint64) *Index[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index == nil || e.index.generation != generation {
		e.index = Build(records, generation)
	}
	return e.index
}

type candidate[T Document] struct {
	item  T
	score float64
}

func (idx *Index[T]) query(trimmed string, limit int) []T {
	q := lower.String(trimmed)
	words := strings.Fields(q)

	// Bounded-cost approximate top-k: stop scanning once twice the
	// requested number of candidates have been accumulated.
	maxCandidates := 2 * limit
	candidates := make([]candidate[T], 0, maxCandidates)
	for _, en := range idx.entries {
		score := 0.0
		if strings.Contains(en.searchText, q) {
			score += fullMatchScore
		}
		for _, word := range words {
			for _, keyword := range en.keywords {
				if !strings.Contains(keyword, word) {
					continue
				}
				score += float64(len(word)) / float64(len(keyword)) * keywordScoreBase
				if strings.HasPrefix(keyword, word) {
					score += prefixBonus
				}
			}
		}
		if score <= 0 {
			continue
		}
		candidates = append(candidates, candidate[T]{item: en.item, score: score})
		if maxCandidates > 0 && len(candidates) >= maxCandidates {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	items := make([]T, len(candidates))
	for i, c := range candidates {
		items[i] = c.item
	}
	return items
}
