package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrSearchFailed is returned when every namespace query failed.
var ErrSearchFailed = errors.New("all namespace searches failed")

// Match is one merged search result tagged with its namespace.
type Match struct {
	ID        string   `json:"id"`
	Namespace string   `json:"namespace"`
	Score     float64  `json:"score"`
	Metadata  Metadata `json:"metadata"`
}

// Searcher fans one query out across namespaces and merges the results.
type Searcher struct {
	store  VectorStore
	filter Filter
	logger *slog.Logger
}

// NewSearcher creates a Searcher over store.
func NewSearcher(store VectorStore) *Searcher {
	return &Searcher{store: store, logger: slog.Default()}
}

// WithFilter returns a copy of the Searcher that applies filter to every
// namespace query.
func (s *Searcher) WithFilter(f Filter) *Searcher {
	c := *s
	c.filter = f
	return &c
}

// Search queries every namespace concurrently for topK results each. A
// failing namespace is logged and contributes nothing. Results are merged,
// sorted by descending score (stable across equal scores), truncated to
// topK, and finally stripped of matches scoring below minScore.
func (s *Searcher) Search(ctx context.Context, embedding []float32, namespaces []string, topK int, minScore float64) ([]Match, error) {
	if len(namespaces) == 0 || topK <= 0 {
		return nil, nil
	}

	perNS := make([][]Match, len(namespaces))
	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)

	// Namespace errors are swallowed so one failure never cancels siblings.
	var g errgroup.Group
	for i, ns := range namespaces {
		g.Go(func() error {
			recs, err := s.store.Search(ctx, ns, embedding, topK, s.filter)
			if err != nil {
				s.logger.Warn("namespace search failed", "namespace", ns, "error", err)
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return nil
			}
			matches := make([]Match, len(recs))
			for j, r := range recs {
				matches[j] = Match{ID: r.ID, Namespace: ns, Score: float64(r.Score), Metadata: r.Metadata}
			}
			perNS[i] = matches
			return nil
		})
	}
	g.Wait()

	if failures == len(namespaces) {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, lastErr)
	}

	return mergeMatches(perNS, topK, minScore), nil
}

// mergeMatches concatenates per-namespace results in namespace order, sorts
// them by descending score, truncates to topK, then applies the score floor.
func mergeMatches(perNS [][]Match, topK int, minScore float64) []Match {
	var all []Match
	for _, ms := range perNS {
		all = append(all, ms...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > topK {
		all = all[:topK]
	}

	out := all[:0]
	for _, m := range all {
		if m.Score >= minScore {
			out = append(out, m)
		}
	}
	return out
}
