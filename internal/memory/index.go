// Package memory provides an in-process vector index using brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

type collection struct {
	dimension int
	points    map[string]domain.Point
}

// Index keeps collections in memory. It is safe for concurrent use.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{collections: make(map[string]*collection)}
}

// EnsureCollection creates the collection or verifies its dimension.
func (x *Index) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return domain.ErrInvalidDimension
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if c, ok := x.collections[name]; ok {
		if c.dimension != dimension {
			return domain.Wrap(domain.ErrCollectionDimension, fmt.Errorf("%s has %d, requested %d", name, c.dimension, dimension))
		}
		return nil
	}
	x.collections[name] = &collection{dimension: dimension, points: make(map[string]domain.Point)}
	return nil
}

// DeleteByFilter removes every point matching filter. A missing collection or
// zero matches is not an error.
func (x *Index) DeleteByFilter(ctx context.Context, name string, filter domain.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.collections[name]
	if !ok {
		return nil
	}
	for id, p := range c.points {
		if filter.Matches(p.Payload) {
			delete(c.points, id)
		}
	}
	return nil
}

// Upsert inserts or replaces points by id. Either all points are written or none.
func (x *Index) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.collections[name]
	if !ok {
		return domain.Wrap(domain.ErrCollectionNotFound, fmt.Errorf("%s", name))
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return domain.Wrap(domain.ErrVectorDimension, fmt.Errorf("point %s has %d, collection has %d", p.ID, len(p.Vector), c.dimension))
		}
	}
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		c.points[p.ID] = p
	}
	return nil
}

// Search returns the k points most similar to vector among those matching filter.
func (x *Index) Search(ctx context.Context, name string, vector []float32, filter domain.Filter, k int) ([]domain.SearchHit, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	c, ok := x.collections[name]
	if !ok {
		return nil, domain.Wrap(domain.ErrCollectionNotFound, fmt.Errorf("%s", name))
	}
	if len(vector) != c.dimension {
		return nil, domain.Wrap(domain.ErrVectorDimension, fmt.Errorf("query has %d, collection has %d", len(vector), c.dimension))
	}

	hits := make([]domain.SearchHit, 0, len(c.points))
	for _, p := range c.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		hits = append(hits, domain.SearchHit{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Ping always succeeds.
func (x *Index) Ping(context.Context) error { return nil }

// Count returns the number of points in a collection matching filter; an empty
// filter counts everything.
func (x *Index) Count(name string, filter domain.Filter) int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	c, ok := x.collections[name]
	if !ok {
		return 0
	}
	n := 0
	for _, p := range c.points {
		if filter.Matches(p.Payload) {
			n++
		}
	}
	return n
}

// IDs returns the sorted ids of points in a collection matching filter.
func (x *Index) IDs(name string, filter domain.Filter) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	c, ok := x.collections[name]
	if !ok {
		return nil
	}
	var ids []string
	for id, p := range c.points {
		if filter.Matches(p.Payload) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
