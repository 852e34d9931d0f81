// Package vectorstore provides interfaces and implementations for vector
// similarity search over chess position embeddings.
package vectorstore

import "context"

// Point is an embedded position ready to upsert into the vector store.
type Point struct {
	GameID      int64
	FEN         string
	Vector      []float32
	White       string
	Black       string
	WhiteRating *int
	BlackRating *int
	OpeningSlug string
	Phases      []string
	Themes      []string
	Keywords    []string
}

// VectorHit is one payload-matched point returned from a similarity search.
// A game may have multiple positions, so a search can return multiple hits
// for the same GameID; the hybrid executor merges those (max score, union
// of metadata) before scoring.
type VectorHit struct {
	GameID   int64
	Score    float32
	Phases   []string
	Themes   []string
	Keywords []string
}

// PayloadFilter is a single predicate evaluated by the vector store against
// stored point metadata: an equality match on Value, or a numeric >= match
// when Min is set (used for the rating minima pushed down from a query
// plan). ECO ranges are not expressed here; those are relational range
// predicates handled by the game repository instead.
type PayloadFilter struct {
	Field string
	Value string
	Min   *int
}

// VectorStore defines the interface for vector storage operations. The
// hybrid executor depends on this interface rather than any concrete
// backend so query execution can run against an in-memory fake in tests.
type VectorStore interface {
	// CreateCollection creates the collection if it does not already exist.
	CreateCollection(ctx context.Context, name string, dimension int, distance string) error

	// Upsert inserts or updates points keyed by GameID+FEN.
	Upsert(ctx context.Context, points []Point) error

	// Search performs similarity search against vector, restricted to
	// points matching all filters, returning up to limit hits ordered by
	// score descending.
	Search(ctx context.Context, vector []float32, filters []PayloadFilter, limit int) ([]VectorHit, error)

	// Delete removes all points for the given game ids.
	Delete(ctx context.Context, gameIDs []int64) error
}
