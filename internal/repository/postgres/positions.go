package postgres

import (
	"context"
	"fmt"

	"github.com/hendrikreh/chessmate/internal/worker"
)

// PositionRepo implements worker.PositionFetcher against a positions table
// (one row per FEN an embedding job was created for) joined back to its
// parent game for the metadata a vector store upsert payload needs.
type PositionRepo struct {
	db *DB
}

// NewPositionRepo creates a new position metadata repository.
func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// FetchPositionMeta resolves the game and tag metadata for one position.
func (r *PositionRepo) FetchPositionMeta(ctx context.Context, positionID int64) (worker.PositionMeta, error) {
	var meta worker.PositionMeta
	err := r.db.Pool.QueryRow(ctx, `
		SELECT g.id, g.white, g.black, g.white_rating, g.black_rating, g.opening_slug
		FROM positions p
		JOIN games g ON g.id = p.game_id
		WHERE p.id = $1
	`, positionID).Scan(&meta.GameID, &meta.White, &meta.Black, &meta.WhiteRating, &meta.BlackRating, &meta.OpeningSlug)
	if err != nil {
		return worker.PositionMeta{}, fmt.Errorf("fetching position metadata: %w", err)
	}

	phases, err := r.tagList(ctx, "game_phases", "phase", meta.GameID)
	if err != nil {
		return worker.PositionMeta{}, err
	}
	meta.Phases = phases

	themes, err := r.tagList(ctx, "game_themes", "theme", meta.GameID)
	if err != nil {
		return worker.PositionMeta{}, err
	}
	meta.Themes = themes

	keywords, err := r.tagList(ctx, "game_keywords", "keyword", meta.GameID)
	if err != nil {
		return worker.PositionMeta{}, err
	}
	meta.Keywords = keywords

	return meta, nil
}

// tagList reads a one-column-per-row tag table (game_phases.phase,
// game_themes.theme, game_keywords.keyword), all three sharing the same
// (game_id, <column>) shape.
func (r *PositionRepo) tagList(ctx context.Context, table, column string, gameID int64) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE game_id = $1`, column, table), gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var _ worker.PositionFetcher = (*PositionRepo)(nil)
