package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/repository"
)

// GameRepo implements repository.GameRepository against a games table joined
// with per-game theme/phase tags.
type GameRepo struct {
	db *DB
}

// NewGameRepo creates a new game repository.
func NewGameRepo(db *DB) *GameRepo {
	return &GameRepo{db: db}
}

// FetchCandidates honors plan filters and rating bounds, ordering by rating
// then played_on then id for deterministic tie-breaking downstream.
func (r *GameRepo) FetchCandidates(ctx context.Context, plan intent.Plan, limit, offset int) (repository.GameSearchResult, error) {
	where, args := buildWhere(plan)

	countQuery := "SELECT COUNT(*) FROM games g" + where
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return repository.GameSearchResult{}, fmt.Errorf("counting games: %w", err)
	}

	listQuery := `
		SELECT g.id, g.white, g.black, g.white_rating, g.black_rating, g.event,
		       g.played_on, g.result, g.eco_code, g.opening_slug, g.opening_name
		FROM games g` + where +
		fmt.Sprintf(" ORDER BY g.white_rating DESC NULLS LAST, g.played_on DESC NULLS LAST, g.id LIMIT $%d OFFSET $%d",
			len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, listQuery, args...)
	if err != nil {
		return repository.GameSearchResult{}, fmt.Errorf("fetching game candidates: %w", err)
	}
	defer rows.Close()

	var summaries []repository.GameSummary
	for rows.Next() {
		var s repository.GameSummary
		if err := rows.Scan(&s.ID, &s.White, &s.Black, &s.WhiteRating, &s.BlackRating,
			&s.Event, &s.PlayedOn, &s.Result, &s.ECOCode, &s.OpeningSlug, &s.OpeningName); err != nil {
			return repository.GameSearchResult{}, fmt.Errorf("scanning game summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return repository.GameSearchResult{}, fmt.Errorf("iterating game candidates: %w", err)
	}

	return repository.GameSearchResult{Summaries: summaries, Total: total}, nil
}

// FetchPGNs returns raw PGN text keyed by game id.
func (r *GameRepo) FetchPGNs(ctx context.Context, gameIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(gameIDs))
	if len(gameIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT id, pgn FROM games WHERE id = ANY($1)`, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching pgns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var pgn string
		if err := rows.Scan(&id, &pgn); err != nil {
			return nil, fmt.Errorf("scanning pgn: %w", err)
		}
		out[id] = pgn
	}
	return out, rows.Err()
}

// buildWhere translates plan filters and rating bounds into a SQL WHERE
// clause and its positional args. ECO ranges are resolved here (not in the
// vector store) because they're a relational range predicate.
func buildWhere(plan intent.Plan) (string, []any) {
	var clauses []string
	var args []any

	for _, f := range plan.Filters {
		switch f.Field {
		case intent.FieldOpening:
			args = append(args, f.Value)
			clauses = append(clauses, fmt.Sprintf("g.opening_slug = $%d", len(args)))
		case intent.FieldECORange:
			lo, hi, ok := splitECORange(f.Value)
			if ok {
				args = append(args, lo, hi)
				clauses = append(clauses, fmt.Sprintf("g.eco_code BETWEEN $%d AND $%d", len(args)-1, len(args)))
			}
		case intent.FieldResult:
			args = append(args, f.Value)
			clauses = append(clauses, fmt.Sprintf("g.result = $%d", len(args)))
		case intent.FieldPhase:
			args = append(args, f.Value)
			clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM game_phases gp WHERE gp.game_id = g.id AND gp.phase = $%d)", len(args)))
		case intent.FieldTheme:
			args = append(args, f.Value)
			clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM game_themes gt WHERE gt.game_id = g.id AND gt.theme = $%d)", len(args)))
		}
	}

	if plan.Rating.WhiteMin != nil {
		args = append(args, *plan.Rating.WhiteMin)
		clauses = append(clauses, fmt.Sprintf("g.white_rating >= $%d", len(args)))
	}
	if plan.Rating.BlackMin != nil {
		args = append(args, *plan.Rating.BlackMin)
		clauses = append(clauses, fmt.Sprintf("g.black_rating >= $%d", len(args)))
	}
	if plan.Rating.MaxRatingDelta != nil {
		args = append(args, *plan.Rating.MaxRatingDelta)
		clauses = append(clauses, fmt.Sprintf("ABS(COALESCE(g.white_rating,0) - COALESCE(g.black_rating,0)) <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// splitECORange parses "A00-E99" or a single code like "B01" into bounds.
func splitECORange(value string) (lo, hi string, ok bool) {
	parts := strings.SplitN(value, "-", 2)
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	if len(parts) == 1 && parts[0] != "" {
		return parts[0], parts[0], true
	}
	return "", "", false
}

var _ repository.GameRepository = (*GameRepo)(nil)
