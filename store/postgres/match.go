package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/store"
)

const matchColumns = `id, user_a_id, user_b_id, similarity_score, match_rationale,
	matching_round, status, latest_profile_updated_at, created_at, updated_at`

func scanMatch(row interface{ Scan(...any) error }) (*store.Match, error) {
	var m store.Match
	var userBID sql.NullInt64
	var similarityScore sql.NullFloat64
	var matchRationale sql.NullString
	err := row.Scan(
		&m.ID, &m.UserAID, &userBID, &similarityScore, &matchRationale,
		&m.MatchingRound, &m.Status, &m.LatestProfileUpdatedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userBID.Valid {
		v := userBID.Int64
		m.UserBID = &v
	}
	if similarityScore.Valid {
		v := similarityScore.Float64
		m.SimilarityScore = &v
	}
	m.MatchRationale = matchRationale.String
	return &m, nil
}

// CreateMatch persists a pair match or a participation record
// (UserBID == nil, §3 match tri-state).
func (d *DB) CreateMatch(ctx context.Context, match *store.Match) (*store.Match, error) {
	if match.MatchingRound == 0 {
		match.MatchingRound = 1
	}
	stmt := `
		INSERT INTO matches (id, user_a_id, user_b_id, similarity_score, match_rationale, matching_round, status, latest_profile_updated_at, created_at, updated_at)
		VALUES (` + placeholders(8) + `, now(), now())
		RETURNING ` + matchColumns

	row := d.db.QueryRowContext(ctx, stmt,
		uuid.New(), match.UserAID, match.UserBID, match.SimilarityScore, match.MatchRationale,
		match.MatchingRound, match.Status, match.LatestProfileUpdatedAt,
	)
	m, err := scanMatch(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create match")
	}
	return m, nil
}

func (d *DB) GetMatch(ctx context.Context, id uuid.UUID) (*store.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = ` + placeholder(1)
	row := d.db.QueryRowContext(ctx, query, id)
	m, err := scanMatch(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get match %s", id)
	}
	return m, nil
}

// UpdateMatch applies a consent-state-machine transition (§4.H) or
// rationale/similarity bookkeeping.
func (d *DB) UpdateMatch(ctx context.Context, update *store.UpdateMatch) (*store.Match, error) {
	set, args := []string{}, []any{}
	if update.SimilarityScore != nil {
		set, args = append(set, "similarity_score = "+placeholder(len(args)+1)), append(args, *update.SimilarityScore)
	}
	if update.MatchRationale != nil {
		set, args = append(set, "match_rationale = "+placeholder(len(args)+1)), append(args, *update.MatchRationale)
	}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *update.Status)
	}
	if len(set) == 0 {
		return d.GetMatch(ctx, update.ID)
	}
	set = append(set, "updated_at = now()")

	args = append(args, update.ID)
	query := `UPDATE matches SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + matchColumns
	row := d.db.QueryRowContext(ctx, query, args...)
	m, err := scanMatch(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to update match %s", update.ID)
	}
	return m, nil
}

func (d *DB) ListMatches(ctx context.Context, find *store.FindMatch) ([]*store.Match, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil {
		if find.ID != nil {
			where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
		}
		if find.UserAID != nil {
			where, args = append(where, "user_a_id = "+placeholder(len(args)+1)), append(args, *find.UserAID)
		}
		if find.UserBID != nil {
			where, args = append(where, "user_b_id = "+placeholder(len(args)+1)), append(args, *find.UserBID)
		}
		if find.MatchingRound != nil {
			where, args = append(where, "matching_round = "+placeholder(len(args)+1)), append(args, *find.MatchingRound)
		}
		if find.Status != nil {
			where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *find.Status)
		}
	}

	query := `SELECT ` + matchColumns + ` FROM matches WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list matches")
	}
	defer rows.Close()

	list := []*store.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan match")
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
