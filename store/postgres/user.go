package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/store"
)

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	var isSeeker, isProvider sql.NullBool
	var matchingSummary, practicalContext, privateObservations sql.NullString
	var vector pgvector.Vector
	var hasVector bool
	err := row.Scan(
		&u.ID, &u.TelegramID, &isSeeker, &isProvider, &u.State,
		&matchingSummary, &practicalContext, &privateObservations,
		scanVectorPtr(&vector, &hasVector),
		&u.ProfilerVersion, &u.ProfileUpdatedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if isSeeker.Valid {
		v := isSeeker.Bool
		u.IsSeeker = &v
	}
	if isProvider.Valid {
		v := isProvider.Bool
		u.IsProvider = &v
	}
	u.MatchingSummary = matchingSummary.String
	u.PracticalContext = practicalContext.String
	u.PrivateObservations = privateObservations.String
	if hasVector {
		u.Embedding = vector.Slice()
	}
	return &u, nil
}

// scanVectorPtr lets a nullable pgvector column scan into a plain
// pgvector.Vector while tracking whether a value was present.
func scanVectorPtr(vector *pgvector.Vector, hasValue *bool) *nullVector {
	return &nullVector{vector: vector, hasValue: hasValue}
}

type nullVector struct {
	vector   *pgvector.Vector
	hasValue *bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		*n.hasValue = false
		return nil
	}
	*n.hasValue = true
	return n.vector.Scan(src)
}

const userColumns = `id, telegram_id, is_seeker, is_provider, state,
	matching_summary, practical_context, private_observations, embedding,
	profiler_version, profile_updated_at, created_at, updated_at`

func (d *DB) GetOrCreateUser(ctx context.Context, telegramID int64) (*store.User, error) {
	u, err := d.GetUser(ctx, &store.FindUser{TelegramID: &telegramID})
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	stmt := `
		INSERT INTO users (telegram_id, state, profiler_version, profile_updated_at, created_at, updated_at)
		VALUES (` + placeholders(3) + `, now(), now(), now())
		ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
		RETURNING ` + userColumns

	row := d.db.QueryRowContext(ctx, stmt, telegramID, store.UserStateOnboarding, 0)
	user, err := scanUser(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get or create user")
	}
	return user, nil
}

func (d *DB) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.TelegramID != nil {
		where, args = append(where, "telegram_id = "+placeholder(len(args)+1)), append(args, *find.TelegramID)
	}
	if find.State != nil {
		where, args = append(where, "state = "+placeholder(len(args)+1)), append(args, *find.State)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(where, " AND ") + ` LIMIT 1`
	row := d.db.QueryRowContext(ctx, query, args...)
	user, err := scanUser(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get user")
	}
	return user, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil {
		if find.ID != nil {
			where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
		}
		if find.TelegramID != nil {
			where, args = append(where, "telegram_id = "+placeholder(len(args)+1)), append(args, *find.TelegramID)
		}
		if find.State != nil {
			where, args = append(where, "state = "+placeholder(len(args)+1)), append(args, *find.State)
		}
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	list := []*store.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	set, args := []string{}, []any{}
	if update.IsSeeker != nil {
		set, args = append(set, "is_seeker = "+placeholder(len(args)+1)), append(args, *update.IsSeeker)
	}
	if update.IsProvider != nil {
		set, args = append(set, "is_provider = "+placeholder(len(args)+1)), append(args, *update.IsProvider)
	}
	if update.State != nil {
		set, args = append(set, "state = "+placeholder(len(args)+1)), append(args, *update.State)
	}
	if update.MatchingSummary != nil {
		set, args = append(set, "matching_summary = "+placeholder(len(args)+1)), append(args, *update.MatchingSummary)
	}
	if update.PracticalContext != nil {
		set, args = append(set, "practical_context = "+placeholder(len(args)+1)), append(args, *update.PracticalContext)
	}
	if update.PrivateObservations != nil {
		set, args = append(set, "private_observations = "+placeholder(len(args)+1)), append(args, *update.PrivateObservations)
	}
	if update.Embedding != nil {
		set, args = append(set, "embedding = "+placeholder(len(args)+1)), append(args, pgvector.NewVector(update.Embedding))
	}
	if update.ProfilerVersion != nil {
		set, args = append(set, "profiler_version = "+placeholder(len(args)+1)), append(args, *update.ProfilerVersion)
	}
	if update.ProfileUpdatedAt != nil {
		set, args = append(set, "profile_updated_at = "+placeholder(len(args)+1)), append(args, *update.ProfileUpdatedAt)
	}
	set = append(set, "updated_at = now()")

	args = append(args, update.ID)
	query := `UPDATE users SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + userColumns
	row := d.db.QueryRowContext(ctx, query, args...)
	user, err := scanUser(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to update user %d", update.ID)
	}
	return user, nil
}

// NextUserForMatching implements next_user_for_matching(round) (§4.A): the
// oldest profile_updated_at active user with role and embedding present,
// not blocked by a pending handshake, and not already user_a this round.
func (d *DB) NextUserForMatching(ctx context.Context, round int32) (*store.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.state = 'active'
			AND u.embedding IS NOT NULL
			AND (u.is_seeker IS TRUE OR u.is_provider IS TRUE)
			AND NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE (m.user_a_id = u.id OR m.user_b_id = u.id)
					AND (
						m.status IN ('pending', 'qualified')
						OR (m.status = 'a_accepted' AND m.user_b_id = u.id)
						OR (m.status = 'b_accepted' AND m.user_a_id = u.id)
					)
			)
			AND NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE m.user_a_id = u.id AND m.matching_round = ` + placeholder(1) + `
			)
		ORDER BY u.profile_updated_at ASC, u.telegram_id ASC
		LIMIT 1
	`
	row := d.db.QueryRowContext(ctx, query, round)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find next user for matching")
	}
	return user, nil
}

func (d *DB) MaxRoundWithParticipants(ctx context.Context) (int32, error) {
	var round sql.NullInt32
	err := d.db.QueryRowContext(ctx, `SELECT max(matching_round) FROM matches`).Scan(&round)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get max round with participants")
	}
	if !round.Valid {
		return 0, nil
	}
	return round.Int32, nil
}

// SimilarOppositeRoleUsers implements similar_opposite_role_users (§4.A):
// top-k complementary-role users above the cosine similarity threshold,
// ordered by similarity descending.
func (d *DB) SimilarOppositeRoleUsers(ctx context.Context, user *store.User, threshold float64, k int, exclusions []int64) ([]store.CandidateUser, error) {
	if len(user.Embedding) == 0 {
		return nil, errors.New("user has no embedding")
	}

	roleConds := []string{}
	if user.IsSeeker != nil && *user.IsSeeker {
		roleConds = append(roleConds, "u.is_provider IS TRUE")
	}
	if user.IsProvider != nil && *user.IsProvider {
		roleConds = append(roleConds, "u.is_seeker IS TRUE")
	}
	if len(roleConds) == 0 {
		return nil, errors.New("user has no role to match against")
	}

	vector := pgvector.NewVector(user.Embedding)
	where := []string{
		"u.id != " + placeholder(1),
		"u.state IN ('active', 'updated')",
		"u.embedding IS NOT NULL",
		"(" + strings.Join(roleConds, " OR ") + ")",
	}
	args := []any{user.ID}

	if len(exclusions) > 0 {
		placeholdersList := make([]string, len(exclusions))
		for i, id := range exclusions {
			args = append(args, id)
			placeholdersList[i] = placeholder(len(args))
		}
		where = append(where, "u.id NOT IN ("+strings.Join(placeholdersList, ", ")+")")
	}

	args = append(args, vector)
	simExpr := "1 - (u.embedding <=> " + placeholder(len(args)) + ")"

	args = append(args, threshold)
	thresholdPlaceholder := placeholder(len(args))

	args = append(args, vector)
	orderVector := placeholder(len(args))

	args = append(args, k)
	limitPlaceholder := placeholder(len(args))

	query := `
		SELECT ` + prefixColumns("u", userColumns) + `, ` + simExpr + ` AS similarity
		FROM users u
		WHERE ` + strings.Join(where, " AND ") + `
			AND ` + simExpr + ` >= ` + thresholdPlaceholder + `
		ORDER BY u.embedding <=> ` + orderVector + `
		LIMIT ` + limitPlaceholder

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find similar opposite role users")
	}
	defer rows.Close()

	results := []store.CandidateUser{}
	for rows.Next() {
		u := &store.User{}
		var isSeeker, isProvider sql.NullBool
		var matchingSummary, practicalContext, privateObservations sql.NullString
		var embeddingVector pgvector.Vector
		var similarity float64
		err := rows.Scan(
			&u.ID, &u.TelegramID, &isSeeker, &isProvider, &u.State,
			&matchingSummary, &practicalContext, &privateObservations, &embeddingVector,
			&u.ProfilerVersion, &u.ProfileUpdatedAt, &u.CreatedAt, &u.UpdatedAt,
			&similarity,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan similar user")
		}
		if isSeeker.Valid {
			v := isSeeker.Bool
			u.IsSeeker = &v
		}
		if isProvider.Valid {
			v := isProvider.Bool
			u.IsProvider = &v
		}
		u.MatchingSummary = matchingSummary.String
		u.PracticalContext = practicalContext.String
		u.PrivateObservations = privateObservations.String
		u.Embedding = embeddingVector.Slice()
		results = append(results, store.CandidateUser{User: u, Similarity: similarity})
	}
	return results, rows.Err()
}

// MatchExclusionSet implements match_exclusion_set(user) (§4.A):
// counterpart ids permanently excluded, plus disqualified counterparts
// whose profile has not changed since disqualification.
func (d *DB) MatchExclusionSet(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT CASE WHEN m.user_a_id = ` + placeholder(1) + ` THEN m.user_b_id ELSE m.user_a_id END AS counterpart_id
		FROM matches m
		JOIN users a ON a.id = m.user_a_id
		LEFT JOIN users b ON b.id = m.user_b_id
		WHERE (m.user_a_id = ` + placeholder(1) + ` OR m.user_b_id = ` + placeholder(1) + `)
			AND m.user_b_id IS NOT NULL
			AND (
				m.status != 'disqualified'
				OR (a.profile_updated_at <= m.latest_profile_updated_at AND (b.profile_updated_at IS NULL OR b.profile_updated_at <= m.latest_profile_updated_at))
			)
	`
	rows, err := d.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute match exclusion set")
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan exclusion id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
