package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/store"
)

const generationColumns = `id, chat_id, match_id, scheduled_for, status, started_at,
	cached_input_tokens, uncached_input_tokens, output_tokens, cost_usd,
	provider_response_id, placeholder_message_id, created_at`

func scanGeneration(row interface{ Scan(...any) error }) (*store.Generation, error) {
	var g store.Generation
	var chatID sql.NullInt64
	var matchID uuid.NullUUID
	var placeholderMessageID sql.NullInt64
	var startedAt sql.NullTime
	var costUSD sql.NullFloat64
	var providerResponseID sql.NullString
	err := row.Scan(
		&g.ID, &chatID, &matchID, &g.ScheduledFor, &g.Status, &startedAt,
		&g.CachedInputTokens, &g.UncachedInputTokens, &g.OutputTokens, &costUSD,
		&providerResponseID, &placeholderMessageID, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if chatID.Valid {
		v := chatID.Int64
		g.ChatID = &v
	}
	if matchID.Valid {
		v := matchID.UUID
		g.MatchID = &v
	}
	if startedAt.Valid {
		v := startedAt.Time
		g.StartedAt = &v
	}
	if costUSD.Valid {
		v := costUSD.Float64
		g.CostUSD = &v
	}
	if providerResponseID.Valid {
		v := providerResponseID.String
		g.ProviderResponseID = &v
	}
	if placeholderMessageID.Valid {
		v := placeholderMessageID.Int64
		g.PlaceholderMessageID = &v
	}
	return &g, nil
}

// CreateGeneration persists a pending generation row. The caller (the
// Generation Scheduler) is responsible for computing scheduledFor from
// max_scheduled_for() and budget_interval() before calling this (§4.E).
func (d *DB) CreateGeneration(ctx context.Context, ref store.TaskRef, scheduledFor time.Time) (*store.Generation, error) {
	if ref.ChatID == nil && ref.MatchID == nil {
		return nil, errors.Wrap(store.ErrInvariant, "generation must reference exactly one of chat id or match id")
	}
	if ref.ChatID != nil && ref.MatchID != nil {
		return nil, errors.Wrap(store.ErrInvariant, "generation must reference exactly one of chat id or match id")
	}

	stmt := `
		INSERT INTO generations (id, chat_id, match_id, scheduled_for, status, created_at)
		VALUES (` + placeholders(5) + `, now())
		RETURNING ` + generationColumns

	row := d.db.QueryRowContext(ctx, stmt, uuid.New(), ref.ChatID, ref.MatchID, scheduledFor, store.GenerationPending)
	g, err := scanGeneration(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create generation")
	}
	return g, nil
}

func (d *DB) GetGeneration(ctx context.Context, id uuid.UUID) (*store.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = ` + placeholder(1)
	row := d.db.QueryRowContext(ctx, query, id)
	g, err := scanGeneration(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get generation %s", id)
	}
	return g, nil
}

// UpdateGeneration applies the pending->started->{completed|failed}
// transition along with usage/cost bookkeeping (§3 invariant).
func (d *DB) UpdateGeneration(ctx context.Context, update *store.UpdateGeneration) (*store.Generation, error) {
	set, args := []string{}, []any{}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *update.Status)
	}
	if update.StartedAt != nil {
		set, args = append(set, "started_at = "+placeholder(len(args)+1)), append(args, *update.StartedAt)
	}
	if update.CachedInputTokens != nil {
		set, args = append(set, "cached_input_tokens = "+placeholder(len(args)+1)), append(args, *update.CachedInputTokens)
	}
	if update.UncachedInputTokens != nil {
		set, args = append(set, "uncached_input_tokens = "+placeholder(len(args)+1)), append(args, *update.UncachedInputTokens)
	}
	if update.OutputTokens != nil {
		set, args = append(set, "output_tokens = "+placeholder(len(args)+1)), append(args, *update.OutputTokens)
	}
	if update.CostUSD != nil {
		set, args = append(set, "cost_usd = "+placeholder(len(args)+1)), append(args, *update.CostUSD)
	}
	if update.ProviderResponseID != nil {
		set, args = append(set, "provider_response_id = "+placeholder(len(args)+1)), append(args, *update.ProviderResponseID)
	}
	switch {
	case update.ClearPlaceholder:
		set = append(set, "placeholder_message_id = NULL")
	case update.PlaceholderMessageID != nil:
		set, args = append(set, "placeholder_message_id = "+placeholder(len(args)+1)), append(args, *update.PlaceholderMessageID)
	}

	if len(set) == 0 {
		return d.GetGeneration(ctx, update.ID)
	}

	args = append(args, update.ID)
	query := `UPDATE generations SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + generationColumns
	row := d.db.QueryRowContext(ctx, query, args...)
	g, err := scanGeneration(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to update generation %s", update.ID)
	}
	return g, nil
}

// NextPendingGeneration implements next_pending_generation(now) (§4.A):
// least scheduled_for <= now, pending, ties broken by id.
func (d *DB) NextPendingGeneration(ctx context.Context, now time.Time) (*store.Generation, error) {
	query := `
		SELECT ` + generationColumns + `
		FROM generations
		WHERE status = 'pending' AND scheduled_for <= ` + placeholder(1) + `
		ORDER BY scheduled_for ASC, id ASC
		LIMIT 1
	`
	row := d.db.QueryRowContext(ctx, query, now)
	g, err := scanGeneration(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find next pending generation")
	}
	return g, nil
}

// MinPendingScheduledFor implements min_pending_scheduled_for() (§4.A).
func (d *DB) MinPendingScheduledFor(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := d.db.QueryRowContext(ctx, `SELECT min(scheduled_for) FROM generations WHERE status = 'pending'`).Scan(&t)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get min pending scheduled_for")
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// MaxScheduledFor implements max_scheduled_for() (§4.A).
func (d *DB) MaxScheduledFor(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := d.db.QueryRowContext(ctx, `SELECT max(scheduled_for) FROM generations`).Scan(&t)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get max scheduled_for")
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// LastCostGeneration implements last_cost_generation() (§4.A): the most
// recently started generation with a non-null cost, used for budget pacing.
func (d *DB) LastCostGeneration(ctx context.Context) (*store.Generation, error) {
	query := `
		SELECT ` + generationColumns + `
		FROM generations
		WHERE cost_usd IS NOT NULL AND started_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1
	`
	row := d.db.QueryRowContext(ctx, query)
	g, err := scanGeneration(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get last cost generation")
	}
	return g, nil
}

// PendingGenerationForChat returns the chat's most recent generation if it
// is still pending, for coalescer reuse (§4.F step 2).
func (d *DB) PendingGenerationForChat(ctx context.Context, chatID int64) (*store.Generation, error) {
	query := `
		SELECT ` + generationColumns + `
		FROM generations
		WHERE chat_id = ` + placeholder(1) + ` AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := d.db.QueryRowContext(ctx, query, chatID)
	g, err := scanGeneration(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find pending generation for chat")
	}
	return g, nil
}
