package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/store"
)

const chatColumns = `id, user_id, telegram_id, message_history, user_prompt,
	continuation_token, status_message_id, admin_thread_id, created_at, updated_at`

func scanChat(row interface{ Scan(...any) error }) (*store.Chat, error) {
	var c store.Chat
	var historyJSON []byte
	var userPrompt, continuationToken *string
	var statusMessageID, adminThreadID *int64
	err := row.Scan(
		&c.ID, &c.UserID, &c.TelegramID, &historyJSON, &userPrompt,
		&continuationToken, &statusMessageID, &adminThreadID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &c.MessageHistory); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal message history")
		}
	}
	c.UserPrompt = userPrompt
	c.ContinuationToken = continuationToken
	c.StatusMessageID = statusMessageID
	c.AdminThreadID = adminThreadID
	return &c, nil
}

func (d *DB) GetOrCreateChat(ctx context.Context, userID int64) (*store.Chat, error) {
	chat, err := d.GetChat(ctx, &store.FindChat{UserID: &userID})
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var telegramID int64
	if err := d.db.QueryRowContext(ctx, `SELECT telegram_id FROM users WHERE id = `+placeholder(1), userID).Scan(&telegramID); err != nil {
		return nil, wrapNotFound(err, "failed to resolve user %d for chat creation", userID)
	}

	stmt := `
		INSERT INTO chats (user_id, telegram_id, message_history, created_at, updated_at)
		VALUES (` + placeholders(2) + `, '[]', now(), now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + chatColumns

	row := d.db.QueryRowContext(ctx, stmt, userID, telegramID)
	newChat, err := scanChat(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get or create chat")
	}
	return newChat, nil
}

func (d *DB) GetChat(ctx context.Context, find *store.FindChat) (*store.Chat, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.TelegramID != nil {
		where, args = append(where, "telegram_id = "+placeholder(len(args)+1)), append(args, *find.TelegramID)
	}

	query := `SELECT ` + chatColumns + ` FROM chats WHERE ` + strings.Join(where, " AND ") + ` LIMIT 1`
	row := d.db.QueryRowContext(ctx, query, args...)
	chat, err := scanChat(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get chat")
	}
	return chat, nil
}

// UpdateChat applies a partial update, including appending to the history
// array (§4.F.7) and the null-clearing sentinels for prompt/continuation
// token/status message (§3: "nullable; cleared when invalidated").
func (d *DB) UpdateChat(ctx context.Context, update *store.UpdateChat) (*store.Chat, error) {
	current, err := d.GetChat(ctx, &store.FindChat{ID: &update.ID})
	if err != nil {
		return nil, err
	}

	set, args := []string{}, []any{}

	switch {
	case update.ClearHistory:
		set, args = append(set, "message_history = "+placeholder(len(args)+1)), append(args, []byte("[]"))
	case len(update.AppendHistory) > 0:
		merged := append(current.MessageHistory, update.AppendHistory...)
		historyJSON, err := json.Marshal(merged)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal message history")
		}
		set, args = append(set, "message_history = "+placeholder(len(args)+1)), append(args, historyJSON)
	}

	switch {
	case update.ClearUserPrompt:
		set = append(set, "user_prompt = NULL")
	case update.UserPrompt != nil:
		set, args = append(set, "user_prompt = "+placeholder(len(args)+1)), append(args, *update.UserPrompt)
	}

	switch {
	case update.ClearContinuationToken:
		set = append(set, "continuation_token = NULL")
	case update.ContinuationToken != nil:
		set, args = append(set, "continuation_token = "+placeholder(len(args)+1)), append(args, *update.ContinuationToken)
	}

	switch {
	case update.ClearStatusMessageID:
		set = append(set, "status_message_id = NULL")
	case update.StatusMessageID != nil:
		set, args = append(set, "status_message_id = "+placeholder(len(args)+1)), append(args, *update.StatusMessageID)
	}

	if update.AdminThreadID != nil {
		set, args = append(set, "admin_thread_id = "+placeholder(len(args)+1)), append(args, *update.AdminThreadID)
	}

	if len(set) == 0 {
		return current, nil
	}
	set = append(set, "updated_at = now()")

	args = append(args, update.ID)
	query := `UPDATE chats SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + chatColumns
	row := d.db.QueryRowContext(ctx, query, args...)
	chat, err := scanChat(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to update chat %d", update.ID)
	}
	return chat, nil
}
