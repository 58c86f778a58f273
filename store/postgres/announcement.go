package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/store"
)

const announcementColumns = `id, user_group_id, body, source_message_id, status, created_at, sent_at`

func scanAnnouncement(row interface{ Scan(...any) error }) (*store.Announcement, error) {
	var a store.Announcement
	var sentAt sql.NullTime
	err := row.Scan(&a.ID, &a.UserGroupID, &a.Body, &a.SourceMessageID, &a.Status, &a.CreatedAt, &sentAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		v := sentAt.Time
		a.SentAt = &v
	}
	return &a, nil
}

func (d *DB) CreateAnnouncement(ctx context.Context, a *store.Announcement) (*store.Announcement, error) {
	stmt := `
		INSERT INTO announcements (user_group_id, body, source_message_id, status, created_at)
		VALUES (` + placeholders(4) + `, now())
		RETURNING ` + announcementColumns

	row := d.db.QueryRowContext(ctx, stmt, a.UserGroupID, a.Body, a.SourceMessageID, store.AnnouncementPending)
	created, err := scanAnnouncement(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create announcement")
	}
	return created, nil
}

func (d *DB) GetAnnouncement(ctx context.Context, find *store.FindAnnouncement) (*store.Announcement, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.SourceMessageID != nil {
		where, args = append(where, "source_message_id = "+placeholder(len(args)+1)), append(args, *find.SourceMessageID)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *find.Status)
	}

	query := `SELECT ` + announcementColumns + ` FROM announcements WHERE ` + strings.Join(where, " AND ") + ` LIMIT 1`
	row := d.db.QueryRowContext(ctx, query, args...)
	a, err := scanAnnouncement(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get announcement")
	}
	return a, nil
}

func (d *DB) UpdateAnnouncement(ctx context.Context, update *store.UpdateAnnouncement) (*store.Announcement, error) {
	set, args := []string{}, []any{}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *update.Status)
	}
	if update.SentAt != nil {
		set, args = append(set, "sent_at = "+placeholder(len(args)+1)), append(args, *update.SentAt)
	}
	if len(set) == 0 {
		return d.GetAnnouncement(ctx, &store.FindAnnouncement{ID: &update.ID})
	}

	args = append(args, update.ID)
	query := `UPDATE announcements SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + announcementColumns
	row := d.db.QueryRowContext(ctx, query, args...)
	a, err := scanAnnouncement(row)
	if err != nil {
		return nil, wrapNotFound(err, "failed to update announcement %d", update.ID)
	}
	return a, nil
}

func (d *DB) GetUserGroup(ctx context.Context, find *store.FindUserGroup) (*store.UserGroup, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *find.Name)
	}

	query := `SELECT id, name, filter_expr, created_at FROM user_groups WHERE ` + strings.Join(where, " AND ") + ` LIMIT 1`
	row := d.db.QueryRowContext(ctx, query, args...)
	var g store.UserGroup
	if err := row.Scan(&g.ID, &g.Name, &g.FilterExpr, &g.CreatedAt); err != nil {
		return nil, wrapNotFound(err, "failed to get user group")
	}
	return &g, nil
}

func (d *DB) ListUserGroups(ctx context.Context) ([]*store.UserGroup, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, filter_expr, created_at FROM user_groups ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user groups")
	}
	defer rows.Close()

	list := []*store.UserGroup{}
	for rows.Next() {
		var g store.UserGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.FilterExpr, &g.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan user group")
		}
		list = append(list, &g)
	}
	return list, rows.Err()
}

// ListUsersForGroup returns the users materialized into a group's
// membership table (refreshed by announce.Sender via CEL filtering).
func (d *DB) ListUsersForGroup(ctx context.Context, groupID int64) ([]*store.User, error) {
	query := `
		SELECT ` + prefixColumns("u", userColumns) + `
		FROM users u
		JOIN user_group_members m ON m.user_id = u.id
		WHERE m.user_group_id = ` + placeholder(1) + `
		ORDER BY u.id
	`
	rows, err := d.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users for group")
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

// ReplaceUserGroupMembers overwrites the membership set for a group inside
// a single transaction, used after re-evaluating its CEL filter expression.
func (d *DB) ReplaceUserGroupMembers(ctx context.Context, groupID int64, userIDs []int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_group_members WHERE user_group_id = `+placeholder(1), groupID); err != nil {
		return errors.Wrap(err, "failed to clear user group members")
	}

	for _, userID := range userIDs {
		stmt := `INSERT INTO user_group_members (user_group_id, user_id, added_at) VALUES (` + placeholders(2) + `, now())`
		if _, err := tx.ExecContext(ctx, stmt, groupID, userID); err != nil {
			return errors.Wrap(err, "failed to insert user group member")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit user group membership update")
}
