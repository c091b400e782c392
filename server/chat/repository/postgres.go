package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"workhub/server/chat/domain"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `user_id, name, email, avatar, status, timezone, role, title, department, location, join_date, bio, skills, github_username, linkedin_url, password_hash`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &u.Status, &u.Timezone, &u.Role, &u.Title, &u.Department, &u.Location, &u.JoinDate, &u.Bio, &u.Skills, &u.GithubUsername, &u.LinkedinURL, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u domain.User) error {
	skills := u.Skills
	if skills == nil {
		skills = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users(`+userColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, u.ID, u.Name, u.Email, u.Avatar, u.Status, u.Timezone, u.Role, u.Title, u.Department, u.Location, u.JoinDate, u.Bio, skills, u.GithubUsername, u.LinkedinURL, u.PasswordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("email %s: %w", u.Email, domain.ErrConflict)
	}
	return err
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, userID))
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email))
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY join_date, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, u domain.User) error {
	skills := u.Skills
	if skills == nil {
		skills = []string{}
	}
	cmd, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name=$2, title=$3, department=$4, location=$5, bio=$6, skills=$7, github_username=$8, linkedin_url=$9, avatar=$10, timezone=$11
		WHERE user_id=$1
	`, u.ID, u.Name, u.Title, u.Department, u.Location, u.Bio, skills, u.GithubUsername, u.LinkedinURL, u.Avatar, u.Timezone)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateUserStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET status=$1 WHERE user_id=$2`, status, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateChannel(ctx context.Context, ch domain.Channel) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO channels(channel_id, name, description, is_private, created_at, last_activity)
		VALUES($1, $2, $3, $4, $5, $6)
	`, ch.ID, ch.Name, ch.Description, ch.IsPrivate, ch.CreatedAt, ch.LastActivity)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("channel %s: %w", ch.ID, domain.ErrConflict)
	}
	if err != nil {
		return err
	}
	for _, userID := range ch.Members {
		if _, err := tx.Exec(ctx, `INSERT INTO channel_members(channel_id, user_id) VALUES($1, $2) ON CONFLICT DO NOTHING`, ch.ID, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.channel_id, c.name, c.description, c.is_private, c.created_at, c.last_activity,
		       COALESCE(array_agg(m.user_id ORDER BY m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM channels c
		LEFT JOIN channel_members m ON m.channel_id = c.channel_id
		GROUP BY c.channel_id
		ORDER BY c.created_at, c.channel_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Channel, 0)
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.IsPrivate, &ch.CreatedAt, &ch.LastActivity, &ch.Members); err != nil {
			return nil, err
		}
		items = append(items, ch)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, m domain.Message) error {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	rawAttachments, err := json.Marshal(attachments)
	if err != nil {
		return err
	}
	mentions := m.Mentions
	if mentions == nil {
		mentions = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO messages(message_id, channel_id, user_id, content, attachments, mentions, is_edited, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ChannelID, m.UserID, m.Content, rawAttachments, mentions, m.IsEdited, m.Timestamp); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE channels SET last_activity=$2 WHERE channel_id=$1`, m.ChannelID, m.Timestamp); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListMessages returns the newest limit messages of a channel, oldest first,
// with their reactions.
func (r *PostgresRepository) ListMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, channel_id, user_id, content, attachments, mentions, is_edited, created_at
		FROM (
			SELECT * FROM messages WHERE channel_id=$1 ORDER BY seq DESC LIMIT $2
		) recent
		ORDER BY seq ASC
	`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Message, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var (
			m              domain.Message
			rawAttachments []byte
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Content, &rawAttachments, &m.Mentions, &m.IsEdited, &m.Timestamp); err != nil {
			return nil, err
		}
		if len(rawAttachments) > 0 {
			if err := json.Unmarshal(rawAttachments, &m.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments of %s: %w", m.ID, err)
			}
		}
		if len(m.Attachments) == 0 {
			m.Attachments = nil
		}
		if len(m.Mentions) == 0 {
			m.Mentions = nil
		}
		m.Reactions = []domain.Reaction{}
		items = append(items, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return items, nil
	}

	reactions, err := r.listReactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if rs, ok := reactions[items[i].ID]; ok {
			items[i].Reactions = rs
		}
	}
	return items, nil
}

func (r *PostgresRepository) listReactions(ctx context.Context, messageIDs []string) (map[string][]domain.Reaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, emoji, user_id
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at, emoji, user_id
	`, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]domain.Reaction{}
	for rows.Next() {
		var messageID, emoji, userID string
		if err := rows.Scan(&messageID, &emoji, &userID); err != nil {
			return nil, err
		}
		out[messageID] = appendReactionUser(out[messageID], emoji, userID)
	}
	return out, rows.Err()
}

// ToggleReaction removes the (message, emoji, user) row when present and
// inserts it otherwise.
func (r *PostgresRepository) ToggleReaction(ctx context.Context, messageID, emoji, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND emoji=$2 AND user_id=$3`, messageID, emoji, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		_, err := tx.Exec(ctx, `INSERT INTO message_reactions(message_id, emoji, user_id) VALUES($1, $2, $3)`, messageID, emoji, userID)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func appendReactionUser(reactions []domain.Reaction, emoji, userID string) []domain.Reaction {
	for i := range reactions {
		if reactions[i].Emoji == emoji {
			reactions[i].Users = append(reactions[i].Users, userID)
			reactions[i].Count = len(reactions[i].Users)
			return reactions
		}
	}
	return append(reactions, domain.Reaction{Emoji: emoji, Count: 1, Users: []string{userID}})
}
