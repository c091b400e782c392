package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id         TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		email           TEXT NOT NULL UNIQUE,
		avatar          TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'offline',
		timezone        TEXT NOT NULL DEFAULT 'UTC',
		role            TEXT NOT NULL DEFAULT 'member',
		title           TEXT NOT NULL DEFAULT '',
		department      TEXT NOT NULL DEFAULT '',
		location        TEXT NOT NULL DEFAULT '',
		join_date       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		bio             TEXT NOT NULL DEFAULT '',
		skills          TEXT[] NOT NULL DEFAULT '{}',
		github_username TEXT,
		linkedin_url    TEXT,
		password_hash   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		channel_id    TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT,
		is_private    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS channel_members (
		channel_id TEXT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq         BIGSERIAL UNIQUE,
		message_id  TEXT PRIMARY KEY,
		channel_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		content     TEXT NOT NULL DEFAULT '',
		attachments JSONB NOT NULL DEFAULT '[]',
		mentions    TEXT[] NOT NULL DEFAULT '{}',
		is_edited   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_channel_seq_idx ON messages(channel_id, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
		message_id TEXT NOT NULL REFERENCES messages(message_id) ON DELETE CASCADE,
		emoji      TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		PRIMARY KEY (message_id, emoji, user_id)
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
