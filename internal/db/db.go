package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func New(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

// Migrate creates the four relations. Chats carry no columns of their own;
// name and picture come from the counterpart at query time. All child rows
// cascade with their chat or user.
func (d *Database) Migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			name VARCHAR(50) NOT NULL,
			password VARCHAR(255) NOT NULL,
			picture TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS chats (
			id BIGSERIAL PRIMARY KEY
		)`,

		`CREATE TABLE IF NOT EXISTS chats_users (
			chat_id BIGINT REFERENCES chats(id) ON DELETE CASCADE,
			user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (chat_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			chat_id BIGINT REFERENCES chats(id) ON DELETE CASCADE,
			sender_id BIGINT REFERENCES users(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS messages_chat_created_idx
			ON messages (chat_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := d.Conn.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
