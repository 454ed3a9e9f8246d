package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultPageSize caps message pages when the caller asks for zero or a
// negative limit.
const DefaultPageSize = 20

// PostgresStore is the production Store. Each Session checks one connection
// out of the pool and keeps it until Close, so every statement of a request
// runs on the same backend.
type PostgresStore struct {
	db  *sql.DB
	pub Publisher
}

func NewPostgresStore(db *sql.DB, pub Publisher) *PostgresStore {
	return &PostgresStore{db: db, pub: pub}
}

func (s *PostgresStore) Session(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout connection: %w", err)
	}
	return &pgSession{conn: conn, pub: s.pub}, nil
}

type pgSession struct {
	conn *sql.Conn
	pub  Publisher
}

func (s *pgSession) Close() error { return s.conn.Close() }

func (s *pgSession) ChatByID(ctx context.Context, chatID int64) (*Chat, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, "SELECT id FROM chats WHERE id = $1", chatID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.loadChat(ctx, id)
}

func (s *pgSession) ChatsByUser(ctx context.Context, userID int64) ([]*Chat, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT cu.chat_id
		FROM chats_users cu
		WHERE cu.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chats := make([]*Chat, 0, len(ids))
	for _, id := range ids {
		c, err := s.loadChat(ctx, id)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, nil
}

func (s *pgSession) ChatForUser(ctx context.Context, chatID, userID int64) (*Chat, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, `
		SELECT c.id
		FROM chats c
		JOIN chats_users cu ON cu.chat_id = c.id AND cu.user_id = $2
		WHERE c.id = $1`, chatID, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.loadChat(ctx, id)
}

func (s *pgSession) GetOrCreateDirectChat(ctx context.Context, userID, recipientID int64) (*Chat, bool, error) {
	// Existence check first, insert after. The two steps are deliberately
	// not one serializable unit: two concurrent first-contact calls for the
	// same pair can both miss here and each create a chat.
	existing, err := s.pairChat(ctx, userID, recipientID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var chatID int64
	if err := tx.QueryRowContext(ctx, "INSERT INTO chats DEFAULT VALUES RETURNING id").Scan(&chatID); err != nil {
		return nil, false, fmt.Errorf("insert chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chats_users (chat_id, user_id) VALUES ($1, $2), ($1, $3)",
		chatID, userID, recipientID); err != nil {
		return nil, false, fmt.Errorf("insert participants: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	created := &Chat{ID: chatID, ParticipantIDs: orderedPair(userID, recipientID)}
	s.pub.Publish(ctx, ChatAdded{Chat: *created})
	return created, true, nil
}

func (s *pgSession) RemoveChat(ctx context.Context, chatID, userID int64) (*Chat, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT c.id
		FROM chats c
		JOIN chats_users cu ON cu.chat_id = c.id AND cu.user_id = $2
		WHERE c.id = $1`, chatID, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	snapshot := &Chat{ID: id}
	snapshot.ParticipantIDs, err = participantIDs(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	// Cascades take the participant and message rows with the chat.
	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("delete chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.pub.Publish(ctx, ChatRemoved{ChatID: id, Chat: *snapshot})
	return snapshot, nil
}

func (s *pgSession) AppendMessage(ctx context.Context, chatID, senderID int64, content string) (*Message, error) {
	msg := &Message{ChatID: chatID, SenderID: senderID, Content: content}
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, chatID, senderID, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	s.pub.Publish(ctx, MessageAdded{Message: *msg})
	return msg, nil
}

func (s *pgSession) PaginateMessages(ctx context.Context, chatID int64, limit int, cursor string) (*MessagePage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	before, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if before > 0 {
		rows, err = s.conn.QueryContext(ctx, `
			SELECT id, chat_id, sender_id, content, created_at
			FROM messages
			WHERE chat_id = $1 AND created_at < $2
			ORDER BY created_at DESC
			LIMIT $3`, chatID, time.UnixMilli(before).UTC(), limit)
	} else {
		rows, err = s.conn.QueryContext(ctx, `
			SELECT id, chat_id, sender_id, content, created_at
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC
			LIMIT $2`, chatID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &MessagePage{Messages: reverseMessages(batch)}
	var oldest int64
	if len(page.Messages) > 0 {
		oldest = cursorMillis(page.Messages[0].CreatedAt)
	}
	page.Cursor = EncodeCursor(oldest)

	if oldest > 0 {
		err = s.conn.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM messages
				WHERE chat_id = $1 AND created_at < $2
			)`, chatID, time.UnixMilli(oldest).UTC()).Scan(&page.HasMore)
		if err != nil {
			return nil, err
		}
	}
	return page, nil
}

func (s *pgSession) OtherParticipant(ctx context.Context, chatID, userID int64) (*Member, error) {
	m := &Member{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.username, u.picture
		FROM users u
		JOIN chats_users cu ON cu.user_id = u.id
		WHERE cu.chat_id = $1 AND cu.user_id <> $2
		LIMIT 1`, chatID, userID).Scan(&m.ID, &m.Name, &m.Username, &m.Picture)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *pgSession) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	var ok bool
	err := s.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chats_users WHERE chat_id = $1 AND user_id = $2
		)`, chatID, userID).Scan(&ok)
	return ok, err
}

// pairChat finds the chat whose participant set is exactly the unordered
// pair. Chats always hold two participants, so a double membership join is
// sufficient.
func (s *pgSession) pairChat(ctx context.Context, userID, recipientID int64) (*Chat, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, `
		SELECT cu1.chat_id
		FROM chats_users cu1
		JOIN chats_users cu2 ON cu2.chat_id = cu1.chat_id
		WHERE cu1.user_id = $1 AND cu2.user_id = $2
		LIMIT 1`, userID, recipientID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.loadChat(ctx, id)
}

func (s *pgSession) loadChat(ctx context.Context, chatID int64) (*Chat, error) {
	ids, err := participantIDs(ctx, s.conn, chatID)
	if err != nil {
		return nil, err
	}
	return &Chat{ID: chatID, ParticipantIDs: ids}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func participantIDs(ctx context.Context, q querier, chatID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT user_id FROM chats_users WHERE chat_id = $1 ORDER BY user_id", chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func reverseMessages(desc []Message) []Message {
	asc := make([]Message, len(desc))
	for i, m := range desc {
		asc[len(desc)-1-i] = m
	}
	return asc
}

func orderedPair(a, b int64) []int64 {
	if a > b {
		a, b = b, a
	}
	return []int64{a, b}
}
