package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type Repository interface {
	Create(ctx context.Context, u *User) (*User, error)
	ByID(ctx context.Context, id int64) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	Search(ctx context.Context, query string, excludeID int64) ([]User, error)
	UpdatePicture(ctx context.Context, id int64, picture string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// uniqueViolation is the postgres class 23 code for a unique index breach,
// raised here only by the users.username index.
const uniqueViolation = "23505"

func (r *PostgresRepository) Create(ctx context.Context, u *User) (*User, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, username, password, picture)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, u.Name, u.Username, u.Password, u.Picture).Scan(&u.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) ByID(ctx context.Context, id int64) (*User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, username, password, picture
		FROM users WHERE id = $1`, id))
}

func (r *PostgresRepository) ByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, username, password, picture
		FROM users WHERE username = $1`, username))
}

func (r *PostgresRepository) Search(ctx context.Context, query string, excludeID int64) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, username, picture
		FROM users
		WHERE username ILIKE $1 AND id <> $2
		ORDER BY username
		LIMIT 10`, "%"+query+"%", excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Picture); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PostgresRepository) UpdatePicture(ctx context.Context, id int64, picture string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET picture = $2 WHERE id = $1", id, picture)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Password, &u.Picture)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
