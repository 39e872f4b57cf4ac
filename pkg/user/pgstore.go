package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskdesk/pkg/apperr"
)

const userColumns = `id, name, handle, secret_hash, avatar_url, role, token_version, created_at, updated_at`

// PgStore is a PostgreSQL-backed user store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the users table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			handle        TEXT NOT NULL,
			secret_hash   TEXT NOT NULL,
			avatar_url    TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT 'member',
			token_version INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS users_handle_lower_idx ON users(lower(handle))`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS users_role_idx ON users(role)`)
	return err
}

// Create inserts a new user.
func (s *PgStore) Create(ctx context.Context, u *User) (*User, error) {
	u.ID = uuid.Must(uuid.NewV7()).String()
	now := time.Now().Truncate(time.Microsecond)
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Handle = NormalizeHandle(u.Handle)
	if u.Role == "" {
		u.Role = RoleMember
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, handle, secret_hash, avatar_url, role, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Name, u.Handle, u.SecretHash, u.AvatarURL, string(u.Role), u.TokenVersion, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "create user "+u.Handle)
	}
	return u, nil
}

// Get returns a user by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err, "get user "+id)
	}
	return u, nil
}

// ByHandle returns a user by handle, compared case-insensitively.
func (s *PgStore) ByHandle(ctx context.Context, handle string) (*User, error) {
	u, err := s.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(handle) = lower($1)`, handle)
	if err != nil {
		return nil, mapErr(err, "user by handle "+handle)
	}
	return u, nil
}

// GetMany returns the users with the given IDs.
func (s *PgStore) GetMany(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()
	return scanUserRows(rows)
}

// Update modifies user fields.
func (s *PgStore) Update(ctx context.Context, id string, updates map[string]any) (*User, error) {
	now := time.Now().Truncate(time.Microsecond)

	setClauses := "updated_at = $1"
	args := []any{now}
	argIdx := 2

	for k, v := range updates {
		switch k {
		case "name", "secret_hash", "avatar_url", "token_version":
			setClauses += fmt.Sprintf(", %s = $%d", k, argIdx)
			args = append(args, v)
			argIdx++
		case "handle":
			h, _ := v.(string)
			setClauses += fmt.Sprintf(", handle = $%d", argIdx)
			args = append(args, NormalizeHandle(h))
			argIdx++
		}
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s", setClauses, argIdx, userColumns)

	u, err := s.scanOne(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "update user "+id)
	}
	return u, nil
}

// Delete removes a user.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// List returns users with the given role, or all users when role is empty.
func (s *PgStore) List(ctx context.Context, role Role) ([]User, error) {
	var rows pgx.Rows
	var err error
	if role != "" {
		rows, err = s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at ASC`, string(role))
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return scanUserRows(rows)
}

func (s *PgStore) scanOne(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	var role string
	err := s.pool.QueryRow(ctx, query, args...).
		Scan(&u.ID, &u.Name, &u.Handle, &u.SecretHash, &u.AvatarURL, &role, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func scanUserRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Handle, &u.SecretHash, &u.AvatarURL, &role, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Role = Role(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return users, nil
}

// mapErr classifies driver errors: missing rows become not-found and unique
// violations on the handle index become conflicts.
func mapErr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("user not found").Wrap(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("handle already in use").Wrap(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
