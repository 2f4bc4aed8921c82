package userservice

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

var (
	ErrDuplicateEmail = errors.New("duplicate email")
	ErrNotFound       = errors.New("user not found")
	ErrEditConflict   = errors.New("edit conflict")
)

func newUserModel(db *sql.DB) *DBModel {
	return &DBModel{db: db}
}

// uniqueViolation reports whether err is a unique constraint violation on the named constraint.
func uniqueViolation(err error, name string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == name
	}

	return false
}

func (m *DBModel) insertUser(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (email, password, profile_image)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at, version`

	args := []any{
		u.Email,
		u.Password.hash,
		u.ProfileImage,
	}

	err := m.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Version)
	if err != nil {
		switch {
		case uniqueViolation(err, "users_email_key"):
			return ErrDuplicateEmail
		default:
			return err
		}
	}
	return nil
}

func (m *DBModel) getUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password, profile_image, created_at, updated_at, version
		FROM users
		WHERE email = $1`

	var u User

	err := m.db.QueryRowContext(ctx, query, email).Scan(&u.ID, &u.Email, &u.Password.hash, &u.ProfileImage, &u.CreatedAt, &u.UpdatedAt, &u.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}

	return &u, nil
}

func (m *DBModel) getUserByID(ctx context.Context, id int) (*User, error) {
	query := `
		SELECT id, email, profile_image, created_at, updated_at, version
		FROM users
		WHERE id = $1`

	var u User

	err := m.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.ProfileImage, &u.CreatedAt, &u.UpdatedAt, &u.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}

	return &u, nil
}

func (m *DBModel) updateProfileImage(ctx context.Context, u *User) error {
	query := `
		UPDATE users
		SET profile_image = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING updated_at, version`

	err := m.db.QueryRowContext(ctx, query, u.ProfileImage, u.ID, u.Version).Scan(&u.UpdatedAt, &u.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		default:
			return err
		}
	}

	return nil
}

// getSummaries returns the summary of every id that exists. Missing ids are absent from the map.
func (m *DBModel) getSummaries(ctx context.Context, ids []int) (map[int]Summary, error) {
	query := `
		SELECT id, email, profile_image
		FROM users
		WHERE id = ANY($1)`

	int64s := make([]int64, len(ids))
	for i, id := range ids {
		int64s[i] = int64(id)
	}

	rows, err := m.db.QueryContext(ctx, query, pq.Array(int64s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make(map[int]Summary, len(ids))
	for rows.Next() {
		var s Summary
		err := rows.Scan(&s.ID, &s.Email, &s.ProfileImage)
		if err != nil {
			return nil, err
		}
		summaries[s.ID] = s
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// getUserByToken returns the user owning an unexpired token of the given scope, with the token's expiry.
func (m *DBModel) getUserByToken(ctx context.Context, scope tokenScope, hash []byte) (*User, time.Time, error) {
	query := `
		SELECT u.id, u.email, u.profile_image, u.created_at, u.updated_at, u.version, t.expiry
		FROM users u
		INNER JOIN tokens t ON u.id = t.user_id
		WHERE t.hash = $1 AND t.scope = $2 AND t.expiry > $3`

	var (
		u      User
		expiry time.Time
	)

	err := m.db.QueryRowContext(ctx, query, hash, string(scope), time.Now()).Scan(&u.ID, &u.Email, &u.ProfileImage, &u.CreatedAt, &u.UpdatedAt, &u.Version, &expiry)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, time.Time{}, ErrNotFound
		default:
			return nil, time.Time{}, err
		}
	}

	return &u, expiry, nil
}
