package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"auth-service/internal/identity"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Add(ctx context.Context, userID uuid.UUID, refreshToken, userAgent string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate session id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, refresh_token, user_agent, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $5)
	`, id, userID, refreshToken, userAgent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UserByRefreshToken is the authority on whether a refresh token is still
// redeemable: a token with no session row is rejected no matter how well it
// decodes.
func (r *Repository) UserByRefreshToken(ctx context.Context, refreshToken string, activeOnly bool) (identity.User, error) {
	query := `
		SELECT u.id, u.login, u.password_hash, u.first_name, u.last_name, u.is_active, u.created_at, u.updated_at
		FROM users u
		JOIN user_sessions s ON s.user_id = u.id
		WHERE s.refresh_token = $1
	`
	if activeOnly {
		query += ` AND s.is_active`
	}

	var user identity.User
	err := r.db.QueryRowContext(ctx, query, refreshToken).Scan(
		&user.ID, &user.Login, &user.PasswordHash, &user.FirstName,
		&user.LastName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, ErrSessionNotFound
		}
		return identity.User{}, fmt.Errorf("query user by refresh token: %w", err)
	}
	return user, nil
}

func (r *Repository) Delete(ctx context.Context, refreshToken string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM user_sessions
		WHERE refresh_token = $1
	`, refreshToken)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM user_sessions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions by user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted sessions rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) HistoryByUser(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_agent, updated_at
		FROM user_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.UserAgent, &entry.Time); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session history: %w", err)
	}
	return history, nil
}

// Rotate removes the redeemed session row and inserts its replacement in a
// single transaction, so a failure partway can never leave two live
// sessions, or none, for one logical login. The old row is locked first so
// concurrent redemptions of the same refresh token lose cleanly.
func (r *Repository) Rotate(ctx context.Context, oldToken, newToken, userAgent string) error {
	newID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate session id: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation tx: %w", err)
	}
	defer tx.Rollback()

	var oldID uuid.UUID
	var userID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id
		FROM user_sessions
		WHERE refresh_token = $1
		FOR UPDATE
	`, oldToken).Scan(&oldID, &userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lock session row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1`, oldID); err != nil {
		return fmt.Errorf("delete rotated session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, refresh_token, user_agent, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $5)
	`, newID, userID, newToken, userAgent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation tx: %w", err)
	}
	return nil
}

// DeleteExpired purges session rows idle longer than the retention window,
// in batches, for the maintenance endpoint.
func (r *Repository) DeleteExpired(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-retention)
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM user_sessions
			WHERE updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM user_sessions s
		USING stale
		WHERE s.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}
	return affected, nil
}

var ErrSessionNotFound = errors.New("session not found")
