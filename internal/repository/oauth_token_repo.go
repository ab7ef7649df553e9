package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"vidgen-backend/internal/models"
)

type OAuthTokenRepo struct {
	db DBTX
}

func NewOAuthTokenRepo(db DBTX) *OAuthTokenRepo {
	return &OAuthTokenRepo{db: db}
}

func (r *OAuthTokenRepo) GetByUser(ctx context.Context, userID string) (*models.OAuthToken, error) {
	var (
		tok     models.OAuthToken
		refresh *string
		expires *time.Time
	)

	err := r.db.QueryRow(ctx,
		`SELECT user_id, access_token, refresh_token, expires_at FROM oauth_tokens WHERE user_id = $1`,
		userID,
	).Scan(&tok.UserID, &tok.AccessToken, &refresh, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("oauth token for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load oauth token: %w", err)
	}

	if refresh != nil {
		tok.RefreshToken = *refresh
	}
	if expires != nil {
		t := NormalizeTimestamp(*expires)
		tok.ExpiresAt = &t
	}
	return &tok, nil
}

// UpdateAccessToken stores a refreshed access token. expiresAt is written as
// a UTC wall clock because the column has no zone.
func (r *OAuthTokenRepo) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	var expires *time.Time
	if !expiresAt.IsZero() {
		t := expiresAt.UTC()
		expires = &t
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE oauth_tokens SET access_token = $1, expires_at = $2, updated_at = NOW() WHERE user_id = $3`,
		accessToken, expires, userID,
	)
	if err != nil {
		return fmt.Errorf("update oauth token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("oauth token for %s: %w", userID, ErrNotFound)
	}
	return nil
}

// NormalizeTimestamp pins the wall clock of a zone-less column value to UTC.
// Only call it on values read from TIMESTAMP (without time zone) columns.
func NormalizeTimestamp(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
