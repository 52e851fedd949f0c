package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// RefreshToken is the stored form of an opaque refresh token. Only the
// SHA-256 hash of the raw value is persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	AppID     string
	TokenHash string
	Scopes    []string
	DeviceID  *string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// storeRefreshToken hashes and persists a raw refresh token.
func (s *Service) storeRefreshToken(ctx context.Context, userID, appID, token string, scopes []string, deviceID string) (string, error) {
	if scopes == nil {
		scopes = []string{}
	}
	var device *string
	if deviceID != "" {
		device = &deviceID
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO refresh_tokens (user_id, app_id, token_hash, scopes, device_id, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		userID, appID, hashToken(token), scopes, device, time.Now().Add(s.refreshExpiry),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting refresh token: %w", err)
	}
	return id, nil
}

// rotateRefreshToken validates a raw refresh token against the calling
// application, revokes it, and stores a replacement carrying the same scopes
// and device binding. Revocation is a compare-and-swap: of two concurrent
// rotations one wins and the other sees ErrTokenRevoked.
func (s *Service) rotateRefreshToken(ctx context.Context, token, appID string) (userID, newToken string, scopes []string, err error) {
	var stored RefreshToken
	err = s.pool.QueryRow(ctx,
		`SELECT id, user_id, app_id, token_hash, scopes, device_id, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE token_hash = $1`,
		hashToken(token),
	).Scan(&stored.ID, &stored.UserID, &stored.AppID, &stored.TokenHash,
		&stored.Scopes, &stored.DeviceID, &stored.ExpiresAt, &stored.Revoked, &stored.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", nil, ErrInvalidToken
		}
		return "", "", nil, fmt.Errorf("querying refresh token: %w", err)
	}

	if stored.Revoked {
		return "", "", nil, ErrTokenRevoked
	}
	if stored.AppID != appID {
		return "", "", nil, ErrInvalidToken
	}
	if time.Now().After(stored.ExpiresAt) {
		return "", "", nil, ErrRefreshTokenExpired
	}

	newToken, err = GenerateRefreshToken()
	if err != nil {
		return "", "", nil, err
	}
	deviceID := ""
	if stored.DeviceID != nil {
		deviceID = *stored.DeviceID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", "", nil, fmt.Errorf("starting rotation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE id = $1 AND revoked = false`,
		stored.ID)
	if err != nil {
		return "", "", nil, fmt.Errorf("revoking rotated refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", "", nil, ErrTokenRevoked
	}

	var device *string
	if deviceID != "" {
		device = &deviceID
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (user_id, app_id, token_hash, scopes, device_id, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.UserID, appID, hashToken(newToken), stored.Scopes, device,
		time.Now().Add(s.refreshExpiry),
	)
	if err != nil {
		return "", "", nil, fmt.Errorf("inserting rotated refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", "", nil, fmt.Errorf("committing rotation transaction: %w", err)
	}

	return stored.UserID, newToken, stored.Scopes, nil
}

// RevokeRefreshToken revokes a raw refresh token. Revoking an already revoked
// token succeeds; an unknown token reports ErrInvalidToken.
func (s *Service) RevokeRefreshToken(ctx context.Context, token string) error {
	var id string
	err := s.pool.QueryRow(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1 RETURNING id`,
		hashToken(token),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidToken
		}
		return fmt.Errorf("revoking refresh token: %w", err)
	}

	s.logger.Info("refresh token revoked", "token_id", id)
	return nil
}

// DeleteExpiredRefreshTokens removes refresh tokens past their expiry.
// Revoked rows stay until they expire so rotation reuse keeps reporting
// ErrTokenRevoked rather than an unknown token.
func (s *Service) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
