package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// AuthCodeExpiry is how long an authorization code stays exchangeable.
const AuthCodeExpiry = 10 * time.Minute

// AuthorizationCode is a stored single-use code. The code itself is the
// primary key; it is high-entropy and never logged.
type AuthorizationCode struct {
	Code                string
	AppID               string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       *string
	CodeChallengeMethod *string
	ExpiresAt           time.Time
	Used                bool
	CreatedAt           time.Time
}

// StoreAuthorizationCode persists a fresh code bound to an application, user,
// and redirect URI. PKCE fields are optional.
func (s *Service) StoreAuthorizationCode(ctx context.Context, code, appID, userID, redirectURI string, scopes []string, codeChallenge, codeChallengeMethod *string) error {
	if scopes == nil {
		scopes = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO authorization_codes
		 (code, app_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		code, appID, userID, redirectURI, scopes, codeChallenge, codeChallengeMethod,
		time.Now().Add(AuthCodeExpiry),
	)
	if err != nil {
		return fmt.Errorf("inserting authorization code: %w", err)
	}

	s.logger.Info("authorization code issued", "app_id", appID, "user_id", userID)
	return nil
}

// exchangeAuthorizationCode validates a code against the calling application
// and consumes it. Consumption is a conditional update: of two concurrent
// exchanges exactly one wins; the loser sees ErrInvalidAuthorizationCode.
func (s *Service) exchangeAuthorizationCode(ctx context.Context, code, appID, redirectURI string, codeVerifier *string) (userID string, scopes []string, err error) {
	var ac AuthorizationCode
	err = s.pool.QueryRow(ctx,
		`SELECT code, app_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, expires_at, used, created_at
		 FROM authorization_codes WHERE code = $1`,
		code,
	).Scan(&ac.Code, &ac.AppID, &ac.UserID, &ac.RedirectURI, &ac.Scopes,
		&ac.CodeChallenge, &ac.CodeChallengeMethod, &ac.ExpiresAt, &ac.Used, &ac.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidAuthorizationCode
		}
		return "", nil, fmt.Errorf("querying authorization code: %w", err)
	}

	if ac.Used {
		return "", nil, ErrInvalidAuthorizationCode
	}
	if ac.AppID != appID {
		return "", nil, ErrInvalidAuthorizationCode
	}
	if ac.RedirectURI != redirectURI {
		return "", nil, ErrInvalidRedirectURI
	}
	if time.Now().After(ac.ExpiresAt) {
		return "", nil, ErrAuthorizationCodeExpired
	}

	if ac.CodeChallenge != nil {
		method := "plain"
		if ac.CodeChallengeMethod != nil {
			method = *ac.CodeChallengeMethod
		}
		if codeVerifier == nil {
			return "", nil, ErrInvalidCodeVerifier
		}
		if !VerifyPKCE(*codeVerifier, *ac.CodeChallenge, method) {
			return "", nil, ErrInvalidCodeVerifier
		}
	}

	// Consume. Zero rows means a concurrent exchange won the race.
	tag, err := s.pool.Exec(ctx,
		`UPDATE authorization_codes SET used = true WHERE code = $1 AND used = false`,
		code)
	if err != nil {
		return "", nil, fmt.Errorf("marking authorization code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", nil, ErrInvalidAuthorizationCode
	}

	return ac.UserID, ac.Scopes, nil
}

// DeleteExpiredAuthorizationCodes removes codes past their expiry. Used codes
// inside the expiry window are kept for replay detection.
func (s *Service) DeleteExpiredAuthorizationCodes(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired authorization codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
