// Package auth implements the multi-tenant authentication core: user and
// application stores, external identity providers, OAuth 2.0 token grants,
// and RS256 access token issuance.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultRefreshTokenExpiry is used when no refresh expiry is configured.
const DefaultRefreshTokenExpiry = 30 * 24 * time.Hour

// Service handles users, applications, provider logins, and OAuth 2.0 grants.
type Service struct {
	pool          *pgxpool.Pool
	jwt           *JWTManager
	refreshExpiry time.Duration
	logger        *slog.Logger
	httpClient    *http.Client // outbound calls to external identity providers
}

// NewService creates a new auth service.
func NewService(pool *pgxpool.Pool, jwtManager *JWTManager, refreshExpiry time.Duration, logger *slog.Logger) *Service {
	if refreshExpiry <= 0 {
		refreshExpiry = DefaultRefreshTokenExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:          pool,
		jwt:           jwtManager,
		refreshExpiry: refreshExpiry,
		logger:        logger,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// TokenPair is the response body for first-party auth endpoints
// (register, login, provider login, refresh).
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// issueTokenPair signs an access token for the user and stores a new refresh
// token bound to the application. scopes travel into both tokens unchanged.
func (s *Service) issueTokenPair(ctx context.Context, user *User, app *Application, scopes []string, deviceID string) (*TokenPair, error) {
	accessToken, err := s.jwt.IssueAccessToken(user.ID, app.ClientID, scopes, user.Role)
	if err != nil {
		return nil, err
	}

	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := s.storeRefreshToken(ctx, user.ID, app.ID, refreshToken, scopes, deviceID); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessExpiry().Seconds()),
	}, nil
}
