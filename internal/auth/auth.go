package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// RegisterResult is the register response: the new user id plus a token pair.
type RegisterResult struct {
	UserID string `json:"user_id"`
	TokenPair
}

// Register creates a user with a password account and signs them in. The
// token pair is bound to the calling application and carries its full
// allowed scope set.
func (s *Service) Register(ctx context.Context, app *Application, email, password string, name *string) (*RegisterResult, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting register transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := scanUser(tx.QueryRow(ctx,
		`INSERT INTO users (email, name) VALUES ($1, $2)
		 RETURNING `+userColumns,
		email, name,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id, credential)
		 VALUES ($1, 'password', $2, $3)`,
		user.ID, email, hash,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting password account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing register transaction: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, user, app, app.AllowedScopes, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "app_id", app.ID)
	return &RegisterResult{UserID: user.ID, TokenPair: *pair}, nil
}

// Login verifies an email/password pair and issues a token pair carrying the
// application's full allowed scope set. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, app *Application, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)

	user, err := s.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	account, err := s.passwordAccount(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.Credential == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := verifyPassword(password, *account.Credential)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(ctx, user, app, app.AllowedScopes, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "app_id", app.ID)
	return pair, nil
}

// ProviderLogin authenticates a credential against one of the application's
// configured identity providers, creating the user on first contact.
func (s *Service) ProviderLogin(ctx context.Context, app *Application, providerID string, credential json.RawMessage) (*TokenPair, error) {
	config, err := s.appProviderConfig(ctx, app.ID, providerID)
	if err != nil {
		return nil, err
	}

	provider, err := s.newProvider(providerID, config)
	if err != nil {
		return nil, err
	}
	info, err := provider.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}

	var user *User
	account, err := s.accountByProviderIdentity(ctx, providerID, info.ProviderAccountID)
	switch {
	case err == nil:
		// Known identity: refresh stored metadata, then gate on the user.
		if err := s.touchAccountMetadata(ctx, account.ID, info.Metadata); err != nil {
			return nil, err
		}
		user, err = s.UserByID(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		if !user.IsActive {
			return nil, ErrUserDisabled
		}
	case errors.Is(err, ErrAccountNotFound):
		user, err = s.createProviderUser(ctx, providerID, info)
		if errors.Is(err, ErrAccountAlreadyLinked) {
			// Lost a concurrent first-login race; the identity exists now.
			account, err = s.accountByProviderIdentity(ctx, providerID, info.ProviderAccountID)
			if err != nil {
				return nil, err
			}
			user, err = s.UserByID(ctx, account.UserID)
			if err != nil {
				return nil, err
			}
			if !user.IsActive {
				return nil, ErrUserDisabled
			}
		} else if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	pair, err := s.issueTokenPair(ctx, user, app, app.AllowedScopes, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("provider login", "user_id", user.ID, "provider_id", providerID, "app_id", app.ID)
	return pair, nil
}

// Refresh rotates a refresh token and issues a fresh access token carrying
// the rotated token's scopes and the user's current role.
func (s *Service) Refresh(ctx context.Context, app *Application, refreshToken string) (*TokenPair, error) {
	userID, newToken, scopes, err := s.rotateRefreshToken(ctx, refreshToken, app.ID)
	if err != nil {
		return nil, err
	}

	user, err := s.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	accessToken, err := s.jwt.IssueAccessToken(user.ID, app.ClientID, scopes, user.Role)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessExpiry().Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. Unknown tokens are an error:
// a client that logs out with a token it never held learns nothing new.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.RevokeRefreshToken(ctx, refreshToken)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	atIdx := strings.Index(email, "@")
	if atIdx < 1 {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	domain := email[atIdx+1:]
	if !strings.Contains(domain, ".") {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}
