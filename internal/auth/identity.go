package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Account binds a user to one provider identity. For provider_id="password"
// the credential holds the password hash and provider_account_id the email;
// federated accounts carry a provider_account_id and metadata instead.
type Account struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	ProviderID        string          `json:"provider_id"`
	ProviderAccountID *string         `json:"provider_account_id"`
	Credential        *string         `json:"-"`
	ProviderMetadata  json.RawMessage `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

const accountColumns = `id, user_id, provider_id, provider_account_id, credential, provider_metadata, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.ProviderAccountID,
		&a.Credential, &a.ProviderMetadata, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns all provider accounts linked to a user.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// accountByProviderIdentity finds the account owning a federated identity.
func (s *Service) accountByProviderIdentity(ctx context.Context, providerID, providerAccountID string) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE provider_id = $1 AND provider_account_id = $2`,
		providerID, providerAccountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account by provider identity: %w", err)
	}
	return a, nil
}

// passwordAccount returns the user's password account, if any.
func (s *Service) passwordAccount(ctx context.Context, userID string) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE user_id = $1 AND provider_id = 'password'`,
		userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying password account: %w", err)
	}
	return a, nil
}

// touchAccountMetadata refreshes the stored provider metadata after a
// successful federated login.
func (s *Service) touchAccountMetadata(ctx context.Context, accountID string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding provider metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE accounts SET provider_metadata = $2, updated_at = now() WHERE id = $1`,
		accountID, raw)
	if err != nil {
		return fmt.Errorf("updating provider metadata: %w", err)
	}
	return nil
}

// createProviderUser creates a user plus the federated account that
// authenticated them, in one transaction. Losing a concurrent race on the
// provider identity reports ErrAccountAlreadyLinked so callers can re-read.
func (s *Service) createProviderUser(ctx context.Context, providerID string, info *ProviderUserInfo) (*User, error) {
	metadata, err := json.Marshal(info.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding provider metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting provider user transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanUser(tx.QueryRow(ctx,
		`INSERT INTO users (email, name, avatar_url) VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		info.Email, info.Name, info.AvatarURL,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("inserting provider user: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id, provider_metadata)
		 VALUES ($1, $2, $3, $4)`,
		u.ID, providerID, info.ProviderAccountID, metadata,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAccountAlreadyLinked
		}
		return nil, fmt.Errorf("inserting provider account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing provider user transaction: %w", err)
	}

	s.logger.Info("user created via provider", "user_id", u.ID, "provider_id", providerID)
	return u, nil
}

// LinkAccount authenticates the credential against the application's provider
// and links the resulting identity to the user. The provider must be
// configured for the application the bearer token was issued to.
func (s *Service) LinkAccount(ctx context.Context, userID, clientID, providerID string, credential json.RawMessage) (*Account, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1 AND provider_id = $2)`,
		userID, providerID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking linked account: %w", err)
	}
	if exists {
		return nil, ErrAccountAlreadyLinked
	}

	app, err := s.ApplicationByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
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

	if _, err := s.accountByProviderIdentity(ctx, providerID, info.ProviderAccountID); err == nil {
		return nil, ErrAccountAlreadyLinked
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	metadata, err := json.Marshal(info.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding provider metadata: %w", err)
	}

	a, err := scanAccount(s.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id, provider_metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+accountColumns,
		userID, providerID, info.ProviderAccountID, metadata,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAccountAlreadyLinked
		}
		return nil, fmt.Errorf("inserting linked account: %w", err)
	}

	s.logger.Info("account linked", "user_id", userID, "provider_id", providerID)
	return a, nil
}

// UnlinkAccount removes a user's own provider account. The count check comes
// first: a user holding a single account gets the last-account error even
// when the named provider is not linked.
func (s *Service) UnlinkAccount(ctx context.Context, userID, providerID string) error {
	return s.unlinkAccount(ctx, userID, providerID, false)
}

// AdminUnlinkAccount removes a provider account on behalf of an admin. The
// link lookup comes first, so a missing link reports "Account not linked"
// even for single-account users.
func (s *Service) AdminUnlinkAccount(ctx context.Context, userID, providerID string) error {
	if _, err := s.UserByID(ctx, userID); err != nil {
		return err
	}
	return s.unlinkAccount(ctx, userID, providerID, true)
}

func (s *Service) unlinkAccount(ctx context.Context, userID, providerID string, linkCheckFirst bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting unlink transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the user's accounts so concurrent unlinks cannot both pass the
	// last-account check.
	rows, err := tx.Query(ctx,
		`SELECT id, provider_id FROM accounts WHERE user_id = $1 ORDER BY created_at FOR UPDATE`,
		userID)
	if err != nil {
		return fmt.Errorf("locking accounts: %w", err)
	}

	var total int
	var accountID string
	for rows.Next() {
		var id, pid string
		if err := rows.Scan(&id, &pid); err != nil {
			rows.Close()
			return fmt.Errorf("scanning account: %w", err)
		}
		total++
		if pid == providerID {
			accountID = id
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading accounts: %w", err)
	}

	if linkCheckFirst {
		if accountID == "" {
			return fmt.Errorf("%w: Account not linked", ErrValidation)
		}
		if total <= 1 {
			return ErrCannotUnlinkLastAccount
		}
	} else {
		if total <= 1 {
			return ErrCannotUnlinkLastAccount
		}
		if accountID == "" {
			return fmt.Errorf("%w: Account not linked", ErrValidation)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing unlink transaction: %w", err)
	}

	s.logger.Info("account unlinked", "user_id", userID, "provider_id", providerID)
	return nil
}

// AccountsForUser is the admin variant of ListAccounts: it reports
// ErrUserNotFound for unknown users instead of an empty list.
func (s *Service) AccountsForUser(ctx context.Context, userID string) ([]Account, error) {
	if _, err := s.UserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.ListAccounts(ctx, userID)
}
