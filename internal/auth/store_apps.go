package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Application is a relying party registered with the service. Its client
// secret is stored hashed; the plaintext is shown once at create/rotate time.
type Application struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ClientID         string    `json:"client_id"`
	ClientSecretHash string    `json:"-"`
	RedirectURIs     []string  `json:"redirect_uris"`
	AllowedScopes    []string  `json:"allowed_scopes"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AppProvider is an external identity provider configured for one application.
// Config holds provider-specific JSON (e.g. WeChat appid/secret) and is never
// exposed through the API.
type AppProvider struct {
	ID         string          `json:"id"`
	AppID      string          `json:"app_id"`
	ProviderID string          `json:"provider_id"`
	Config     json.RawMessage `json:"-"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
}

const applicationColumns = `id, name, client_id, client_secret_hash, redirect_uris, allowed_scopes, is_active, created_at, updated_at`

func scanApplication(row pgx.Row) (*Application, error) {
	var app Application
	err := row.Scan(&app.ID, &app.Name, &app.ClientID, &app.ClientSecretHash,
		&app.RedirectURIs, &app.AllowedScopes, &app.IsActive, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// CreateApplication registers a new application and returns it along with the
// plaintext client secret. The secret is not recoverable afterwards.
func (s *Service) CreateApplication(ctx context.Context, name string, redirectURIs, allowedScopes []string) (*Application, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", fmt.Errorf("%w: application name is required", ErrValidation)
	}
	if redirectURIs == nil {
		redirectURIs = []string{}
	}
	if allowedScopes == nil {
		allowedScopes = []string{}
	}

	clientID := GenerateClientID()
	secret, err := GenerateClientSecret()
	if err != nil {
		return nil, "", err
	}

	app, err := scanApplication(s.pool.QueryRow(ctx,
		`INSERT INTO applications (name, client_id, client_secret_hash, redirect_uris, allowed_scopes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+applicationColumns,
		name, clientID, HashClientSecret(secret), redirectURIs, allowedScopes,
	))
	if err != nil {
		return nil, "", fmt.Errorf("inserting application: %w", err)
	}

	s.logger.Info("application created", "app_id", app.ID, "client_id", app.ClientID, "name", app.Name)
	return app, secret, nil
}

// ApplicationByID looks up an application by its primary key.
func (s *Service) ApplicationByID(ctx context.Context, id string) (*Application, error) {
	app, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("querying application by id: %w", err)
	}
	return app, nil
}

// ApplicationByClientID looks up an application by its public client_id.
func (s *Service) ApplicationByClientID(ctx context.Context, clientID string) (*Application, error) {
	app, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE client_id = $1`, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("querying application by client_id: %w", err)
	}
	return app, nil
}

// ListApplications returns all registered applications.
func (s *Service) ListApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	apps := []Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// UpdateApplicationParams carries the optional fields of an application
// update. Nil fields are left unchanged.
type UpdateApplicationParams struct {
	Name          *string   `json:"name"`
	RedirectURIs  *[]string `json:"redirect_uris"`
	AllowedScopes *[]string `json:"allowed_scopes"`
	IsActive      *bool     `json:"is_active"`
}

// UpdateApplication applies a partial update and returns the updated row.
func (s *Service) UpdateApplication(ctx context.Context, id string, params UpdateApplicationParams) (*Application, error) {
	app, err := s.ApplicationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		app.Name = *params.Name
	}
	if params.RedirectURIs != nil {
		app.RedirectURIs = *params.RedirectURIs
	}
	if params.AllowedScopes != nil {
		app.AllowedScopes = *params.AllowedScopes
	}
	if params.IsActive != nil {
		app.IsActive = *params.IsActive
	}

	updated, err := scanApplication(s.pool.QueryRow(ctx,
		`UPDATE applications
		 SET name = $2, redirect_uris = $3, allowed_scopes = $4, is_active = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+applicationColumns,
		id, app.Name, app.RedirectURIs, app.AllowedScopes, app.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("updating application: %w", err)
	}

	s.logger.Info("application updated", "app_id", id, "is_active", updated.IsActive)
	return updated, nil
}

// RotateClientSecret replaces the application's client secret and returns the
// new plaintext. All previously issued secrets stop working immediately.
func (s *Service) RotateClientSecret(ctx context.Context, id string) (*Application, string, error) {
	secret, err := GenerateClientSecret()
	if err != nil {
		return nil, "", err
	}

	app, err := scanApplication(s.pool.QueryRow(ctx,
		`UPDATE applications SET client_secret_hash = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+applicationColumns,
		id, HashClientSecret(secret),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrApplicationNotFound
		}
		return nil, "", fmt.Errorf("rotating client secret: %w", err)
	}

	s.logger.Info("client secret rotated", "app_id", id, "client_id", app.ClientID)
	return app, secret, nil
}

// AddProvider attaches an identity provider configuration to an application.
// Each provider can be configured at most once per application.
func (s *Service) AddProvider(ctx context.Context, appID, providerID string, config json.RawMessage) (*AppProvider, error) {
	if _, err := s.ApplicationByID(ctx, appID); err != nil {
		return nil, err
	}
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}

	var p AppProvider
	err := s.pool.QueryRow(ctx,
		`INSERT INTO app_providers (app_id, provider_id, config)
		 VALUES ($1, $2, $3)
		 RETURNING id, app_id, provider_id, config, is_active, created_at`,
		appID, providerID, config,
	).Scan(&p.ID, &p.AppID, &p.ProviderID, &p.Config, &p.IsActive, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: Provider already configured for this application", ErrValidation)
		}
		return nil, fmt.Errorf("inserting app provider: %w", err)
	}

	s.logger.Info("provider configured", "app_id", appID, "provider_id", providerID)
	return &p, nil
}

// ListProviders returns the providers configured for an application.
func (s *Service) ListProviders(ctx context.Context, appID string) ([]AppProvider, error) {
	if _, err := s.ApplicationByID(ctx, appID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, app_id, provider_id, config, is_active, created_at
		 FROM app_providers WHERE app_id = $1 ORDER BY created_at`,
		appID)
	if err != nil {
		return nil, fmt.Errorf("listing app providers: %w", err)
	}
	defer rows.Close()

	providers := []AppProvider{}
	for rows.Next() {
		var p AppProvider
		if err := rows.Scan(&p.ID, &p.AppID, &p.ProviderID, &p.Config, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning app provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// RemoveProvider deletes a provider configuration from an application.
func (s *Service) RemoveProvider(ctx context.Context, appID, providerID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM app_providers WHERE app_id = $1 AND provider_id = $2`,
		appID, providerID)
	if err != nil {
		return fmt.Errorf("deleting app provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotConfigured
	}

	s.logger.Info("provider removed", "app_id", appID, "provider_id", providerID)
	return nil
}

// appProviderConfig returns the active provider configuration for an
// application, used to authenticate federated logins.
func (s *Service) appProviderConfig(ctx context.Context, appID, providerID string) (json.RawMessage, error) {
	var config json.RawMessage
	var isActive bool
	err := s.pool.QueryRow(ctx,
		`SELECT config, is_active FROM app_providers WHERE app_id = $1 AND provider_id = $2`,
		appID, providerID,
	).Scan(&config, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotConfigured
		}
		return nil, fmt.Errorf("querying app provider config: %w", err)
	}
	if !isActive {
		return nil, ErrProviderNotConfigured
	}
	return config, nil
}
