// Package seed bootstraps the minimum state a fresh deployment needs: one
// admin-scoped application and one admin user.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zhaochy1990/auth/internal/auth"
)

// AdminAppName is the name of the bootstrap application. The seed is keyed on
// it: re-running seed reuses the existing application instead of minting a
// second one.
const AdminAppName = "Admin Dashboard"

var adminRedirectURIs = []string{"http://localhost:5173"}

// Result reports what the seed run created or found.
type Result struct {
	App          *auth.Application
	ClientSecret string // plaintext, set only when the application was created
	AppCreated   bool

	User         *auth.User
	UserCreated  bool
	UserPromoted bool
}

// Run ensures the admin application and an admin user exist. Creating a new
// admin user requires a password; promoting or re-seeding an existing user
// does not.
func Run(ctx context.Context, svc *auth.Service, email, password string, logger *slog.Logger) (*Result, error) {
	result := &Result{}

	if err := ensureAdminApp(ctx, svc, result); err != nil {
		return nil, err
	}
	if err := ensureAdminUser(ctx, svc, email, password, result, logger); err != nil {
		return nil, err
	}
	return result, nil
}

func ensureAdminApp(ctx context.Context, svc *auth.Service, result *Result) error {
	apps, err := svc.ListApplications(ctx)
	if err != nil {
		return fmt.Errorf("listing applications: %w", err)
	}
	for i := range apps {
		if apps[i].Name == AdminAppName {
			result.App = &apps[i]
			return nil
		}
	}

	app, secret, err := svc.CreateApplication(ctx, AdminAppName, adminRedirectURIs, []string{"admin"})
	if err != nil {
		return fmt.Errorf("creating admin application: %w", err)
	}
	if _, err := svc.AddProvider(ctx, app.ID, "password", nil); err != nil {
		return fmt.Errorf("attaching password provider: %w", err)
	}

	result.App = app
	result.ClientSecret = secret
	result.AppCreated = true
	return nil
}

func ensureAdminUser(ctx context.Context, svc *auth.Service, email, password string, result *Result, logger *slog.Logger) error {
	user, err := svc.UserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role == "admin" {
			result.User = user
			return nil
		}
		promoted, err := svc.UpdateUser(ctx, user.ID, auth.UpdateUserParams{Role: ptr("admin")})
		if err != nil {
			return fmt.Errorf("promoting user to admin: %w", err)
		}
		logger.Info("user promoted to admin", "user_id", promoted.ID)
		result.User = promoted
		result.UserPromoted = true
		return nil

	case errors.Is(err, auth.ErrUserNotFound):
		if password == "" {
			return fmt.Errorf("admin user %s does not exist; a password is required to create it", email)
		}
		created, err := svc.CreateUser(ctx, auth.CreateUserParams{
			Email:    email,
			Password: password,
			Role:     "admin",
		})
		if err != nil {
			return fmt.Errorf("creating admin user: %w", err)
		}
		logger.Info("admin user created", "user_id", created.ID)
		result.User = created
		result.UserCreated = true
		return nil

	default:
		return fmt.Errorf("looking up admin user: %w", err)
	}
}

func ptr[T any](v T) *T { return &v }
