package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// User is a principal. Email is nullable: federated-only users may not have
// one until a provider supplies it.
type User struct {
	ID            string    `json:"id"`
	Email         *string   `json:"email"`
	Name          *string   `json:"name"`
	AvatarURL     *string   `json:"avatar_url"`
	EmailVerified bool      `json:"email_verified"`
	Role          string    `json:"role"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const userColumns = `id, email, name, avatar_url, email_verified, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.EmailVerified,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByID looks up a user by primary key.
func (s *Service) UserByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return u, nil
}

// UserByEmail looks up a user by email.
func (s *Service) UserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return u, nil
}

// CreateUserParams carries the admin user-create request. Password is
// optional: when set, a password account is created alongside the user.
type CreateUserParams struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
	Role     string  `json:"role"`
}

// CreateUser creates a user (admin operation). When a password is supplied it
// must pass the complexity rule and a password account is created in the same
// transaction.
func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	email := normalizeEmail(params.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	role := params.Role
	if role == "" {
		role = "user"
	}
	if role != "user" && role != "admin" {
		return nil, fmt.Errorf("%w: Role must be 'user' or 'admin'", ErrValidation)
	}

	var credential *string
	if params.Password != "" {
		if err := validatePassword(params.Password); err != nil {
			return nil, err
		}
		hash, err := hashPassword(params.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		credential = &hash
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting user create transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanUser(tx.QueryRow(ctx,
		`INSERT INTO users (email, name, role) VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		email, params.Name, role,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	if credential != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (user_id, provider_id, provider_account_id, credential)
			 VALUES ($1, 'password', $2, $3)`,
			u.ID, email, *credential,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting password account: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing user create transaction: %w", err)
	}

	s.logger.Info("user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// ListUsersParams paginates and filters the admin user listing.
type ListUsersParams struct {
	Page    int
	PerPage int
	Search  string
}

// ListUsers returns a page of users ordered by creation time, newest first,
// along with the total match count. Search matches email or name substrings.
func (s *Service) ListUsers(ctx context.Context, params ListUsersParams) ([]User, int64, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	offset := (page - 1) * perPage

	var total int64
	var rows pgx.Rows
	var err error
	if params.Search != "" {
		pattern := "%" + params.Search + "%"
		if err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM users WHERE email ILIKE $1 OR name ILIKE $1`,
			pattern).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("counting users: %w", err)
		}
		rows, err = s.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users WHERE email ILIKE $1 OR name ILIKE $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			pattern, perPage, offset)
	} else {
		if err = s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("counting users: %w", err)
		}
		rows, err = s.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			perPage, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// UpdateUserParams carries the admin user update. Nil fields are unchanged.
type UpdateUserParams struct {
	Name          *string `json:"name"`
	Role          *string `json:"role"`
	IsActive      *bool   `json:"is_active"`
	EmailVerified *bool   `json:"email_verified"`
}

// UpdateUser applies a partial admin update and returns the updated user.
func (s *Service) UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*User, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		u.Name = params.Name
	}
	if params.Role != nil {
		if *params.Role != "user" && *params.Role != "admin" {
			return nil, fmt.Errorf("%w: Role must be 'user' or 'admin'", ErrValidation)
		}
		u.Role = *params.Role
	}
	if params.IsActive != nil {
		u.IsActive = *params.IsActive
	}
	if params.EmailVerified != nil {
		u.EmailVerified = *params.EmailVerified
	}

	updated, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users
		 SET name = $2, role = $3, is_active = $4, email_verified = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, u.Name, u.Role, u.IsActive, u.EmailVerified,
	))
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info("user updated", "user_id", id, "role", updated.Role, "is_active", updated.IsActive)
	return updated, nil
}

// UpdateProfile lets a user change their own display fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, name, avatarURL *string) (*User, error) {
	u, err := s.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = name
	}
	if avatarURL != nil {
		u.AvatarURL = avatarURL
	}

	updated, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, avatar_url = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID, u.Name, u.AvatarURL,
	))
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return updated, nil
}

// Stats summarizes applications and users for the admin dashboard.
type Stats struct {
	Applications AppStats  `json:"applications"`
	Users        UserStats `json:"users"`
}

// AppStats counts applications by active state.
type AppStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// UserStats counts users; Recent is registrations in the last 7 days.
type UserStats struct {
	Total  int64 `json:"total"`
	Recent int64 `json:"recent"`
}

// GetStats returns dashboard statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE is_active) FROM applications`,
	).Scan(&stats.Applications.Total, &stats.Applications.Active)
	if err != nil {
		return nil, fmt.Errorf("counting applications: %w", err)
	}
	stats.Applications.Inactive = stats.Applications.Total - stats.Applications.Active

	err = s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE created_at >= now() - interval '7 days') FROM users`,
	).Scan(&stats.Users.Total, &stats.Users.Recent)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	return &stats, nil
}
