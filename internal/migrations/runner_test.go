//go:build integration

package migrations_test

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/zhaochy1990/auth/internal/migrations"
	"github.com/zhaochy1990/auth/internal/testutil"
)

var sharedPG *testutil.PGContainer

func TestMain(m *testing.M) {
	ctx := context.Background()
	pg, cleanup := testutil.StartPostgresForTestMain(ctx)
	sharedPG = pg
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// resetDB drops and recreates the public schema for test isolation.
func resetDB(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := sharedPG.Pool.Exec(ctx, "DROP SCHEMA public CASCADE; CREATE SCHEMA public")
	if err != nil {
		t.Fatalf("resetting schema: %v", err)
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())

	// Bootstrap should create the _authd_migrations table.
	err := runner.Bootstrap(ctx)
	testutil.NoError(t, err)

	var exists bool
	err = sharedPG.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = '_authd_migrations')").
		Scan(&exists)
	testutil.NoError(t, err)
	testutil.True(t, exists, "_authd_migrations table should exist")
}

func TestBootstrapIdempotent(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())

	// Run bootstrap twice — should not error.
	err := runner.Bootstrap(ctx)
	testutil.NoError(t, err)
	err = runner.Bootstrap(ctx)
	testutil.NoError(t, err)
}

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())
	err := runner.Bootstrap(ctx)
	testutil.NoError(t, err)

	applied, err := runner.Run(ctx)
	testutil.NoError(t, err)
	testutil.True(t, applied >= 7, "should apply all schema migrations, got %d", applied)

	// Every domain table should exist after a full run.
	for _, table := range []string{
		"users", "applications", "app_providers",
		"accounts", "authorization_codes", "refresh_tokens",
	} {
		var exists bool
		err = sharedPG.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).
			Scan(&exists)
		testutil.NoError(t, err)
		testutil.True(t, exists, "%s table should exist", table)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())
	err := runner.Bootstrap(ctx)
	testutil.NoError(t, err)

	applied1, err := runner.Run(ctx)
	testutil.NoError(t, err)

	// Second run should apply zero.
	applied2, err := runner.Run(ctx)
	testutil.NoError(t, err)
	testutil.Equal(t, 0, applied2)

	testutil.True(t, applied1 >= 1, "first run should apply migrations")
}

func TestUsersTableMigration(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())
	err := runner.Bootstrap(ctx)
	testutil.NoError(t, err)

	_, err = runner.Run(ctx)
	testutil.NoError(t, err)

	rows, err := sharedPG.Pool.Query(ctx,
		`SELECT column_name, is_nullable = 'YES'
		 FROM information_schema.columns
		 WHERE table_name = 'users'
		 ORDER BY ordinal_position`)
	testutil.NoError(t, err)
	defer rows.Close()

	nullable := make(map[string]bool)
	for rows.Next() {
		var name string
		var isNullable bool
		err := rows.Scan(&name, &isNullable)
		testutil.NoError(t, err)
		nullable[name] = isNullable
	}
	testutil.NoError(t, rows.Err())

	for _, expected := range []string{"id", "email", "name", "avatar_url", "email_verified", "role", "is_active", "created_at", "updated_at"} {
		_, ok := nullable[expected]
		testutil.True(t, ok, "column %s should exist on users", expected)
	}

	// Email is nullable (provider-only identities), role and is_active are not.
	testutil.True(t, nullable["email"], "email should be nullable")
	testutil.False(t, nullable["role"], "role should be NOT NULL")
	testutil.False(t, nullable["is_active"], "is_active should be NOT NULL")

	// Role is constrained to user/admin.
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO users (email, role) VALUES ($1, $2)`,
		"bad-role@example.com", "superuser")
	testutil.True(t, err != nil, "invalid role should be rejected")
}

func TestAccountsUniquenessConstraints(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())
	testutil.NoError(t, runner.Bootstrap(ctx))
	_, err := runner.Run(ctx)
	testutil.NoError(t, err)

	var userA, userB string
	err = sharedPG.Pool.QueryRow(ctx,
		`INSERT INTO users (email) VALUES ('a@example.com') RETURNING id`).Scan(&userA)
	testutil.NoError(t, err)
	err = sharedPG.Pool.QueryRow(ctx,
		`INSERT INTO users (email) VALUES ('b@example.com') RETURNING id`).Scan(&userB)
	testutil.NoError(t, err)

	// First password account succeeds.
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id) VALUES ($1, 'password', 'a@example.com')`,
		userA)
	testutil.NoError(t, err)

	// Second account for the same (user, provider) is rejected.
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id) VALUES ($1, 'password', 'other@example.com')`,
		userA)
	testutil.True(t, err != nil, "duplicate (user_id, provider_id) should be rejected")

	// The same provider identity on a different user is rejected.
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id) VALUES ($1, 'password', 'a@example.com')`,
		userB)
	testutil.True(t, err != nil, "duplicate (provider_id, provider_account_id) should be rejected")

	// NULL provider_account_id rows never conflict with each other.
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id) VALUES ($1, 'wechat', NULL)`,
		userA)
	testutil.NoError(t, err)
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO accounts (user_id, provider_id, provider_account_id) VALUES ($1, 'wechat', NULL)`,
		userB)
	testutil.NoError(t, err)
}

func TestApplicationsClientIDFormat(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())
	testutil.NoError(t, runner.Bootstrap(ctx))
	_, err := runner.Run(ctx)
	testutil.NoError(t, err)

	// client_id must match app_ + 24 hex chars.
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO applications (name, client_id, client_secret_hash) VALUES ($1, $2, $3)`,
		"bad", "not_a_client_id", "sha256:00")
	testutil.True(t, err != nil, "malformed client_id should be rejected")

	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO applications (name, client_id, client_secret_hash) VALUES ($1, $2, $3)`,
		"good", "app_0123456789abcdef01234567", "sha256:00")
	testutil.NoError(t, err)

	// Duplicate client_id is rejected.
	_, err = sharedPG.Pool.Exec(ctx,
		`INSERT INTO applications (name, client_id, client_secret_hash) VALUES ($1, $2, $3)`,
		"dupe", "app_0123456789abcdef01234567", "sha256:00")
	testutil.True(t, err != nil, "duplicate client_id should be rejected")
}

func TestRunMigrationsRollsBackFailedMigration(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	customMigrations := fstest.MapFS{
		"sql/001_bad_schema.sql": &fstest.MapFile{
			Data: []byte(`
CREATE TABLE applications (
	id UUID PRIMARY KEY
);

CREATE TABLE refresh_tokens (
	id UUID PRIMARY KEY
);

SELECT definitely_invalid_sql();
`),
		},
	}

	runner := migrations.NewRunnerWithFS(sharedPG.Pool, testutil.DiscardLogger(), customMigrations)
	err := runner.Bootstrap(ctx)
	testutil.NoError(t, err)

	applied, err := runner.Run(ctx)
	testutil.Equal(t, 0, applied)
	testutil.NotNil(t, err)

	var appsExists bool
	err = sharedPG.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'applications')").
		Scan(&appsExists)
	testutil.NoError(t, err)
	testutil.False(t, appsExists, "applications should not exist when migration fails in-transaction")

	var appliedCount int
	err = sharedPG.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM _authd_migrations").Scan(&appliedCount)
	testutil.NoError(t, err)
	testutil.Equal(t, 0, appliedCount)
}

func TestGetApplied(t *testing.T) {
	ctx := context.Background()
	resetDB(t, ctx)

	runner := migrations.NewRunner(sharedPG.Pool, testutil.DiscardLogger())
	err := runner.Bootstrap(ctx)
	testutil.NoError(t, err)

	// Before running, no applied migrations.
	applied, err := runner.GetApplied(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, applied, 0)

	_, err = runner.Run(ctx)
	testutil.NoError(t, err)

	applied, err = runner.GetApplied(ctx)
	testutil.NoError(t, err)
	testutil.True(t, len(applied) >= 1, "should have applied migrations")
	testutil.Equal(t, "001_users.sql", applied[0].Name)
	testutil.False(t, applied[0].AppliedAt.IsZero(), "applied_at should be set")
}
