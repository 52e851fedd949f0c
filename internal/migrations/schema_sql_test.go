package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/zhaochy1990/auth/internal/testutil"
)

func TestSchemaSQLConstraints(t *testing.T) {
	t.Parallel()

	read := func(t *testing.T, name string) string {
		t.Helper()
		b, err := fs.ReadFile(embeddedMigrations, "sql/"+name)
		testutil.NoError(t, err)
		return string(b)
	}

	sql002 := read(t, "002_applications.sql")
	testutil.True(t, strings.Contains(sql002, "CHECK (client_id ~ '^app_[0-9a-f]{24}$')"),
		"002 must enforce app_ + 24 hex char client_id format")
	testutil.True(t, strings.Contains(sql002, "client_id          TEXT NOT NULL UNIQUE"),
		"002 must enforce client_id uniqueness")

	sql004 := read(t, "004_accounts.sql")
	testutil.True(t, strings.Contains(sql004, "idx_accounts_user_provider"),
		"004 must create the (user_id, provider_id) unique index")
	testutil.True(t, strings.Contains(sql004, "WHERE provider_account_id IS NOT NULL"),
		"004 identity index must be partial so NULL identities never conflict")

	sql005 := read(t, "005_authorization_codes.sql")
	testutil.True(t, strings.Contains(sql005, "CHECK (code ~ '^[0-9a-f]{128}$')"),
		"005 must enforce 128 hex char authorization codes")
	testutil.True(t, strings.Contains(sql005, "CHECK (code_challenge_method IN ('S256', 'plain'))"),
		"005 must limit PKCE methods to S256 and plain")

	sql006 := read(t, "006_refresh_tokens.sql")
	testutil.True(t, strings.Contains(sql006, "CHECK (token_hash ~ '^[0-9a-f]{64}$')"),
		"006 must enforce sha256 hex token hashes")
	testutil.True(t, strings.Contains(sql006, "token_hash TEXT NOT NULL UNIQUE"),
		"006 must enforce token_hash uniqueness")

	sql007 := read(t, "007_user_role_active.sql")
	testutil.True(t, strings.Contains(sql007, "CHECK (role IN ('user', 'admin'))"),
		"007 must limit roles to user and admin")
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(embeddedMigrations, "sql")
	testutil.NoError(t, err)
	testutil.True(t, len(entries) >= 7, "expected at least 7 migrations, got %d", len(entries))

	for _, e := range entries {
		name := e.Name()
		testutil.True(t, strings.HasSuffix(name, ".sql"), "%s must be a .sql file", name)
		testutil.True(t, len(name) > 4 && name[3] == '_',
			"%s must start with a 3-digit ordinal prefix", name)
		for _, c := range name[:3] {
			testutil.True(t, c >= '0' && c <= '9', "%s prefix must be numeric", name)
		}
	}
}
