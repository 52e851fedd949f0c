package auth

import (
	"strings"
	"testing"

	"github.com/zhaochy1990/auth/internal/testutil"
)

func init() {
	// Lower argon2id cost so the suite stays fast. The PHC string is
	// self-describing, so verification still exercises the real path.
	argonMemory = 1024
	argonTime = 1
	argonThreads = 1
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := hashPassword("Correct-horse1")
	testutil.NoError(t, err)
	testutil.True(t, strings.HasPrefix(hash, "$argon2id$"), "hash should be PHC format, got %q", hash)

	ok, err := verifyPassword("Correct-horse1", hash)
	testutil.NoError(t, err)
	testutil.True(t, ok, "correct password should verify")

	ok, err = verifyPassword("Wrong-horse1!", hash)
	testutil.NoError(t, err)
	testutil.False(t, ok, "wrong password should not verify")
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	h1, err := hashPassword("Correct-horse1")
	testutil.NoError(t, err)
	h2, err := hashPassword("Correct-horse1")
	testutil.NoError(t, err)
	testutil.NotEqual(t, h1, h2)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plaintext",
		"$bcrypt$something",
		"$argon2id$v=19$m=1024,t=1,p=1$only-five-parts",
	} {
		_, err := verifyPassword("anything", hash)
		if err == nil {
			t.Errorf("verifyPassword(%q) should fail", hash)
		}
	}
}

func TestVerifyPasswordOldParams(t *testing.T) {
	// Hash with different cost parameters than the current defaults.
	origMemory, origTime := argonMemory, argonTime
	argonMemory, argonTime = 2048, 2
	hash, err := hashPassword("Correct-horse1")
	testutil.NoError(t, err)
	argonMemory, argonTime = origMemory, origTime

	ok, err := verifyPassword("Correct-horse1", hash)
	testutil.NoError(t, err)
	testutil.True(t, ok, "hash with non-default params should still verify")
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"valid", "Abcdef1!", ""},
		{"too short", "Ab1!", "at least 8 characters"},
		{"too long", strings.Repeat("Ab1!", 33), "at most 128 characters"},
		{"no uppercase", "abcdef1!", "uppercase letter"},
		{"no lowercase", "ABCDEF1!", "lowercase letter"},
		{"no digit", "Abcdefg!", "digit"},
		{"no special", "Abcdefg1", "special character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePassword(tt.password)
			if tt.wantErr == "" {
				testutil.NoError(t, err)
				return
			}
			testutil.ErrorIs(t, err, ErrValidation)
			testutil.ErrorContains(t, err, tt.wantErr)
		})
	}
}
