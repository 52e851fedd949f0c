package ui

import (
	"strings"
	"testing"

	"github.com/zhaochy1990/auth/internal/testutil"
)

func TestFormatError(t *testing.T) {
	out := FormatError("database connection refused")
	testutil.Contains(t, out, "Error:")
	testutil.Contains(t, out, "database connection refused")

	withHints := FormatError("port 8080 already in use",
		"authd serve --port 8081",
		"lsof -i :8080")
	testutil.Contains(t, withHints, "Try:")
	testutil.Contains(t, withHints, "authd serve --port 8081")
	testutil.Contains(t, withHints, "lsof -i :8080")
}

func TestStepSpinnerNoSpin(t *testing.T) {
	var buf strings.Builder
	ss := NewStepSpinner(&buf, true)

	ss.Start("Connecting to database")
	ss.Done()
	ss.Start("Running migrations")
	ss.Fail()

	out := buf.String()
	testutil.Contains(t, out, "Connecting to database")
	testutil.Contains(t, out, SymbolCheck)
	testutil.Contains(t, out, "Running migrations")
	testutil.Contains(t, out, SymbolCross)
}

func TestStepSpinnerStopIsSafeWhenIdle(t *testing.T) {
	ss := NewStepSpinner(&strings.Builder{}, true)
	ss.Stop()
}
