package ciutil

import (
	"os"
	"testing"
)

// RequireEnv returns the value of name or skips the test when it is unset.
func RequireEnv(t testing.TB, name string) string {
	t.Helper()
	val := os.Getenv(name)
	if val == "" {
		t.Skipf("%s not set", name)
	}
	return val
}

// RequireDatabaseURL is RequireEnv for the postgres contract tests, with
// the DATABASE_URL fallback and CI normalisation of TestDatabaseURL.
func RequireDatabaseURL(t testing.TB) string {
	t.Helper()
	val := TestDatabaseURL(nil)
	if val == "" {
		t.Skipf("%s not set", EnvTestDatabaseURL)
	}
	return val
}
