package database

import (
	"os"
	"testing"
)

// GetTestDSN returns the integration database DSN, skipping the test when
// TEST_DATABASE_URL is unset.
func GetTestDSN(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return dsn
}
