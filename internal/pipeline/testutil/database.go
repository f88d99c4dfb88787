package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/omnirag/omnirag-go/pkg/db"
)

// SetupTestDB creates a test database connection with a clean schema. Tests
// are skipped when the database environment is not configured.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if err := LoadEnvFromFile("../../../.env"); err != nil {
		t.Logf("No .env file loaded: %v", err)
	}

	dbURL := os.Getenv("TURSO_DATABASE_URL")
	authToken := os.Getenv("TURSO_AUTH_TOKEN")
	if dbURL == "" || authToken == "" {
		t.Skip("Database environment variables not set - skipping integration test")
	}

	database, err := db.Connect()
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	cleanupTestData(t, database)
	return database
}

// CleanupTestDB performs cleanup after tests.
func CleanupTestDB(t *testing.T, database *sql.DB) {
	t.Helper()
	if database == nil {
		return
	}
	cleanupTestData(t, database)
	database.Close()
}

func cleanupTestData(t *testing.T, database *sql.DB) {
	t.Helper()
	// Clean up in reverse order of dependencies.
	tables := []string{
		"turns",
		"summaries",
		"chunks",
		"sources",
		"sessions",
	}

	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s", table) // #nosec G201 -- table names are hardcoded, not user input
		if _, err := database.Exec(query); err != nil {
			t.Logf("Warning: Failed to clean table %s: %v", table, err)
		}
	}
}

// LoadEnvFromFile loads environment variables from a file of export lines.
func LoadEnvFromFile(filepath string) error {
	file, err := os.Open(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	const maxFileSize = 1024
	content := make([]byte, maxFileSize)
	n, err := file.Read(content)
	if err != nil && n == 0 {
		return err
	}

	lines := strings.Split(string(content[:n]), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "export ") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		const expectedParts = 2
		parts := strings.SplitN(line, "=", expectedParts)
		if len(parts) != expectedParts {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"") {
			value = value[1 : len(value)-1]
		}
		os.Setenv(key, value)
	}

	return nil
}
