// Package tests holds Postgres-backed integration and end-to-end tests. They
// skip unless DATABASE_URL points at a disposable database.
package tests

import (
	"context"
	"database/sql"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/db"
)

// OpenTestDB connects to DATABASE_URL, applies migrations and empties the
// tables. The test is skipped when DATABASE_URL is unset.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	database, err := db.Open(context.Background(), databaseURL, zap.NewNop())
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database), "migrations must run successfully")
	require.NoError(t, db.Truncate(context.Background(), database), "truncate tables")
	return database
}

var codePattern = regexp.MustCompile(`>(\d{6})<`)

// CaptureMailer records the last reset code mailed to each address
type CaptureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func NewCaptureMailer() *CaptureMailer {
	return &CaptureMailer{codes: make(map[string]string)}
}

func (m *CaptureMailer) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match := codePattern.FindStringSubmatch(body); match != nil {
		m.codes[to] = match[1]
	}
	return nil
}

// Code returns the last code sent to addr
func (m *CaptureMailer) Code(addr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[addr]
}
