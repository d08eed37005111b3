package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeagent/internal/model"
	"edgeagent/internal/repository/sqlite"
)

func TestJournalCommands(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cli_journal_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "deliveries.db")
	db, err := sqlite.New(dbPath)
	require.NoError(t, err)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, sqlite.NewDeliveryRepository(db).InsertBatch([]model.Delivery{
		{Context: 1, MessageID: "a", Channel: "temperatureOutput", Status: model.StatusOK, DispatchedAt: base, SettledAt: base.Add(20 * time.Millisecond)},
		{Context: 2, MessageID: "b", Channel: "temperatureOutput", Status: model.StatusMessageTimeout, Detail: "no ack", DispatchedAt: base, SettledAt: base.Add(10 * time.Second)},
	}))
	require.NoError(t, db.Close())

	t.Setenv("JOURNAL_PATH", dbPath)
	t.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))

	run := func(args ...string) string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append(args, "--env-file", filepath.Join(tempDir, "missing.env")))
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	stats := run("journal", "stats")
	assert.Contains(t, stats, "Total:        2")
	assert.Contains(t, stats, "MESSAGE_TIMEOUT")
	assert.Contains(t, stats, "temperatureOutput")

	recent := run("journal", "recent", "-n", "1")
	assert.Contains(t, recent, "MESSAGE_TIMEOUT")
	assert.Contains(t, recent, "no ack")
	assert.NotContains(t, recent, "\n1 ")

	assert.Contains(t, run("journal", "clear"), "Deleted 2 deliveries.")
	assert.Contains(t, run("journal", "stats"), "No deliveries journaled.")
}
