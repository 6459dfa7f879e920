package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/mailtriage/internal/dedupe"
	"github.com/DreamCats/mailtriage/internal/textsearch"
)

const testMessages = `[
	{"id": "1", "subject": "Meeting tomorrow at 10am", "body": ""},
	{"id": "2", "subject": "Meeting tomorrow at 10 AM", "body": ""},
	{"id": "3", "subject": "Completely unrelated topic", "body": ""}
]`

// setupWorkspace writes a config pointing every path into a temp dir and a
// JSON export with the three reference messages.
func setupWorkspace(t *testing.T) (configPath, messagesPath string) {
	t.Helper()

	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	messagesPath = filepath.Join(dir, "messages.json")

	cfg := fmt.Sprintf(`embedding:
  provider: local
store:
  dir: %s
  text_index: true
log:
  dir: %s
  level: error
`, filepath.Join(dir, "db"), filepath.Join(dir, "logs"))

	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(messagesPath, []byte(testMessages), 0o644))
	return configPath, messagesPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_IngestDetectFlow(t *testing.T) {
	configPath, messages := setupWorkspace(t)

	_, err := run(t, "--config", configPath, "ingest", messages)
	require.NoError(t, err)

	out, err := run(t, "--config", configPath, "--json", "detect", messages)
	require.NoError(t, err)

	var groups []dedupe.Group
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "1", groups[0].PrimaryID)
	assert.Equal(t, []string{"2"}, groups[0].MemberIDs)

	out, err = run(t, "--config", configPath, "--json", "stats")
	require.NoError(t, err)
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(3), stats.Items)
	assert.Equal(t, 256, stats.Dimension)
	require.NotNil(t, stats.TextDocs)
	assert.Equal(t, uint64(3), *stats.TextDocs)

	out, err = run(t, "--config", configPath, "--json", "find", "unrelated")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "3"`)
}

func TestCLI_ReingestWithoutIDsKeepsCount(t *testing.T) {
	configPath, _ := setupWorkspace(t)
	messages := filepath.Join(filepath.Dir(configPath), "noids.json")
	require.NoError(t, os.WriteFile(messages, []byte(`[
		{"subject": "Invoice for March", "body": "Amount due 120 EUR", "sender": "billing@example.com"},
		{"subject": "Team lunch friday", "body": "Pizza at noon"}
	]`), 0o644))

	for i := 0; i < 2; i++ {
		_, err := run(t, "--config", configPath, "ingest", messages)
		require.NoError(t, err)
	}

	out, err := run(t, "--config", configPath, "--json", "stats")
	require.NoError(t, err)
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.Items)
	require.NotNil(t, stats.TextDocs)
	assert.Equal(t, uint64(2), *stats.TextDocs)

	out, err = run(t, "--config", configPath, "--json", "detect", messages)
	require.NoError(t, err)
	var groups []dedupe.Group
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	assert.Empty(t, groups)
}

func TestCLI_FindMatchesSubject(t *testing.T) {
	configPath, messages := setupWorkspace(t)

	_, err := run(t, "--config", configPath, "ingest", messages)
	require.NoError(t, err)

	for _, query := range []string{"meeting", "subject:meeting"} {
		out, err := run(t, "--config", configPath, "--json", "find", query)
		require.NoError(t, err)

		var hits []textsearch.Hit
		require.NoError(t, json.Unmarshal([]byte(out), &hits))
		var ids []string
		for _, h := range hits {
			ids = append(ids, h.ID)
		}
		assert.ElementsMatch(t, []string{"1", "2"}, ids, query)
	}
}

func TestCLI_IngestJSONReportsMatches(t *testing.T) {
	configPath, messages := setupWorkspace(t)

	out, err := run(t, "--config", configPath, "--json", "ingest", messages)
	require.NoError(t, err)

	var results []ingestResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Matches)
	require.Len(t, results[1].Matches, 1)
	assert.Equal(t, "1", results[1].Matches[0].ID)
	assert.Empty(t, results[2].Matches)
}

func TestCLI_Check(t *testing.T) {
	configPath, messages := setupWorkspace(t)

	out, err := run(t, "--config", configPath, "--json", "check", messages)
	require.NoError(t, err)

	var results []ingestResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	for _, r := range results {
		assert.Empty(t, r.Matches)
	}
}

func TestCLI_Clear(t *testing.T) {
	configPath, messages := setupWorkspace(t)

	_, err := run(t, "--config", configPath, "ingest", messages)
	require.NoError(t, err)

	_, err = run(t, "--config", configPath, "clear")
	assert.Error(t, err)

	out, err := run(t, "--config", configPath, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 3 messages")

	out, err = run(t, "--config", configPath, "--json", "stats")
	require.NoError(t, err)
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(0), stats.Items)
}

func TestCLI_DetectInvalidThreshold(t *testing.T) {
	configPath, messages := setupWorkspace(t)

	_, err := run(t, "--config", configPath, "detect", messages, "--threshold", "1.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate detection failed")
}

func TestCLI_DetectNotifyWithoutWebhook(t *testing.T) {
	configPath, messages := setupWorkspace(t)

	_, err := run(t, "--config", configPath, "ingest", messages)
	require.NoError(t, err)

	_, err = run(t, "--config", configPath, "detect", messages, "--notify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook url not configured")
}

func TestCLI_DetectNotifyReportsFailure(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		received <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	configPath, messages := setupWorkspace(t)
	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "notify:\n  webhook_url: %s\n", srv.URL)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = run(t, "--config", configPath, "detect", messages, "--threshold", "1.5", "--notify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate detection failed")

	select {
	case body := <-received:
		assert.Contains(t, body, "Duplicate detection degraded")
		assert.Contains(t, body, "threshold must be between 0 and 1")
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not called")
	}
}

func TestCLI_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := run(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created")

	out, err = run(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestCLI_MissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestCLI_MissingEnvConfig(t *testing.T) {
	t.Setenv("MAILTRIAGE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := run(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestCLI_Version(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
