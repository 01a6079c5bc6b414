package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `database:
  driver: sqlite
  sqlite:
    path: answers.db
    max_open_conns: 1
cache:
  store: sql
embedding:
  provider: hashing
  dimension: 256
completion:
  provider: none
observability:
  log_level: error
`

func writeConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))
	return path
}

func run(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied")

	out, err = run(t, cfg, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")

	out, err = run(t, cfg, "", "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")
}

func TestResolve_RequiresTenant(t *testing.T) {
	_, err := run(t, writeConfig(t), "", "resolve", "What are your delivery terms?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant is required")
}

func TestIndexPageThenResolve(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "Delivery terms: orders are delivered within 5 business days across India.",
		"--tenant", "tenant-a", "index", "page", "--url", "https://shop.test/terms", "--title", "Terms")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed https://shop.test/terms")

	out, err = run(t, cfg, "", "--tenant", "tenant-a", "resolve", "--json", "What are your delivery terms?")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "answered", res["outcome"])
	assert.Equal(t, "website_content", res["sourceTag"])

	out, err = run(t, cfg, "", "--tenant", "tenant-a", "resolve", "What", "are", "your", "delivery", "terms?")
	require.NoError(t, err)
	assert.Contains(t, out, "hit #2")
}

func TestIndexDocumentsThenResolve(t *testing.T) {
	cfg := writeConfig(t)
	doc := filepath.Join(t.TempDir(), "company-profile.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Our office is at 123 Main St. We are open Monday to Friday."), 0o600))

	out, err := run(t, cfg, "", "--tenant", "tenant-a", "index", "documents", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "company-profile.txt")
	assert.Contains(t, out, "Indexed 1 document(s)")

	out, err = run(t, cfg, "", "--tenant", "tenant-a", "resolve", "where is your office?")
	require.NoError(t, err)
	assert.Contains(t, out, "Our office is at 123 Main St")
	assert.Contains(t, out, "tenant_documents")
	assert.Contains(t, out, "company-profile.txt")
}

func TestIndexDocuments_ReportsFailures(t *testing.T) {
	cfg := writeConfig(t)
	missing := filepath.Join(t.TempDir(), "missing.txt")

	out, err := run(t, cfg, "", "--tenant", "tenant-a", "index", "documents", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 document(s) failed")
	assert.Contains(t, out, "missing.txt")
}

func TestKnowledgeUpsertThenResolve(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "", "--tenant", "tenant-a", "knowledge", "upsert",
		"--question", "Do you ship internationally?", "--answer", "Yes, to 40 countries.")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored knowledge item")

	out, err = run(t, cfg, "", "--tenant", "tenant-a", "resolve", "Do you ship internationally?")
	require.NoError(t, err)
	assert.Contains(t, out, "Yes, to 40 countries.")
	assert.Contains(t, out, "tenant_knowledge")
}

func TestProductCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "", "--tenant", "tenant-a", "product", "upsert",
		"--sku", "BK-1", "--name", "Oak Bookshelf", "--price", "220")
	require.NoError(t, err)
	assert.Contains(t, out, "220.00 USD")

	_, err = run(t, cfg, "", "--tenant", "tenant-a", "product", "delete", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid product id")
}

func TestCachePurge(t *testing.T) {
	out, err := run(t, writeConfig(t), "", "cache", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired cache entries")
}
