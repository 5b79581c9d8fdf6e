package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testVault writes a small vault plus a static-embedder config and
// returns the vault dir and config path.
func testVault(t *testing.T) (string, string) {
	t.Helper()
	vault := t.TempDir()

	notes := map[string]string{
		"garden.md": `---
tags: [home, garden]
---
# Garden

## Planting

Tomatoes and basil go in after the last frost. Water deeply twice a
week and mulch to keep the soil cool through summer.
`,
		"work/meetings.md": `---
tags: [work]
---
# Meeting Notes

## Planning sync

Reviewed the quarterly roadmap and assigned owners for each milestone.
`,
	}
	for name, content := range notes {
		path := filepath.Join(vault, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfgPath := filepath.Join(vault, "vaultscope.yaml")
	cfg := `vault:
  path: ` + vault + `
embedding:
  provider: static
logging:
  level: error
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	return vault, cfgPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCLI_IndexSearchStatus(t *testing.T) {
	_, cfgPath := testVault(t)

	out, err := runCLI(t, "index", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents")

	out, err = runCLI(t, "search", "planting tomatoes in the garden", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "garden.md")

	out, err = runCLI(t, "status", "--json", "--config", cfgPath)
	require.NoError(t, err)

	var status struct {
		Documents int      `json:"documents"`
		Chunks    int      `json:"chunks"`
		Provider  string   `json:"provider"`
		Paths     []string `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 2, status.Documents)
	assert.Greater(t, status.Chunks, 0)
	assert.Equal(t, "static", status.Provider)
	assert.Contains(t, status.Paths, "garden.md")
}

func TestCLI_WritesLogFileUnderDataDir(t *testing.T) {
	vault, cfgPath := testVault(t)

	_, err := runCLI(t, "index", "--config", cfgPath)
	require.NoError(t, err)

	// Without an explicit logging.file, logs land in the data dir.
	logPath := filepath.Join(vault, ".vaultscope", "logs", "vaultscope.log")
	_, err = os.Stat(logPath)
	require.NoError(t, err)
}

func TestCLI_SearchTagFilter(t *testing.T) {
	_, cfgPath := testVault(t)

	_, err := runCLI(t, "index", "--config", cfgPath)
	require.NoError(t, err)

	out, err := runCLI(t, "search", "planning roadmap", "--tag", "work", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "meetings.md")
	assert.NotContains(t, out, "garden.md")
}

func TestCLI_SearchJSONFormat(t *testing.T) {
	_, cfgPath := testVault(t)

	_, err := runCLI(t, "index", "--config", cfgPath)
	require.NoError(t, err)

	out, err := runCLI(t, "search", "garden planting", "--format", "json", "--config", cfgPath)
	require.NoError(t, err)

	var rows []struct {
		ChunkID    string  `json:"chunk_id"`
		Path       string  `json:"path"`
		Similarity float64 `json:"similarity"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)
	assert.NotEmpty(t, rows[0].ChunkID)
	assert.NotEmpty(t, rows[0].Path)
}

func TestCLI_SearchWithoutIndex(t *testing.T) {
	// Opening a fresh data dir succeeds; the query just has nothing to
	// return.
	_, cfgPath := testVault(t)

	out, err := runCLI(t, "search", "anything", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestCLI_InitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "vaultscope.yaml")

	out, err := runCLI(t, "init", "--config", target, "--vault", dir)
	require.NoError(t, err)
	assert.Contains(t, out, target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "embedding:")

	// Second run without --force refuses to overwrite.
	_, err = runCLI(t, "init", "--config", target, "--vault", dir)
	assert.Error(t, err)

	_, err = runCLI(t, "init", "--config", target, "--vault", dir, "--force")
	assert.NoError(t, err)
}
