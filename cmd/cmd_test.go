package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/salesintel/core/allocation"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf(`generator:
  customers: 60
allocation:
  total_budget: 20
data:
  dir: %q
knowledge:
  dir: %q
logging:
  path: %q
`, dir, filepath.Join(dir, "knowledgedb"), filepath.Join(dir, "runs.jsonl"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path, dir
}

func TestCommands(t *testing.T) {
	path, dir := writeConfig(t)

	out := execute(t, "-c", path, "kb")
	assert.Contains(t, out, "product_capabilities.md")

	out = execute(t, "-c", path, "generate", "--customers", "50")
	assert.Contains(t, out, "generated 50 customers")
	_, err := os.Stat(filepath.Join(dir, "data", "customers.csv"))
	require.NoError(t, err)

	out = execute(t, "-c", path, "allocate", "--budget", "12")
	assert.Contains(t, out, "actions allocated: 12")
	assert.Contains(t, out, "customers: 50")

	out = execute(t, "-c", path, "runs", "--json")
	assert.Contains(t, out, `"allocated":12`)
}

func TestAllocateRejectsZeroCap(t *testing.T) {
	path, _ := writeConfig(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"-c", path, "allocate", "--budget", "12", "--cap", "0"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, allocation.ErrInvalidArgument)
}
