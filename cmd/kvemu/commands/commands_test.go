package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/kvemu/internal/config"
	dserrors "github.com/systmms/kvemu/internal/errors"
	"github.com/systmms/kvemu/internal/logging"
)

const passingScenario = `name: passing
steps:
  - op: set
    name: TestSecret
    value: SecretValue
  - op: get
    name: TestSecret
    expect:
      value: SecretValue
`

const failingScenario = `name: failing
steps:
  - op: get
    name: Nope
`

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Path:   filepath.Join(t.TempDir(), "kvemu.yaml"),
		Logger: logging.New(false, true),
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitCommand_CreatesLoadableConfig(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)

	_, err := execute(t, NewInitCommand(cfg))
	require.NoError(t, err)

	content, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "vault_url:")
	assert.Contains(t, string(content), "recoverable_days:")

	require.NoError(t, cfg.Load())
	assert.Equal(t, config.DefaultVaultURL, cfg.Definition.VaultURL)
	assert.Equal(t, 90, cfg.Definition.RecoverableDays)
}

func TestInitCommand_ExistingConfigError(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)
	require.NoError(t, os.WriteFile(cfg.Path, []byte("existing config"), 0644))

	_, err := execute(t, NewInitCommand(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRunCommand_Passing(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)
	path := writeFile(t, t.TempDir(), "passing.yaml", passingScenario)

	out, err := execute(t, NewRunCommand(cfg), path)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario passing")
	assert.Contains(t, out, "2 passed, 0 failed")
}

func TestRunCommand_Failing(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)
	dir := t.TempDir()
	passing := writeFile(t, dir, "passing.yaml", passingScenario)
	failing := writeFile(t, dir, "failing.yaml", failingScenario)

	out, err := execute(t, NewRunCommand(cfg), passing, failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 scenario(s) failed")
	assert.Contains(t, err.Error(), "Secret with name 'Nope' not found.")
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "0 passed, 1 failed")
}

func TestRunCommand_JSON(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)
	path := writeFile(t, t.TempDir(), "passing.yaml", passingScenario)

	out, err := execute(t, NewRunCommand(cfg), path, "--json")
	require.NoError(t, err)

	var report struct {
		Scenario string `json:"scenario"`
		Steps    []struct {
			Op     string `json:"op"`
			Passed bool   `json:"passed"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "passing", report.Scenario)
	require.Len(t, report.Steps, 2)
	assert.True(t, report.Steps[1].Passed)
}

func TestRunCommand_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no arguments", func(t *testing.T) {
		_, err := execute(t, NewRunCommand(newConfig(t)))
		require.Error(t, err)
	})

	t.Run("missing scenario", func(t *testing.T) {
		_, err := execute(t, NewRunCommand(newConfig(t)), filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Failed to read scenario file")
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := newConfig(t)
		require.NoError(t, os.WriteFile(cfg.Path, []byte("recoverable_days: 400\n"), 0644))
		path := writeFile(t, t.TempDir(), "passing.yaml", passingScenario)

		_, err := execute(t, NewRunCommand(cfg), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recoverable_days")
	})
}

func TestSeedCommand(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)
	env := writeFile(t, t.TempDir(), "dev.env", "DB_PASSWORD=hunter2\nAPI_KEY=abc\n")

	out, err := execute(t, NewSeedCommand(cfg), env)
	require.NoError(t, err)
	assert.Contains(t, out, "SECRET")
	assert.Contains(t, out, "API-KEY")
	assert.Contains(t, out, "DB-PASSWORD")
	assert.Contains(t, out, config.DefaultVaultURL+"/secrets/DB-PASSWORD/")
	assert.NotContains(t, out, "hunter2")
}

func TestSeedCommand_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := execute(t, NewSeedCommand(newConfig(t)), filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read seed file")
}

func TestServeCommand_StopsWhenContextDone(t *testing.T) {
	t.Parallel()
	cmd := NewServeCommand(newConfig(t))
	cmd.SetArgs([]string{"--listen", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
}

func TestServeCommand_AddressInUse(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = execute(t, NewServeCommand(newConfig(t)), "--listen", ln.Addr().String())
	require.Error(t, err)

	var userErr dserrors.UserError
	require.ErrorAs(t, dserrors.SimplifyError(err), &userErr)
	assert.Equal(t, "Listen address is already in use", userErr.Message)
	assert.Contains(t, userErr.Error(), ln.Addr().String())
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)
	require.NoError(t, os.WriteFile(cfg.Path, []byte("purge_interval: soon\n"), 0644))

	_, err := execute(t, NewServeCommand(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purge_interval")
}

func TestCompletionCommand(t *testing.T) {
	t.Parallel()
	root := &cobra.Command{Use: "kvemu"}
	root.AddCommand(NewCompletionCommand())

	out, err := execute(t, root, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "kvemu")

	_, err = execute(t, root, "completion", "tcsh")
	require.Error(t, err)
}
