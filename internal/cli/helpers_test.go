package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultguard/internal/derive"
	"github.com/roach88/vaultguard/internal/engine"
	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/testutil"
)

// workspace is a temp dir holding a database, a config file, and key files
// for deterministic test identities.
type workspace struct {
	dir    string
	db     string
	config string
	keys   *testutil.Keyring
}

func newWorkspace(t *testing.T, extraConfig string) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:    dir,
		db:     filepath.Join(dir, "vaultguard.db"),
		config: filepath.Join(dir, "vaultguard.yaml"),
		keys:   testutil.NewKeyring("alice", "bob", "authority"),
	}

	cfg := fmt.Sprintf("privileged_authority: %q\nlog:\n  level: error\n%s", w.keys.Key("authority"), extraConfig)
	require.NoError(t, os.WriteFile(w.config, []byte(cfg), 0o644))

	for _, name := range []string{"alice", "bob", "authority"} {
		require.NoError(t, writeKeyFile(w.keyFile(name), w.keys.Private(name), false))
	}
	return w
}

func (w *workspace) keyFile(name string) string {
	return filepath.Join(w.dir, name+".key")
}

func (w *workspace) vault(t *testing.T, name string) ir.Key {
	t.Helper()
	addr, _, err := derive.New().Derive(engine.DefaultNamespace, w.keys.Key(name))
	require.NoError(t, err)
	return addr
}

func (w *workspace) holding(t *testing.T, name string) ir.Key {
	t.Helper()
	addr, _, err := derive.New().Derive(engine.HoldingNamespace, w.vault(t, name))
	require.NoError(t, err)
	return addr
}

// run executes the root command with the workspace config and database.
func (w *workspace) run(args ...string) (string, error) {
	return execute(append([]string{"--config", w.config, "--db", w.db}, args...)...)
}

// runJSON runs with --format json and decodes the envelope; data is decoded
// into out when non-nil.
func (w *workspace) runJSON(t *testing.T, out any, args ...string) (CLIResponse, error) {
	t.Helper()
	stdout, err := w.run(append([]string{"--format", "json"}, args...)...)

	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &raw), "stdout: %s", stdout)
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}, err
}

// initialize creates name's active vault with an initial deposit.
func (w *workspace) initialize(t *testing.T, name string, deposit uint64) {
	t.Helper()
	_, err := w.run("invoke", "initialize",
		"--key", w.keyFile(name),
		"--amount", fmt.Sprint(deposit),
		"--capacity", "8",
		"--activate",
	)
	require.NoError(t, err)
}

func (w *workspace) setSensitive(t *testing.T, name string, value uint64) {
	t.Helper()
	_, err := w.run("invoke", "set_sensitive", "--key", w.keyFile(name), "--sensitive", fmt.Sprint(value))
	require.NoError(t, err)
}

// decodeData unmarshals the data field of a JSON envelope into out.
func decodeData(t *testing.T, stdout string, out any) {
	t.Helper()
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &raw), "stdout: %s", stdout)
	require.NoError(t, json.Unmarshal(raw.Data, out))
}

func execute(args ...string) (string, error) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
