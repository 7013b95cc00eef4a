package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "vaultguard", cmd.Use)
	assert.Contains(t, cmd.Long, "guards")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"keygen"},
		{"derive"},
		{"invoke"},
		{"inspect"},
		{"inspect", "record"},
		{"inspect", "vault"},
		{"inspect", "records"},
		{"inspect", "log"},
		{"replay"},
		{"test"},
		{"version"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestInvokeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	invokeCmd, _, err := cmd.Find([]string{"invoke"})
	require.NoError(t, err)

	for _, name := range []string{"key", "owner", "record", "companion", "amount", "capacity", "sensitive", "activate", "reference", "data", "action"} {
		assert.NotNil(t, invokeCmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.Equal(t, "k", invokeCmd.Flags().Lookup("key").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute("--format", "yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVersion(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "vaultguard 0.1.0")

	out, err = execute("--format", "json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"processor": "0.1.0"`)
	assert.Contains(t, out, `"record_encoding": "1"`)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute("--config", "/nonexistent/vaultguard.yaml", "derive", "00")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
