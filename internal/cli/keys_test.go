package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/testutil"
)

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice.key")
	priv, pub := testutil.Keypair("alice")

	require.NoError(t, writeKeyFile(path, priv, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := readKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, pub, identityOf(loaded))
}

func TestWriteKeyFileRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice.key")
	alice, _ := testutil.Keypair("alice")
	bob, bobID := testutil.Keypair("bob")

	require.NoError(t, writeKeyFile(path, alice, false))
	err := writeKeyFile(path, bob, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	require.NoError(t, writeKeyFile(path, bob, true))
	loaded, err := readKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, bobID, identityOf(loaded))
}

func TestReadKeyFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not_hex", "zz", "encoding/hex"},
		{"short", "abcd", "seed is 2 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := readKeyFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := readKeyFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestKeygenWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.key")

	var result KeygenResult
	stdout, err := execute("--format", "json", "keygen", "--out", path)
	require.NoError(t, err)
	decodeData(t, stdout, &result)

	assert.Equal(t, path, result.KeyFile)
	assert.Empty(t, result.Seed)

	loaded, err := readKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, result.Identity, identityOf(loaded).String())

	_, err = execute("keygen", "--out", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestKeygenPrintsSeed(t *testing.T) {
	var result KeygenResult
	stdout, err := execute("--format", "json", "keygen")
	require.NoError(t, err)
	decodeData(t, stdout, &result)

	seed, err := hex.DecodeString(result.Seed)
	require.NoError(t, err)
	require.Len(t, seed, 32)

	id, err := ir.ParseKey(result.Identity)
	require.NoError(t, err)
	assert.Equal(t, identityOf(ed25519.NewKeyFromSeed(seed)), id)
}
