package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultguard/internal/derive"
	"github.com/roach88/vaultguard/internal/engine"
	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/testutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "vault", cfg.Namespace)
	assert.Equal(t, 64, cfg.MaxBufferCapacity)
	assert.Equal(t, 255, cfg.Derivation.MaxSalt)
	assert.False(t, cfg.AllowThirdPartyDeposit)
	assert.Empty(t, cfg.PrivilegedAuthority)
}

func TestLoad_File(t *testing.T) {
	_, authority := testutil.Keypair("authority")
	path := writeConfig(t, `
namespace: escrow
privileged_authority: `+authority.String()+`
allow_third_party_deposit: true
max_buffer_capacity: 128
derivation:
  max_salt: 32
store:
  path: /var/lib/vaultguard/state.db
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "escrow", cfg.Namespace)
	assert.True(t, cfg.AllowThirdPartyDeposit)
	assert.Equal(t, 128, cfg.MaxBufferCapacity)
	assert.Equal(t, 32, cfg.Derivation.MaxSalt)
	assert.Equal(t, "/var/lib/vaultguard/state.db", cfg.Store.Path)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)

	got, err := cfg.Authority()
	require.NoError(t, err)
	assert.Equal(t, authority, got)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "namespace: escrow\n")
	t.Setenv("VAULTGUARD_NAMESPACE", "treasury")
	t.Setenv("VAULTGUARD_ALLOW_THIRD_PARTY_DEPOSIT", "true")
	t.Setenv("VAULTGUARD_STORE_PATH", "/tmp/env.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "treasury", cfg.Namespace)
	assert.True(t, cfg.AllowThirdPartyDeposit)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfig(t, "derivation:\n  max_salt: 300\n")

	_, err := Load(path)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "max_salt")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty namespace", func(c *Config) { c.Namespace = "" }, "namespace"},
		{"negative capacity", func(c *Config) { c.MaxBufferCapacity = -1 }, "max_buffer_capacity"},
		{"salt above byte", func(c *Config) { c.Derivation.MaxSalt = 256 }, "max_salt"},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "path"},
		{"unknown level", func(c *Config) { c.Log.Level = "verbose" }, "level"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "format"},
		{"authority not hex", func(c *Config) { c.PrivilegedAuthority = "not-a-key" }, "privileged_authority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Error(), tt.field)
		})
	}
}

func TestValidate_DefaultPasses(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestAuthority_EmptyIsZero(t *testing.T) {
	k, err := Default().Authority()
	require.NoError(t, err)
	assert.True(t, k.IsZero())
}

func TestProcessorOptions_ApplyNamespaceAndSalt(t *testing.T) {
	cfg := Default()
	cfg.Namespace = "escrow"
	cfg.Derivation.MaxSalt = 200

	opts, err := cfg.ProcessorOptions()
	require.NoError(t, err)
	p := engine.New(nil, opts...)

	_, owner := testutil.Keypair("alice")
	got, gotSalt, err := p.Derive(owner)
	require.NoError(t, err)

	want, wantSalt, err := derive.New(derive.WithMaxSalt(200)).Derive("escrow", owner)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, wantSalt, gotSalt)
	assert.LessOrEqual(t, gotSalt, uint8(200))

	defaultAddr, _, err := derive.New().Derive(engine.DefaultNamespace, owner)
	require.NoError(t, err)
	assert.NotEqual(t, defaultAddr, got, "namespace must change the address")
}

func TestProcessorOptions_BadAuthority(t *testing.T) {
	cfg := Default()
	cfg.PrivilegedAuthority = strings.Repeat("z", 64)

	_, err := cfg.ProcessorOptions()
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log = LogConfig{Level: "warn", Format: "json"}
	logger := cfg.NewLogger(&buf)

	logger.Info("dropped")
	logger.Warn("kept", "op", ir.OpFree.String())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "free", rec["op"])
}
