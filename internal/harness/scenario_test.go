package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one initialize"
keys: [alice]
steps:
  - op: initialize
    vault: alice
    expect: { status: committed }
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, []string{"alice"}, s.Keys)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "initialize", s.Steps[0].Op)
	assert.Nil(t, s.Steps[0].SignedBy)
}

func TestParseScenario_ExplicitEmptySignedBy(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unsigned
description: "unsigned withdraw"
keys: [alice]
steps:
  - op: withdraw
    vault: alice
    signed_by: []
    payload: { amount: 1 }
    expect: { status: rejected, kind: AuthorizationFailed }
`))
	require.NoError(t, err)
	assert.NotNil(t, s.Steps[0].SignedBy)
	assert.Empty(t, s.Steps[0].SignedBy)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", minimalScenario + "extra: true\n", "extra"},
		{"missing description", `
name: x
keys: [alice]
steps:
  - { op: use, vault: alice, expect: { status: committed } }
`, "Description"},
		{"no keys", `
name: x
description: d
keys: []
steps:
  - { op: use, vault: alice, expect: { status: committed } }
`, "Keys"},
		{"bad alias", `
name: x
description: d
keys: [Alice]
steps:
  - { op: use, vault: alice, expect: { status: committed } }
`, "alias"},
		{"unknown op", `
name: x
description: d
keys: [alice]
steps:
  - { op: explode, vault: alice, expect: { status: committed } }
`, "vaultop"},
		{"bad status", `
name: x
description: d
keys: [alice]
steps:
  - { op: use, vault: alice, expect: { status: maybe } }
`, "oneof"},
		{"rejected without kind", `
name: x
description: d
keys: [alice]
steps:
  - { op: use, vault: alice, expect: { status: rejected } }
`, "Kind"},
		{"undeclared key", `
name: x
description: d
keys: [alice]
steps:
  - { op: use, vault: bob, expect: { status: committed } }
`, "not a declared key"},
		{"bad reference kind", `
name: x
description: d
keys: [alice]
steps:
  - { op: use, vault: "wallet:alice", expect: { status: committed } }
`, "ref"},
		{"missing vault", `
name: x
description: d
keys: [alice]
steps:
  - { op: use, expect: { status: committed } }
`, "vault is required"},
		{"step after halt", `
name: x
description: d
keys: [alice]
steps:
  - { op: halt, expect: { status: halted } }
  - { op: use, vault: alice, expect: { status: committed } }
`, "after halt"},
		{"log_count without count", minimalScenario + `
assertions:
  - type: log_count
`, "Count"},
		{"record without target", minimalScenario + `
assertions:
  - type: record
    expect: { balance: 0 }
`, "record is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadScenario_TestdataAllValid(t *testing.T) {
	paths, err := Discover("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}

func TestDiscover_SortedYAMLOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.yaml"), []byte("x"), 0o644))

	paths, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, paths)
}

func TestSplitRef(t *testing.T) {
	tests := []struct {
		ref, kind, alias string
		wantErr          bool
	}{
		{"alice", "", "alice", false},
		{"key:alice", refKey, "alice", false},
		{"vault:alice", refVault, "alice", false},
		{"holding:alice", refHolding, "alice", false},
		{"wallet:alice", "", "", true},
	}
	for _, tt := range tests {
		kind, alias, err := splitRef(tt.ref)
		if tt.wantErr {
			assert.Error(t, err, tt.ref)
			continue
		}
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.kind, kind)
		assert.Equal(t, tt.alias, alias)
	}
}
