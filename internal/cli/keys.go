package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultguard/internal/ir"
)

// Key files hold the 32-byte Ed25519 seed as one line of hex.

// readKeyFile loads the private key stored at path.
func readKeyFile(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file %s: seed is %d bytes, want %d", path, len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// writeKeyFile stores priv's seed at path with owner-only permissions.
func writeKeyFile(path string, priv ed25519.PrivateKey, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("key file %s exists (use --force to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if _, err := fmt.Fprintln(f, hex.EncodeToString(priv.Seed())); err != nil {
		f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}

func identityOf(priv ed25519.PrivateKey) ir.Key {
	var k ir.Key
	copy(k[:], priv.Public().(ed25519.PublicKey))
	return k
}

// parseKeyFlag parses a hex key flag value. Empty yields the zero key.
func parseKeyFlag(name, value string) (ir.Key, error) {
	if value == "" {
		return ir.ZeroKey, nil
	}
	k, err := ir.ParseKey(value)
	if err != nil {
		return ir.ZeroKey, WrapExitError(ExitCommandError, "invalid --"+name, err)
	}
	return k, nil
}

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Out   string
	Force bool
}

// KeygenResult is the output of keygen. Seed is set only when no key file
// was written.
type KeygenResult struct {
	Identity string `json:"identity"`
	KeyFile  string `json:"key_file,omitempty"`
	Seed     string `json:"seed,omitempty"`
}

func (r KeygenResult) renderText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "identity: %s\n", r.Identity)
	if r.KeyFile != "" {
		fmt.Fprintf(w, "key file: %s\n", r.KeyFile)
	}
	if r.Seed != "" {
		fmt.Fprintf(w, "seed:     %s\n", r.Seed)
	}
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 signing key",
		Long: `Generate an Ed25519 key pair and print its public identity.

With --out the seed is written to a file readable only by its owner and can
be passed to invoke with --key. Without --out the seed is printed.

Examples:
  vaultguard keygen --out alice.key
  vaultguard keygen --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the seed to this file")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing key file")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate key", err)
	}

	result := KeygenResult{Identity: identityOf(priv).String()}
	if opts.Out == "" {
		result.Seed = hex.EncodeToString(priv.Seed())
	} else {
		if err := writeKeyFile(opts.Out, priv, opts.Force); err != nil {
			return WrapExitError(ExitCommandError, "failed to save key", err)
		}
		result.KeyFile = opts.Out
	}
	return opts.formatter(cmd).Success(result)
}
