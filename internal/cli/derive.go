package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// DeriveOptions holds flags for the derive command.
type DeriveOptions struct {
	*RootOptions
	Verify string
}

// DeriveResult is the canonical address for one owner.
type DeriveResult struct {
	Namespace string `json:"namespace"`
	Owner     string `json:"owner"`
	Address   string `json:"address"`
	Salt      uint8  `json:"salt"`
	Verified  *bool  `json:"verified,omitempty"`
}

func (r DeriveResult) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "address: %s\n", r.Address)
	fmt.Fprintf(w, "salt:    %d\n", r.Salt)
	if verbose {
		fmt.Fprintf(w, "owner:   %s\n", r.Owner)
		fmt.Fprintf(w, "ns:      %s\n", r.Namespace)
	}
	if r.Verified != nil {
		fmt.Fprintf(w, "verified: %v\n", *r.Verified)
	}
}

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeriveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "derive <owner>",
		Short: "Compute an owner's canonical vault address",
		Long: `Compute the canonical vault address and salt for an owner identity under
the configured namespace.

With --verify, also check that the given address is the canonical one.
Addresses built from any other salt are rejected.

Exit codes:
  0 - Address derived (and verified, with --verify)
  1 - --verify address is not canonical
  2 - Command error (bad key, derivation exhausted)

Examples:
  vaultguard derive 3b6a27bc...
  vaultguard derive 3b6a27bc... --verify 9f1c...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Verify, "verify", "", "address to check against the canonical one")

	return cmd
}

func runDerive(opts *DeriveOptions, ownerHex string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	owner, err := parseKeyFlag("owner", ownerHex)
	if err != nil {
		return err
	}

	deriver := cfg.Deriver()
	addr, salt, err := deriver.Derive(cfg.Namespace, owner)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to derive address", err)
	}

	result := DeriveResult{
		Namespace: cfg.Namespace,
		Owner:     owner.String(),
		Address:   addr.String(),
		Salt:      salt,
	}
	if opts.Verify == "" {
		return opts.formatter(cmd).Success(result)
	}

	claimed, err := parseKeyFlag("verify", opts.Verify)
	if err != nil {
		return err
	}
	ok, err := deriver.Verify(cfg.Namespace, owner, claimed)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify address", err)
	}
	result.Verified = &ok
	if ok {
		return opts.formatter(cmd).Success(result)
	}

	msg := fmt.Sprintf("%s is not the canonical address", claimed.Short())
	if err := opts.formatter(cmd).Result(result, &CLIError{Code: CodeMismatch, Message: msg}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}
