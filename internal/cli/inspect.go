package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/store"
)

// InspectOptions holds flags for the inspect subcommands.
type InspectOptions struct {
	*RootOptions
	Owner  string
	Status string
}

// NewInspectCommand creates the inspect command and its subcommands.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read records and the instruction log",
		Long: `Read stored state without processing anything.

Examples:
  vaultguard inspect record 9f1c...
  vaultguard inspect vault 3b6a...
  vaultguard inspect records --owner 3b6a...
  vaultguard inspect log --status rejected`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "record <address>",
		Short:         "Show the record at an address",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectRecord(opts, args[0], false, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "vault <owner>",
		Short:         "Show the vault at an owner's canonical address",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectRecord(opts, args[0], true, cmd)
		},
	})

	records := &cobra.Command{
		Use:           "records",
		Short:         "List stored records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectRecords(opts, cmd)
		},
	}
	records.Flags().StringVar(&opts.Owner, "owner", "", "only records owned by this identity")
	cmd.AddCommand(records)

	log := &cobra.Command{
		Use:           "log",
		Short:         "List the instruction log in seq order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectLog(opts, cmd)
		},
	}
	log.Flags().StringVar(&opts.Status, "status", "", "only entries with this status (committed|rejected)")
	cmd.AddCommand(log)

	return cmd
}

func (o *InspectOptions) open() (*store.Store, func(ir.Key) (ir.Key, error), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	deriver := cfg.Deriver()
	vaultOf := func(owner ir.Key) (ir.Key, error) {
		addr, _, err := deriver.Derive(cfg.Namespace, owner)
		return addr, err
	}
	return st, vaultOf, nil
}

func runInspectRecord(opts *InspectOptions, arg string, byOwner bool, cmd *cobra.Command) error {
	ctx := context.Background()

	st, vaultOf, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	addr, err := parseKeyFlag("address", arg)
	if err != nil {
		return err
	}
	if byOwner {
		if addr, err = vaultOf(addr); err != nil {
			return WrapExitError(ExitCommandError, "failed to derive vault address", err)
		}
	}

	rec, found, err := st.GetRecord(ctx, addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read record", err)
	}
	if !found {
		msg := fmt.Sprintf("no record at %s", addr)
		if err := opts.formatter(cmd).Error(CodeStore, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	view, err := newRecordView(rec)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render record", err)
	}
	return opts.formatter(cmd).Success(view)
}

func runInspectRecords(opts *InspectOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, _, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	owner, err := parseKeyFlag("owner", opts.Owner)
	if err != nil {
		return err
	}

	var recs []ir.Record
	if owner.IsZero() {
		recs, err = st.ListRecords(ctx)
	} else {
		recs, err = st.ListRecordsByOwner(ctx, owner)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list records", err)
	}

	views, err := newRecordViews(recs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render records", err)
	}
	return opts.formatter(cmd).Success(RecordList(views))
}

func runInspectLog(opts *InspectOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	switch ir.Status(opts.Status) {
	case "", ir.StatusCommitted, ir.StatusRejected:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --status %q", opts.Status))
	}

	st, _, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ReadInstructions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read instruction log", err)
	}

	views := make(LogList, 0, len(entries))
	for _, e := range entries {
		if opts.Status != "" && string(e.Status) != opts.Status {
			continue
		}
		views = append(views, newLogView(e))
	}
	return opts.formatter(cmd).Success(views)
}
