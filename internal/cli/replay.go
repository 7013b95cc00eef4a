package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultguard/internal/engine"
	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
}

// StateMismatch is a stored record whose state the replayed log does not
// reproduce.
type StateMismatch struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// ReplayResult summarizes a replay of the instruction log.
type ReplayResult struct {
	Replayed    int                 `json:"replayed"`
	Records     int                 `json:"records"`
	Divergences []engine.Divergence `json:"divergences,omitempty"`
	Mismatches  []StateMismatch     `json:"mismatches,omitempty"`
	Consistent  bool                `json:"consistent"`
}

func (r ReplayResult) renderText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "Replayed %d instruction(s), checked %d record(s)\n", r.Replayed, r.Records)
	for _, d := range r.Divergences {
		fmt.Fprintf(w, "✗ seq %d %s: %s\n", d.Seq, d.ID, d.Reason)
	}
	for _, m := range r.Mismatches {
		fmt.Fprintf(w, "✗ record %s: %s\n", m.Address, m.Reason)
	}
	if r.Consistent {
		fmt.Fprintln(w, "✓ Log reproduces stored state")
	}
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the instruction log and verify stored state",
		Long: `Re-process every logged transaction, in seq order, against an empty
in-memory store configured like the live one.

Each entry must reproduce its instruction ID, status, failure kind, and the
state digest of every record it wrote. Afterwards every stored record must
match its replayed state.

Exit codes:
  0 - Log reproduces the stored state
  1 - Divergence detected
  2 - Command error (database not found, etc.)

Examples:
  vaultguard replay --db ./vaultguard.db
  vaultguard replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	live, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer live.Close()

	entries, err := live.ReadInstructions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read instruction log", err)
	}

	scratch, err := store.Open(":memory:")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open replay store", err)
	}
	defer scratch.Close()

	procOpts, err := cfg.ProcessorOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	proc := engine.New(scratch, append(procOpts, engine.WithLogger(opts.logger(cfg, cmd)))...)

	report, err := proc.Replay(ctx, entries)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	mismatches, checked, err := compareStores(ctx, live, scratch)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compare state", err)
	}

	result := ReplayResult{
		Replayed:    report.Replayed,
		Records:     checked,
		Divergences: report.Divergences,
		Mismatches:  mismatches,
		Consistent:  report.Consistent() && len(mismatches) == 0,
	}
	if result.Consistent {
		return opts.formatter(cmd).Success(result)
	}

	msg := "replay diverged from stored state"
	if err := opts.formatter(cmd).Result(result, &CLIError{Code: CodeDiverged, Message: msg}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// compareStores checks every record in want against got by state digest.
func compareStores(ctx context.Context, want, got *store.Store) ([]StateMismatch, int, error) {
	recs, err := want.ListRecords(ctx)
	if err != nil {
		return nil, 0, err
	}
	replayed, err := got.ListRecords(ctx)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[ir.Key]bool, len(recs))
	var mismatches []StateMismatch
	for _, rec := range recs {
		seen[rec.Address] = true
		other, found, err := got.GetRecord(ctx, rec.Address)
		if err != nil {
			return nil, 0, err
		}
		if !found {
			mismatches = append(mismatches, StateMismatch{Address: rec.Address.String(), Reason: "not produced by replay"})
			continue
		}
		a, err := ir.StateDigest(rec)
		if err != nil {
			return nil, 0, err
		}
		b, err := ir.StateDigest(other)
		if err != nil {
			return nil, 0, err
		}
		if a != b {
			mismatches = append(mismatches, StateMismatch{
				Address: rec.Address.String(),
				Reason:  fmt.Sprintf("digest %s, replayed %s", a, b),
			})
		}
	}
	for _, rec := range replayed {
		if !seen[rec.Address] {
			mismatches = append(mismatches, StateMismatch{Address: rec.Address.String(), Reason: "missing from store"})
		}
	}
	return mismatches, len(recs), nil
}
