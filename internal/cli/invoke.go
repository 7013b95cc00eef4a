package cli

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultguard/internal/config"
	"github.com/roach88/vaultguard/internal/engine"
	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/store"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	KeyFiles  []string
	Owner     string
	Record    string
	Companion string

	Amount    uint64
	Capacity  uint32
	Sensitive uint64
	Activate  bool
	Reference string
	Data      string
	Action    uint8
}

// payloadFlags lists the payload flags each op accepts.
var payloadFlags = map[ir.Op][]string{
	ir.OpInitialize:   {"amount", "capacity", "activate", "reference"},
	ir.OpDeposit:      {"amount"},
	ir.OpWithdraw:     {"amount"},
	ir.OpWrite:        {"data"},
	ir.OpSetReference: {"reference"},
	ir.OpSetSensitive: {"sensitive"},
	ir.OpComplex:      {"action", "data"},
}

var allPayloadFlags = []string{"amount", "capacity", "sensitive", "activate", "reference", "data", "action"}

// InvokeResult is the outcome of one processed instruction.
type InvokeResult struct {
	ID       string       `json:"id"`
	Seq      int64        `json:"seq"`
	TraceID  string       `json:"trace_id"`
	Op       string       `json:"op"`
	Status   string       `json:"status"`
	Kind     string       `json:"kind,omitempty"`
	Message  string       `json:"message,omitempty"`
	Value    uint64       `json:"value,omitempty"`
	Records  []RecordView `json:"records,omitempty"`
	Resolved *RecordView  `json:"resolved,omitempty"`
}

func (r InvokeResult) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "%s %s (seq %d)\n", r.Op, r.Status, r.Seq)
	if verbose {
		fmt.Fprintf(w, "  id:    %s\n", r.ID)
		fmt.Fprintf(w, "  trace: %s\n", r.TraceID)
	}
	if r.Kind != "" {
		fmt.Fprintf(w, "  %s: %s\n", r.Kind, r.Message)
	}
	if r.Value != 0 {
		fmt.Fprintf(w, "  value: %d\n", r.Value)
	}
	for _, v := range r.Records {
		v.renderText(w, verbose)
	}
	if r.Resolved != nil {
		fmt.Fprint(w, "resolved ")
		r.Resolved.renderText(w, verbose)
	}
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <op>",
		Short: "Sign and process one instruction",
		Long: fmt.Sprintf(`Build an instruction, sign it with the given key files, and process it
against the configured store. The outcome, committed or rejected, is
appended to the instruction log.

The record defaults to the canonical vault of --owner, or of the first
--key when --owner is not given. For ops that move balances the companion
defaults to the one stored on the record. initialize defaults it to the
holding derived from the vault address.

Ops: %s

Exit codes:
  0 - Instruction committed
  1 - Instruction rejected by a guard
  2 - Command error (bad flags, unreadable key, store unavailable)

Examples:
  vaultguard invoke initialize --key alice.key --amount 100 --activate
  vaultguard invoke set_sensitive --key alice.key --sensitive 42
  vaultguard invoke deposit --key alice.key --amount 25
  vaultguard invoke complex --key alice.key --action 1 --data hello
  vaultguard invoke privileged_close --key authority.key --owner 3b6a...
  vaultguard invoke use --owner 3b6a...`, opNameList()),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.KeyFiles, "key", "k", nil, "signing key file (repeatable; the first is the authorizer)")
	f.StringVar(&opts.Owner, "owner", "", "owner identity whose vault is the target")
	f.StringVar(&opts.Record, "record", "", "explicit record address")
	f.StringVar(&opts.Companion, "companion", "", "companion holding address")
	f.Uint64Var(&opts.Amount, "amount", 0, "deposit, withdrawal, or initial deposit amount")
	f.Uint32Var(&opts.Capacity, "capacity", 0, "buffer capacity for initialize")
	f.Uint64Var(&opts.Sensitive, "sensitive", 0, "value for set_sensitive")
	f.BoolVar(&opts.Activate, "activate", false, "activate on initialize")
	f.StringVar(&opts.Reference, "reference", "", "reference address (empty clears)")
	f.StringVar(&opts.Data, "data", "", "bytes to write")
	f.Uint8Var(&opts.Action, "action", 0, "complex sub-action (1 write, 2 free then use, 3 free)")

	return cmd
}

func opNameList() string {
	names := make([]string, 0, len(ir.Ops()))
	for _, op := range ir.Ops() {
		names = append(names, op.String())
	}
	return strings.Join(names, ", ")
}

func runInvoke(opts *InvokeOptions, opName string, cmd *cobra.Command) error {
	ctx := context.Background()

	op, err := ir.ParseOp(opName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid op", err)
	}
	if _, ok := engine.AccountCount(op); !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown op %s", op))
	}
	if err := checkPayloadFlags(op, cmd); err != nil {
		return err
	}

	keys := make([]ed25519.PrivateKey, 0, len(opts.KeyFiles))
	for _, path := range opts.KeyFiles {
		priv, err := readKeyFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load key", err)
		}
		keys = append(keys, priv)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	proc, err := newLiveProcessor(ctx, cfg, st, opts.logger(cfg, cmd))
	if err != nil {
		return err
	}

	ins, err := opts.instruction(ctx, op, keys, proc, st)
	if err != nil {
		return err
	}
	tx, err := engine.Sign(ins, keys...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to sign instruction", err)
	}

	out, err := proc.Process(ctx, tx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to process instruction", err)
	}

	result, err := newInvokeResult(out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render outcome", err)
	}
	if out.Committed() {
		return opts.formatter(cmd).Success(result)
	}

	msg := fmt.Sprintf("instruction rejected: %s", out.Failure.Kind)
	if err := opts.formatter(cmd).Result(result, &CLIError{Code: CodeRejected, Message: msg, Details: out.Failure}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// newLiveProcessor builds a processor whose clock continues after the last
// logged seq.
func newLiveProcessor(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*engine.Processor, error) {
	opts, err := cfg.ProcessorOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	last, err := st.MaxSeq(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read instruction log", err)
	}
	opts = append(opts, engine.WithLogger(logger), engine.WithClock(engine.NewClockAt(last)))
	return engine.New(st, opts...), nil
}

func checkPayloadFlags(op ir.Op, cmd *cobra.Command) error {
	allowed := payloadFlags[op]
	for _, name := range allPayloadFlags {
		if cmd.Flags().Changed(name) && !slices.Contains(allowed, name) {
			return NewExitError(ExitCommandError, fmt.Sprintf("--%s does not apply to %s", name, op))
		}
	}
	return nil
}

// instruction lays out the accounts and payload for op.
func (o *InvokeOptions) instruction(ctx context.Context, op ir.Op, keys []ed25519.PrivateKey, proc *engine.Processor, st *store.Store) (ir.Instruction, error) {
	n, _ := engine.AccountCount(op)

	var signer ir.Key
	if len(keys) > 0 {
		signer = identityOf(keys[0])
	} else if n > 1 {
		return ir.Instruction{}, NewExitError(ExitCommandError, fmt.Sprintf("%s needs --key", op))
	}

	record, err := parseKeyFlag("record", o.Record)
	if err != nil {
		return ir.Instruction{}, err
	}
	if record.IsZero() {
		owner, err := parseKeyFlag("owner", o.Owner)
		if err != nil {
			return ir.Instruction{}, err
		}
		if owner.IsZero() {
			owner = signer
		}
		if owner.IsZero() {
			return ir.Instruction{}, NewExitError(ExitCommandError, "one of --record, --owner or --key is required")
		}
		if record, _, err = proc.Derive(owner); err != nil {
			return ir.Instruction{}, WrapExitError(ExitCommandError, "failed to derive vault address", err)
		}
	}

	companion, err := parseKeyFlag("companion", o.Companion)
	if err != nil {
		return ir.Instruction{}, err
	}
	if n == 3 && companion.IsZero() {
		if companion, err = o.defaultCompanion(ctx, op, record, proc, st); err != nil {
			return ir.Instruction{}, err
		}
	}

	payload, err := o.payload(op)
	if err != nil {
		return ir.Instruction{}, err
	}
	ins, err := engine.BuildInstruction(op, record, signer, companion, payload)
	if err != nil {
		return ir.Instruction{}, WrapExitError(ExitCommandError, "failed to build instruction", err)
	}
	return ins, nil
}

// defaultCompanion is the derived holding for initialize and the stored
// companion otherwise.
func (o *InvokeOptions) defaultCompanion(ctx context.Context, op ir.Op, record ir.Key, proc *engine.Processor, st *store.Store) (ir.Key, error) {
	if op == ir.OpInitialize {
		holding, err := proc.DeriveHolding(record)
		if err != nil {
			return ir.Key{}, WrapExitError(ExitCommandError, "failed to derive holding address", err)
		}
		return holding, nil
	}
	rec, found, err := st.GetRecord(ctx, record)
	if err != nil {
		return ir.Key{}, WrapExitError(ExitCommandError, "failed to read record", err)
	}
	if !found {
		return ir.Key{}, nil
	}
	return rec.Companion, nil
}

func (o *InvokeOptions) payload(op ir.Op) (any, error) {
	if !engine.TakesPayload(op) {
		return nil, nil
	}
	reference, err := parseKeyFlag("reference", o.Reference)
	if err != nil {
		return nil, err
	}

	switch op {
	case ir.OpInitialize:
		return ir.InitializePayload{
			InitialDeposit: o.Amount,
			Capacity:       o.Capacity,
			Activate:       o.Activate,
			Reference:      reference,
		}, nil
	case ir.OpDeposit, ir.OpWithdraw:
		return ir.AmountPayload{Amount: o.Amount}, nil
	case ir.OpWrite:
		return ir.WritePayload{Data: []byte(o.Data)}, nil
	case ir.OpSetReference:
		return ir.ReferencePayload{Reference: reference}, nil
	case ir.OpSetSensitive:
		return ir.SensitivePayload{Value: o.Sensitive}, nil
	case ir.OpComplex:
		return ir.ComplexPayload{Action: ir.ComplexAction(o.Action), Data: []byte(o.Data)}, nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("no payload form for %s", op))
}

func newInvokeResult(out *engine.Outcome) (InvokeResult, error) {
	result := InvokeResult{
		ID:      out.ID,
		Seq:     out.Seq,
		TraceID: out.TraceID,
		Op:      out.Op.String(),
		Status:  string(out.Status),
		Value:   out.Value,
	}
	if out.Failure != nil {
		result.Kind = string(out.Failure.Kind)
		result.Message = out.Failure.Message
	}

	records, err := newRecordViews(out.Records)
	if err != nil {
		return InvokeResult{}, err
	}
	result.Records = records

	if out.Resolved != nil {
		v, err := newRecordView(*out.Resolved)
		if err != nil {
			return InvokeResult{}, err
		}
		result.Resolved = &v
	}
	return result, nil
}
