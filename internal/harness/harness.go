package harness

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/roach88/vaultguard/internal/config"
	"github.com/roach88/vaultguard/internal/engine"
	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/store"
	"github.com/roach88/vaultguard/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	proc     *engine.Processor
	keys     *testutil.Keyring
	logger   *slog.Logger

	// opts configures the live processor and any replay processor alike.
	opts []engine.Option

	refs   map[string]ir.Key
	labels map[ir.Key]string
}

// Run executes scenario in a fresh in-memory store and returns the trace
// and any mismatches. An error means the scenario could not be executed at
// all; failed expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i+1, step, result); err != nil {
			return nil, err
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store) (*Harness, error) {
	h := &Harness{
		scenario: scenario,
		store:    st,
		keys:     testutil.NewKeyring(scenario.Keys...),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		refs:     make(map[string]ir.Key),
		labels:   make(map[ir.Key]string),
	}

	opts, err := h.processorOptions()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	h.opts = append(opts, engine.WithLogger(h.logger))
	h.proc = engine.New(st, append(h.opts, engine.WithTraceGenerator(testutil.NewSequentialTraces(scenario.Name)))...)

	for _, alias := range scenario.Keys {
		identity := h.keys.Key(alias)
		vault, _, err := h.proc.Derive(identity)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: derive %s: %w", scenario.Name, alias, err)
		}
		holding, err := h.proc.DeriveHolding(vault)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: derive holding %s: %w", scenario.Name, alias, err)
		}
		h.bind(alias, identity)
		h.bind(refVault+":"+alias, vault)
		h.bind(refHolding+":"+alias, holding)
	}
	return h, nil
}

// processorOptions applies the scenario overrides to the default config and
// validates the result the same way a config file is validated.
func (h *Harness) processorOptions() ([]engine.Option, error) {
	sc := h.scenario.Config
	cfg := config.Default()
	if sc.Namespace != "" {
		cfg.Namespace = sc.Namespace
	}
	if sc.Authority != "" {
		cfg.PrivilegedAuthority = h.keys.Key(sc.Authority).String()
	}
	cfg.AllowThirdPartyDeposit = sc.AllowThirdPartyDeposit
	if sc.MaxBufferCapacity != nil {
		cfg.MaxBufferCapacity = *sc.MaxBufferCapacity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg.ProcessorOptions()
}

func (h *Harness) bind(ref string, k ir.Key) {
	h.refs[ref] = k
	h.labels[k] = ref
}

// resolve maps a reference to an address. A bare alias takes defaultKind.
func (h *Harness) resolve(ref, defaultKind string) (ir.Key, error) {
	kind, alias, err := splitRef(ref)
	if err != nil {
		return ir.ZeroKey, err
	}
	if kind == "" {
		kind = defaultKind
	}
	name := alias
	if kind != refKey {
		name = kind + ":" + alias
	}
	k, ok := h.refs[name]
	if !ok {
		return ir.ZeroKey, fmt.Errorf("unknown reference %q", ref)
	}
	return k, nil
}

// label renders an address as the reference that produced it.
func (h *Harness) label(k ir.Key) string {
	if k.IsZero() {
		return ""
	}
	if ref, ok := h.labels[k]; ok {
		return ref
	}
	return k.Short()
}

func (h *Harness) runStep(ctx context.Context, n int, step Step, result *Result) error {
	ev := TraceEvent{Step: n, Op: step.Op}

	if step.Op == opHalt {
		h.proc.Halt()
		ev.Status = StatusHalted
		result.AddEvent(ev)
		h.checkExpect(n, step, ev, result)
		return nil
	}

	tx, record, err := h.transaction(step)
	if err != nil {
		return fmt.Errorf("step %d (%s): %w", n, step.Op, err)
	}
	ev.Record = h.label(record)

	out, err := h.proc.Process(ctx, tx)
	switch {
	case engine.IsHalted(err):
		ev.Status = StatusHalted
	case err != nil:
		return fmt.Errorf("step %d (%s): %w", n, step.Op, err)
	default:
		ev.Seq = out.Seq
		ev.TraceID = out.TraceID
		ev.Status = string(out.Status)
		ev.Value = out.Value
		if out.Failure != nil {
			ev.Kind = string(out.Failure.Kind)
		}
		for _, rec := range out.Records {
			ev.Writes = append(ev.Writes, RecordView{
				Record:    h.label(rec.Address),
				Lifecycle: rec.Lifecycle.String(),
				Balance:   rec.Balance,
				Written:   rec.Written,
			})
		}
	}

	result.AddEvent(ev)
	h.checkExpect(n, step, ev, result)

	h.logger.Info("scenario step",
		"scenario", h.scenario.Name,
		"step", n,
		"op", step.Op,
		"status", ev.Status,
		"kind", ev.Kind,
	)
	return nil
}

func (h *Harness) checkExpect(n int, step Step, ev TraceEvent, result *Result) {
	want := step.Expect
	if ev.Status != want.Status || ev.Kind != want.Kind {
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %s",
			n, step.Op, describe(want.Status, want.Kind), describe(ev.Status, ev.Kind)))
		return
	}
	if want.Value != nil && ev.Value != *want.Value {
		result.AddError(fmt.Sprintf("step %d (%s): expected value %d, got %d", n, step.Op, *want.Value, ev.Value))
	}
}

func describe(status, kind string) string {
	if kind == "" {
		return status
	}
	return status + " " + kind
}

// transaction builds and signs the step's instruction. It returns the
// record address for the trace.
func (h *Harness) transaction(step Step) (ir.Transaction, ir.Key, error) {
	op, err := ir.ParseOp(step.Op)
	if err != nil {
		return ir.Transaction{}, ir.ZeroKey, err
	}

	_, owner, _ := splitRef(step.Vault)
	record, err := h.resolve(step.Vault, refVault)
	if err != nil {
		return ir.Transaction{}, ir.ZeroKey, err
	}

	signerAlias := step.Signer
	if signerAlias == "" {
		signerAlias = owner
	}
	signer, err := h.resolve(signerAlias, refKey)
	if err != nil {
		return ir.Transaction{}, ir.ZeroKey, err
	}

	companionRef := step.Companion
	if companionRef == "" {
		companionRef = refHolding + ":" + owner
	}
	companion, err := h.resolve(companionRef, refHolding)
	if err != nil {
		return ir.Transaction{}, ir.ZeroKey, err
	}

	payload, err := h.payload(op, step.Payload)
	if err != nil {
		return ir.Transaction{}, ir.ZeroKey, err
	}

	var ins ir.Instruction
	if _, known := engine.AccountCount(op); known {
		ins, err = engine.BuildInstruction(op, record, signer, companion, payload)
		if err != nil {
			return ir.Transaction{}, ir.ZeroKey, err
		}
	} else {
		ins = ir.Instruction{Op: op, Accounts: []ir.AccountMeta{ir.ReadOnly(record)}}
	}

	signedBy := step.SignedBy
	if signedBy == nil {
		signedBy = []string{signerAlias}
	}
	tx, err := engine.Sign(ins, h.privateKeys(signedBy)...)
	if err != nil {
		return ir.Transaction{}, ir.ZeroKey, err
	}
	return tx, record, nil
}

func (h *Harness) privateKeys(aliases []string) []ed25519.PrivateKey {
	out := make([]ed25519.PrivateKey, 0, len(aliases))
	for _, alias := range aliases {
		out = append(out, h.keys.Private(alias))
	}
	return out
}

// payload converts YAML payload fields into the op's payload struct.
// Unknown fields are errors.
func (h *Harness) payload(op ir.Op, fields map[string]any) (any, error) {
	if fields == nil {
		return nil, nil
	}
	r := &fieldReader{h: h, fields: fields, used: make(map[string]bool)}

	var out any
	switch op {
	case ir.OpInitialize:
		out = ir.InitializePayload{
			InitialDeposit: r.u64("initial_deposit"),
			Capacity:       uint32(r.bounded("capacity", math.MaxUint32)),
			Activate:       r.flag("activate"),
			Reference:      r.ref("reference"),
		}
	case ir.OpDeposit, ir.OpWithdraw:
		out = ir.AmountPayload{Amount: r.u64("amount")}
	case ir.OpWrite:
		out = ir.WritePayload{Data: []byte(r.str("data"))}
	case ir.OpSetReference:
		out = ir.ReferencePayload{Reference: r.ref("reference")}
	case ir.OpSetSensitive:
		out = ir.SensitivePayload{Value: r.u64("value")}
	case ir.OpComplex:
		out = ir.ComplexPayload{
			Action: ir.ComplexAction(r.bounded("action", math.MaxUint8)),
			Data:   []byte(r.str("data")),
		}
	default:
		return nil, fmt.Errorf("%s takes no payload", op)
	}

	if err := r.finish(); err != nil {
		return nil, err
	}
	return out, nil
}

// fieldReader pulls typed values out of a YAML map, keeping the first error.
type fieldReader struct {
	h      *Harness
	fields map[string]any
	used   map[string]bool
	err    error
}

func (r *fieldReader) get(name string) (any, bool) {
	v, ok := r.fields[name]
	if ok {
		r.used[name] = true
	}
	return v, ok
}

func (r *fieldReader) fail(name string, format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("payload %s: %s", name, fmt.Sprintf(format, args...))
	}
}

func (r *fieldReader) u64(name string) uint64 {
	v, ok := r.get(name)
	if !ok {
		return 0
	}
	n, err := toUint64(v)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return n
}

func (r *fieldReader) bounded(name string, max uint64) uint64 {
	n := r.u64(name)
	if n > max {
		r.fail(name, "%d exceeds %d", n, max)
	}
	return n
}

func (r *fieldReader) flag(name string) bool {
	v, ok := r.get(name)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		r.fail(name, "want bool, got %T", v)
	}
	return b
}

func (r *fieldReader) str(name string) string {
	v, ok := r.get(name)
	if !ok {
		return ""
	}
	s, isString := v.(string)
	if !isString {
		r.fail(name, "want string, got %T", v)
	}
	return s
}

// ref resolves a reference field; bare aliases name vaults.
func (r *fieldReader) ref(name string) ir.Key {
	s := r.str(name)
	if s == "" {
		return ir.ZeroKey
	}
	k, err := r.h.resolve(s, refVault)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return k
}

func (r *fieldReader) finish() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for name := range r.fields {
		if !r.used[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown payload fields %v", unknown)
	}
	return nil
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n > math.MaxUint64 {
			return 0, fmt.Errorf("not an unsigned integer: %v", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}
