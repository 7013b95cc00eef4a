package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/vaultguard/internal/guard"
	"github.com/roach88/vaultguard/internal/ir"
)

// Process validates and applies one signed transaction.
//
// Guard failures are not errors: they come back as an Outcome with status
// rejected, and are logged. A non-nil error means the instruction was not
// processed (halted processor, store failure, derivation failure) and
// nothing was logged for it.
func (p *Processor) Process(ctx context.Context, tx ir.Transaction) (*Outcome, error) {
	if p.Halted() {
		return nil, ErrProcessorHalted
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check under the lock: Halt may have landed while we waited.
	if p.Halted() {
		return nil, ErrProcessorHalted
	}
	return p.process(ctx, tx, p.clock.Next(), p.traceGen.Generate())
}

// process runs one instruction at an explicit seq. Replay calls this
// directly with the seq and trace recorded in the log.
func (p *Processor) process(ctx context.Context, tx ir.Transaction, seq int64, traceID string) (*Outcome, error) {
	start := time.Now()
	ins := tx.Instruction

	msg, err := ir.Message(ins)
	if err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	id, err := ir.InstructionID(ins, seq)
	if err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	raw, err := ir.EncodeTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", id, err)
	}

	c := &call{
		ctx:     ctx,
		id:      id,
		ins:     ins,
		signers: verifySigners(msg, tx),
		store:   p.store,
		working: make(map[ir.Key]*ir.Record),
	}

	failure, err := p.dispatch(c)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		ID:      id,
		Seq:     seq,
		TraceID: traceID,
		Op:      ins.Op,
	}
	entry := ir.LogEntry{
		ID:          id,
		Seq:         seq,
		TraceID:     traceID,
		Op:          ins.Op,
		Message:     msg,
		Transaction: raw,
	}

	var writes []ir.Record
	if failure != nil {
		out.Status = ir.StatusRejected
		out.Failure = failure
		entry.Status = ir.StatusRejected
		entry.FailureKind = string(failure.Kind)
		entry.FailureMessage = failure.Error()
	} else {
		writes = c.writes()
		out.Status = ir.StatusCommitted
		out.Records = writes
		out.Value = c.value
		out.Resolved = c.resolved
		entry.Status = ir.StatusCommitted
	}

	if err := p.store.CommitInstruction(ctx, entry, writes); err != nil {
		return nil, fmt.Errorf("process %s: %w", id, err)
	}

	p.metrics.observe(out, time.Since(start))
	p.logOutcome(out)
	return out, nil
}

// dispatch checks the instruction's shape and runs the op handler.
func (p *Processor) dispatch(c *call) (*guard.Failure, error) {
	h, ok := handlers[c.ins.Op]
	if !ok {
		return guard.Invalid("unknown op %s", c.ins.Op), nil
	}
	if len(c.ins.Accounts) != h.accounts {
		return guard.Invalid("%s takes %d accounts, got %d", c.ins.Op, h.accounts, len(c.ins.Accounts)), nil
	}
	for i, acct := range c.ins.Accounts {
		if acct.Key.IsZero() {
			return guard.Invalid("%s account %d is the zero key", c.ins.Op, i), nil
		}
	}
	if !h.payload && len(c.ins.Payload) > 0 {
		return guard.Invalid("%s takes no payload", c.ins.Op), nil
	}
	return h.run(p, c)
}

func (p *Processor) logOutcome(out *Outcome) {
	if out.Failure != nil {
		p.logger.Info("instruction rejected",
			"id", out.ID,
			"seq", out.Seq,
			"trace", out.TraceID,
			"op", out.Op.String(),
			"kind", string(out.Failure.Kind),
			"guard", out.Failure.Guard,
		)
		return
	}
	p.logger.Info("instruction committed",
		"id", out.ID,
		"seq", out.Seq,
		"trace", out.TraceID,
		"op", out.Op.String(),
		"writes", len(out.Records),
	)
}

// call is the working state for one instruction.
//
// Records are loaded once per address into working copies; the store is
// never written until the whole guard chain has passed.
type call struct {
	ctx     context.Context
	id      string
	ins     ir.Instruction
	signers guard.Verifier
	store   RecordStore

	working map[ir.Key]*ir.Record
	dirty   []ir.Key

	value    uint64
	resolved *ir.Record
}

// meta returns the account entry at position i.
func (c *call) meta(i int) ir.AccountMeta {
	return c.ins.Accounts[i]
}

// key returns the account key at position i.
func (c *call) key(i int) ir.Key {
	return c.ins.Accounts[i].Key
}

// load returns the working copy of the record at account position i.
// An address with no stored record yields the default-zero Uninitialized
// record; it is only persisted if a transition marks it dirty.
func (c *call) load(i int) (*ir.Record, error) {
	addr := c.key(i)
	if rec, ok := c.working[addr]; ok {
		return rec, nil
	}

	stored, found, err := c.store.GetRecord(c.ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("process %s: load %s: %w", c.id, addr.Short(), err)
	}

	rec := ir.NewRecord(addr)
	if found {
		rec = stored.Clone()
	}
	c.working[addr] = &rec
	return &rec, nil
}

// decode reads the instruction payload into v.
func (c *call) decode(v any) *guard.Failure {
	if err := ir.DecodePayload(c.ins.Payload, v); err != nil {
		return guard.Invalid("%s payload: %v", c.ins.Op, err)
	}
	return nil
}

// touch marks records as mutated, preserving first-touch order.
func (c *call) touch(recs ...*ir.Record) {
	for _, rec := range recs {
		seen := false
		for _, k := range c.dirty {
			if k == rec.Address {
				seen = true
				break
			}
		}
		if !seen {
			c.dirty = append(c.dirty, rec.Address)
		}
	}
}

// writes returns copies of the mutated records in touch order.
func (c *call) writes() []ir.Record {
	if len(c.dirty) == 0 {
		return nil
	}
	out := make([]ir.Record, 0, len(c.dirty))
	for _, k := range c.dirty {
		out = append(out, c.working[k].Clone())
	}
	return out
}
