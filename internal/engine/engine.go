package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/vaultguard/internal/derive"
	"github.com/roach88/vaultguard/internal/guard"
	"github.com/roach88/vaultguard/internal/ir"
)

// DefaultNamespace is the derivation namespace for vault addresses.
const DefaultNamespace = "vault"

// HoldingNamespace is the derivation namespace for a vault's companion
// holding, derived from the vault address.
const HoldingNamespace = "holding"

// DefaultMaxCapacity bounds the buffer capacity a vault may declare.
const DefaultMaxCapacity = 64

// RecordStore is the persistence the processor needs.
// Implemented by *store.Store.
type RecordStore interface {
	GetRecord(ctx context.Context, addr ir.Key) (ir.Record, bool, error)
	CommitInstruction(ctx context.Context, entry ir.LogEntry, records []ir.Record) error
}

// Outcome is the result of processing one instruction.
//
// Status committed: Records holds the new state of every mutated record,
// ordered as the instruction touched them. Status rejected: Failure holds the
// first failing guard and Records is empty.
type Outcome struct {
	ID      string         `json:"id"`
	Seq     int64          `json:"seq"`
	TraceID string         `json:"trace_id"`
	Op      ir.Op          `json:"op"`
	Status  ir.Status      `json:"status"`
	Records []ir.Record    `json:"records,omitempty"`
	Failure *guard.Failure `json:"failure,omitempty"`

	// Value is the sensitive field read by use, or the amount moved by sweep.
	Value uint64 `json:"value,omitempty"`

	// Resolved is the record a dereference reached.
	Resolved *ir.Record `json:"resolved,omitempty"`
}

// Committed reports whether the instruction was applied.
func (o *Outcome) Committed() bool {
	return o.Status == ir.StatusCommitted
}

// Processor applies signed instructions to records.
//
// Thread-safety model:
//   - Process(): safe from any goroutine; calls are serialized internally
//   - Submit(): safe from any goroutine; requires Run() to be active
//   - Run(): must be called from exactly one goroutine
//   - Halt(): safe from any goroutine
//
// INVARIANTS:
//   - A rejected instruction writes no record
//   - A committed instruction writes all its records and its log entry in
//     one store transaction
//   - Seq values are strictly increasing across processed instructions
type Processor struct {
	mu sync.Mutex

	store    RecordStore
	deriver  *derive.Deriver
	clock    *Clock
	traceGen TraceGenerator
	logger   *slog.Logger
	metrics  *Metrics

	namespace         string
	authority         ir.Key
	thirdPartyDeposit bool
	maxCapacity       int

	halted atomic.Bool
	queue  *submissionQueue
}

// Option configures a Processor.
type Option func(*Processor)

// WithNamespace sets the derivation namespace for vault addresses.
func WithNamespace(ns string) Option {
	return func(p *Processor) {
		p.namespace = ns
	}
}

// WithAuthority sets the privileged identity for privileged_close and
// reopen. Without it both ops always reject.
func WithAuthority(authority ir.Key) Option {
	return func(p *Processor) {
		p.authority = authority
	}
}

// WithThirdPartyDeposit lets any signer deposit into a vault it does not own.
// The companion link is still enforced.
func WithThirdPartyDeposit(allow bool) Option {
	return func(p *Processor) {
		p.thirdPartyDeposit = allow
	}
}

// WithMaxCapacity bounds the buffer capacity accepted by initialize.
func WithMaxCapacity(n int) Option {
	return func(p *Processor) {
		p.maxCapacity = n
	}
}

// WithDeriver replaces the default address deriver.
func WithDeriver(d *derive.Deriver) Option {
	return func(p *Processor) {
		p.deriver = d
	}
}

// WithClock replaces the logical clock. Use NewClockAt(store.MaxSeq()) when
// resuming a persisted log.
func WithClock(c *Clock) Option {
	return func(p *Processor) {
		p.clock = c
	}
}

// WithTraceGenerator replaces the UUIDv7 trace generator.
func WithTraceGenerator(g TraceGenerator) Option {
	return func(p *Processor) {
		p.traceGen = g
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// New creates a Processor over s.
func New(s RecordStore, opts ...Option) *Processor {
	p := &Processor{
		store:       s,
		deriver:     derive.New(),
		clock:       NewClock(),
		traceGen:    UUIDv7Generator{},
		logger:      slog.Default(),
		namespace:   DefaultNamespace,
		maxCapacity: DefaultMaxCapacity,
		queue:       newSubmissionQueue(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Derive returns the canonical vault address for owner in the processor's
// namespace.
func (p *Processor) Derive(owner ir.Key) (ir.Key, uint8, error) {
	return p.deriver.Derive(p.namespace, owner)
}

// DeriveHolding returns the canonical holding address for a vault.
func (p *Processor) DeriveHolding(vault ir.Key) (ir.Key, error) {
	addr, _, err := p.deriver.Derive(HoldingNamespace, vault)
	return addr, err
}

// Halt disables the processor. Every later Process or Submit call, sweep
// included, fails with ErrProcessorHalted. There is no resume.
func (p *Processor) Halt() {
	if p.halted.CompareAndSwap(false, true) {
		p.metrics.setHalted()
		p.logger.Warn("processor halted")
	}
}

// Halted reports whether Halt has been called.
func (p *Processor) Halted() bool {
	return p.halted.Load()
}

// Clock returns the processor's logical clock.
func (p *Processor) Clock() *Clock {
	return p.clock
}

// Submit queues tx for the Run loop and waits for its outcome.
// Thread-safe: may be called from any goroutine.
func (p *Processor) Submit(ctx context.Context, tx ir.Transaction) (*Outcome, error) {
	if p.Halted() {
		return nil, ErrProcessorHalted
	}

	reply := make(chan result, 1)
	if !p.queue.Enqueue(submission{ctx: ctx, tx: tx, reply: reply}) {
		return nil, ErrProcessorStopped
	}

	select {
	case r := <-reply:
		return r.outcome, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run processes submissions one at a time until ctx is cancelled or Stop is
// called. Must be called from exactly one goroutine.
//
// Submissions whose own context is already done are answered with that
// context's error and never reach the store.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("processor starting")

	for {
		sub, ok := p.queue.TryDequeue()
		if ok {
			p.handle(sub)
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("processor stopping: context cancelled")
			p.failPending(p.queue.Close())
			return ctx.Err()

		case <-p.queue.Wait():
			// The signal channel closes with the queue, so this case fires
			// immediately once Stop has been called.
			if p.queue.Closed() && p.queue.Len() == 0 {
				p.logger.Info("processor stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the submission queue, which causes Run to return.
// Queued submissions fail with ErrProcessorStopped.
func (p *Processor) Stop() {
	p.failPending(p.queue.Close())
}

func (p *Processor) handle(sub submission) {
	if err := sub.ctx.Err(); err != nil {
		sub.reply <- result{err: err}
		return
	}
	out, err := p.Process(sub.ctx, sub.tx)
	sub.reply <- result{outcome: out, err: err}
}

func (p *Processor) failPending(pending []submission) {
	for _, sub := range pending {
		sub.reply <- result{err: ErrProcessorStopped}
	}
}
