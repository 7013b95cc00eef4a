package engine

import (
	"fmt"

	"github.com/roach88/vaultguard/internal/guard"
	"github.com/roach88/vaultguard/internal/ir"
)

// Account positions. Every op lists the record it acts on first and the
// signing identity second; ops that move balances list the companion
// holding third.
const (
	acctRecord    = 0
	acctSigner    = 1
	acctCompanion = 2
)

// handler describes one op: its exact account count, whether it carries a
// payload, and the transition.
type handler struct {
	accounts int
	payload  bool
	run      func(p *Processor, c *call) (*guard.Failure, error)
}

var handlers = map[ir.Op]handler{
	ir.OpInitialize:      {accounts: 3, payload: true, run: (*Processor).initialize},
	ir.OpActivate:        {accounts: 2, run: (*Processor).activate},
	ir.OpDeposit:         {accounts: 3, payload: true, run: (*Processor).deposit},
	ir.OpWithdraw:        {accounts: 3, payload: true, run: (*Processor).withdraw},
	ir.OpSweep:           {accounts: 3, run: (*Processor).sweep},
	ir.OpPrivilegedClose: {accounts: 2, run: (*Processor).privilegedClose},
	ir.OpReopen:          {accounts: 2, run: (*Processor).reopen},
	ir.OpUse:             {accounts: 1, run: (*Processor).use},
	ir.OpFree:            {accounts: 2, run: (*Processor).free},
	ir.OpWrite:           {accounts: 2, payload: true, run: (*Processor).write},
	ir.OpDereference:     {accounts: 1, run: (*Processor).dereference},
	ir.OpSetReference:    {accounts: 2, payload: true, run: (*Processor).setReference},
	ir.OpSetSensitive:    {accounts: 2, payload: true, run: (*Processor).setSensitive},
	ir.OpComplex:         {accounts: 2, payload: true, run: (*Processor).complex},
}

// initialize creates a vault at the owner's derived address together with
// its companion holding at the address derived from the vault. The holding
// is owned by the vault address and mirrors the vault balance. The
// sensitive field starts zeroed; set_sensitive fills it.
func (p *Processor) initialize(c *call) (*guard.Failure, error) {
	var pl ir.InitializePayload
	if f := c.decode(&pl); f != nil {
		return f, nil
	}
	if c.key(acctRecord) == c.key(acctCompanion) {
		return guard.Invalid("initialize: record and companion must differ"), nil
	}

	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}
	holding, err := c.load(acctCompanion)
	if err != nil {
		return nil, err
	}
	owner := c.key(acctSigner)

	canonical, salt, err := p.deriver.Derive(p.namespace, owner)
	if err != nil {
		return nil, newDerivationError(c.id, err)
	}
	canonicalHolding, err := p.DeriveHolding(rec.Address)
	if err != nil {
		return nil, newDerivationError(c.id, err)
	}

	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Writable(c.meta(acctCompanion), "companion"),
		guard.Signer(c.signers, owner),
		guard.Derived(rec.Address, canonical),
		guard.DerivedCompanion(holding.Address, canonicalHolding),
		guard.Fresh(rec),
		guard.Fresh(holding),
		guard.Bounds(int(pl.Capacity), p.maxCapacity),
	}).Check(); f != nil {
		return f, nil
	}

	lifecycle := ir.Initialized
	if pl.Activate {
		lifecycle = ir.Active
	}

	// Every field is set explicitly; nothing from the default-zero record
	// survives except the address.
	*rec = ir.Record{
		Address:   rec.Address,
		Owner:     owner,
		Companion: holding.Address,
		Kind:      ir.KindVault,
		Balance:   pl.InitialDeposit,
		Lifecycle: lifecycle,
		Capacity:  pl.Capacity,
		Buffer:    make([]byte, pl.Capacity),
		Sensitive: 0,
		Reference: pl.Reference,
		Salt:      salt,
	}
	*holding = ir.Record{
		Address:   holding.Address,
		Owner:     rec.Address,
		Companion: rec.Address,
		Kind:      ir.KindHolding,
		Balance:   pl.InitialDeposit,
		Lifecycle: ir.Active,
	}
	c.touch(rec, holding)
	return nil, nil
}

// activate moves an Initialized vault to Active.
func (p *Processor) activate(c *call) (*guard.Failure, error) {
	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}

	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Authorized(rec, c.signers, c.key(acctSigner)),
		guard.Lifecycle(rec, ir.Initialized).Refine(ir.Uninitialized, guard.UninitializedAccess),
	}).Check(); f != nil {
		return f, nil
	}

	rec.Lifecycle = ir.Active
	c.touch(rec)
	return nil, nil
}

// deposit credits a vault and its holding. With third-party deposits
// enabled any verified signer may deposit; the companion link is enforced
// either way.
func (p *Processor) deposit(c *call) (*guard.Failure, error) {
	var pl ir.AmountPayload
	if f := c.decode(&pl); f != nil {
		return f, nil
	}
	if pl.Amount == 0 {
		return guard.Invalid("deposit amount must be positive"), nil
	}

	pr, f, err := p.loadPair(c)
	if f != nil || err != nil {
		return f, err
	}
	rec, holding := pr.vault, pr.holding

	depositor := c.key(acctSigner)
	auth := guard.Authorized(rec, c.signers, depositor)
	if p.thirdPartyDeposit {
		auth = guard.Signer(c.signers, depositor)
	}

	if f := (guard.Chain{
		auth,
		pr.linked(),
		guard.ForUse(rec),
		guard.ForUse(holding),
		guard.Creditable(rec, pl.Amount),
		guard.Creditable(holding, pl.Amount),
	}).Check(); f != nil {
		return f, nil
	}

	rec.Balance += pl.Amount
	holding.Balance += pl.Amount
	c.touch(rec, holding)
	return nil, nil
}

// withdraw debits a vault and its holding. Only the owner may withdraw.
func (p *Processor) withdraw(c *call) (*guard.Failure, error) {
	var pl ir.AmountPayload
	if f := c.decode(&pl); f != nil {
		return f, nil
	}
	if pl.Amount == 0 {
		return guard.Invalid("withdraw amount must be positive"), nil
	}

	pr, f, err := p.loadPair(c)
	if f != nil || err != nil {
		return f, err
	}
	rec, holding := pr.vault, pr.holding

	if f := (guard.Chain{
		guard.Authorized(rec, c.signers, c.key(acctSigner)),
		pr.linked(),
		guard.ForUse(rec),
		guard.ForUse(holding),
		guard.Sufficient(rec, pl.Amount),
		guard.Sufficient(holding, pl.Amount),
	}).Check(); f != nil {
		return f, nil
	}

	rec.Balance -= pl.Amount
	holding.Balance -= pl.Amount
	c.touch(rec, holding)
	return nil, nil
}

// sweep withdraws the whole balance. It needs only the owner's signature
// and works whether the vault is Active, Initialized or Freed, so a
// privileged close never strands funds. Holdings cannot be freed, so only
// their initialization is checked.
func (p *Processor) sweep(c *call) (*guard.Failure, error) {
	pr, f, err := p.loadPair(c)
	if f != nil || err != nil {
		return f, err
	}
	rec, holding := pr.vault, pr.holding

	if f := (guard.Chain{
		guard.Authorized(rec, c.signers, c.key(acctSigner)),
		pr.linked(),
		guard.Initialized(rec),
		guard.Initialized(holding),
		guard.Sufficient(holding, rec.Balance),
	}).Check(); f != nil {
		return f, nil
	}

	amount := rec.Balance
	rec.Balance = 0
	holding.Balance -= amount
	c.value = amount
	c.touch(rec, holding)
	return nil, nil
}

// pair is a vault and its holding as loaded for a balance op, with the
// holding address derived from the vault.
type pair struct {
	vault     *ir.Record
	holding   *ir.Record
	canonical ir.Key
}

// linked checks both companion links and that the holding sits at the
// address derived from the vault.
func (pr *pair) linked() guard.Guard {
	return guard.Chain{
		guard.Companion(pr.vault, pr.holding.Address),
		guard.Companion(pr.holding, pr.vault.Address),
		guard.DerivedCompanion(pr.holding.Address, pr.canonical),
	}
}

// loadPair loads the vault and holding for balance ops and checks both
// entries are writable.
func (p *Processor) loadPair(c *call) (*pair, *guard.Failure, error) {
	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Writable(c.meta(acctCompanion), "companion"),
	}).Check(); f != nil {
		return nil, f, nil
	}
	if c.key(acctRecord) == c.key(acctCompanion) {
		return nil, guard.Invalid("%s: record and companion must differ", c.ins.Op), nil
	}

	pr := &pair{}
	var err error
	if pr.vault, err = c.load(acctRecord); err != nil {
		return nil, nil, err
	}
	if pr.holding, err = c.load(acctCompanion); err != nil {
		return nil, nil, err
	}
	if pr.canonical, err = p.DeriveHolding(pr.vault.Address); err != nil {
		return nil, nil, newDerivationError(c.id, err)
	}
	return pr, nil, nil
}

// privilegedClose frees a vault on behalf of the configured authority.
// Holdings are not closable; their balance follows the vault.
func (p *Processor) privilegedClose(c *call) (*guard.Failure, error) {
	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}
	authority := c.key(acctSigner)

	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Signer(c.signers, authority),
		guard.Privileged(rec, p.authority, authority),
		guard.OfKind(rec, ir.KindVault),
		guard.ForRelease(rec),
	}).Check(); f != nil {
		return f, nil
	}

	rec.Lifecycle = ir.Freed
	c.touch(rec)
	return nil, nil
}

// reopen is the authority's recovery path from Freed back to Active.
func (p *Processor) reopen(c *call) (*guard.Failure, error) {
	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}
	authority := c.key(acctSigner)

	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Signer(c.signers, authority),
		guard.Privileged(rec, p.authority, authority),
		guard.OfKind(rec, ir.KindVault),
		guard.Lifecycle(rec, ir.Freed).Refine(ir.Uninitialized, guard.UninitializedAccess),
	}).Check(); f != nil {
		return f, nil
	}

	rec.Lifecycle = ir.Active
	c.touch(rec)
	return nil, nil
}

// use reads the sensitive field of an Active record.
func (p *Processor) use(c *call) (*guard.Failure, error) {
	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}

	// ForUse already reports Uninitialized records; Initialized stays as the
	// explicit precondition for reading the sensitive field.
	if f := (guard.Chain{
		guard.ForUse(rec),
		guard.Initialized(rec),
	}).Check(); f != nil {
		return f, nil
	}

	c.value = rec.Sensitive
	return nil, nil
}

// free moves an Active record to Freed. A second free reports DoubleFree.
func (p *Processor) free(c *call) (*guard.Failure, error) {
	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}

	return p.release(c, rec), nil
}

func (p *Processor) release(c *call, rec *ir.Record) *guard.Failure {
	if f := p.releaseGuards(c, rec).Check(); f != nil {
		return f
	}
	rec.Lifecycle = ir.Freed
	c.touch(rec)
	return nil
}

func (p *Processor) releaseGuards(c *call, rec *ir.Record) guard.Chain {
	return guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Authorized(rec, c.signers, c.key(acctSigner)),
		guard.ForRelease(rec),
	}
}

// write copies the payload into the record buffer. An oversized payload
// leaves the buffer untouched.
func (p *Processor) write(c *call) (*guard.Failure, error) {
	var pl ir.WritePayload
	if f := c.decode(&pl); f != nil {
		return f, nil
	}

	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}
	return p.writeBuffer(c, rec, pl.Data), nil
}

func (p *Processor) writeBuffer(c *call, rec *ir.Record, data []byte) *guard.Failure {
	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Authorized(rec, c.signers, c.key(acctSigner)),
		guard.ForUse(rec),
		guard.Bounds(len(data), int(rec.Capacity)),
	}).Check(); f != nil {
		return f
	}

	copy(rec.Buffer, data)
	rec.Written = uint32(len(data))
	c.touch(rec)
	return nil
}

// dereference follows the record's reference to another stored record.
func (p *Processor) dereference(c *call) (*guard.Failure, error) {
	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}

	if f := (guard.Chain{
		guard.Initialized(rec),
		guard.NonNull(rec.Reference, "reference"),
	}).Check(); f != nil {
		return f, nil
	}

	target, found, err := c.store.GetRecord(c.ctx, rec.Reference)
	if err != nil {
		return nil, fmt.Errorf("process %s: resolve reference: %w", c.id, err)
	}
	if !found || target.Lifecycle == ir.Uninitialized {
		return &guard.Failure{
			Kind:    guard.NullDereference,
			Guard:   "non_null",
			Message: "reference points at no initialized record",
			Details: map[string]string{"reference": rec.Reference.String()},
		}, nil
	}

	c.resolved = &target
	return nil, nil
}

// setReference sets or clears (zero key) the record's reference.
func (p *Processor) setReference(c *call) (*guard.Failure, error) {
	var pl ir.ReferencePayload
	if f := c.decode(&pl); f != nil {
		return f, nil
	}

	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}

	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Authorized(rec, c.signers, c.key(acctSigner)),
		guard.ForUse(rec),
	}).Check(); f != nil {
		return f, nil
	}

	rec.Reference = pl.Reference
	c.touch(rec)
	return nil, nil
}

// setSensitive stores the owner's value in the sensitive field of an
// Initialized or Active record.
func (p *Processor) setSensitive(c *call) (*guard.Failure, error) {
	var pl ir.SensitivePayload
	if f := c.decode(&pl); f != nil {
		return f, nil
	}

	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}

	if f := (guard.Chain{
		guard.Writable(c.meta(acctRecord), "record"),
		guard.Authorized(rec, c.signers, c.key(acctSigner)),
		guard.Live(rec),
	}).Check(); f != nil {
		return f, nil
	}

	rec.Sensitive = pl.Value
	c.touch(rec)
	return nil, nil
}

// complex runs one sub-action selected by the payload through the same guard
// chains as the standalone ops. Free-then-use always ends in UseAfterFree, and
// since the instruction is one atomic unit the free is not committed either.
func (p *Processor) complex(c *call) (*guard.Failure, error) {
	var pl ir.ComplexPayload
	if f := c.decode(&pl); f != nil {
		return f, nil
	}
	switch pl.Action {
	case ir.ComplexWrite:
	case ir.ComplexFreeThenUse, ir.ComplexFree:
		if len(pl.Data) > 0 {
			return guard.Invalid("complex: data only applies to the write action"), nil
		}
	default:
		return guard.Invalid("complex: unknown action %d", pl.Action), nil
	}

	rec, err := c.load(acctRecord)
	if err != nil {
		return nil, err
	}

	switch pl.Action {
	case ir.ComplexWrite:
		return p.writeBuffer(c, rec, pl.Data), nil
	case ir.ComplexFreeThenUse:
		if f := p.releaseGuards(c, rec).Check(); f != nil {
			return f, nil
		}
		freed := rec.Clone()
		freed.Lifecycle = ir.Freed
		return guard.ForUse(&freed).Check(), nil
	default:
		return p.release(c, rec), nil
	}
}
