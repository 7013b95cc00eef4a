// Package harness runs YAML scenarios against a real processor.
//
// Each scenario executes in a fresh in-memory store with deterministic keys
// (testutil.Keypair) and sequential trace IDs, so the step trace is stable
// across runs and can be compared against a golden file.
//
// # Scenario Format
//
//	name: vault_lifecycle
//	description: "What this scenario checks"
//	config:
//	  authority: authority
//	  allow_third_party_deposit: false
//	keys: [alice, mallory, authority]
//	steps:
//	  - op: initialize
//	    vault: alice
//	    payload: { capacity: 64, activate: true }
//	    expect: { status: committed }
//	  - op: withdraw
//	    vault: alice
//	    signer: mallory
//	    payload: { amount: 10 }
//	    expect: { status: rejected, kind: OwnershipMismatch }
//	  - op: halt
//	    expect: { status: halted }
//	assertions:
//	  - type: record
//	    record: vault:alice
//	    expect: { balance: 0, lifecycle: active }
//	  - type: log_count
//	    status: rejected
//	    count: 1
//	  - type: replay
//
// # References
//
// Steps and assertions name accounts by reference:
//
//   - alice: alice's signing identity
//   - vault:alice: the vault address derived from alice
//   - holding:alice: the companion holding created with alice's vault
//
// A step's vault names the record; signer defaults to the vault's owner,
// signed_by defaults to [signer], companion defaults to the vault's holding.
// An explicit empty signed_by sends the instruction unsigned.
//
// The halt step disables the processor; every later step must expect
// status halted.
package harness
