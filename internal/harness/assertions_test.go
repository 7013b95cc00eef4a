package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertRecord, Target: "vault:alice.balance", Expected: `"1"`, Actual: `"2"`}
	assert.Equal(t, `assertion record vault:alice.balance: expected "1", got "2"`, err.Error())

	err = &AssertionError{Type: AssertReplay, Expected: "identical outcome", Actual: "status committed, logged rejected"}
	assert.Equal(t, "assertion replay: expected identical outcome, got status committed, logged rejected", err.Error())
}

func TestRun_RecordFieldsAndReferences(t *testing.T) {
	s := mustParse(t, `
name: record_fields
description: "every record field an assertion can name"
keys: [alice, bob]
steps:
  - op: initialize
    vault: bob
    expect: { status: committed }
  - op: initialize
    vault: alice
    payload: { initial_deposit: 9, capacity: 4, activate: true, reference: bob }
    expect: { status: committed }
  - op: set_sensitive
    vault: alice
    payload: { value: 5 }
    expect: { status: committed }
  - op: write
    vault: alice
    payload: { data: "abc" }
    expect: { status: committed }
assertions:
  - type: record
    record: alice
    expect:
      balance: 9
      lifecycle: active
      kind: vault
      capacity: 4
      written: 3
      sensitive: 5
      data: abc
      owner: alice
      companion: alice
      reference: bob
  - type: record
    record: holding:alice
    expect: { kind: holding, owner: vault:alice, companion: vault:alice, reference: "" }
`)

	result, err := Run(s)
	assert.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnknownRecordField(t *testing.T) {
	s := mustParse(t, minimalScenario+`
assertions:
  - type: record
    record: alice
    expect: { colour: blue }
`)

	result, err := Run(s)
	assert.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `unknown record field "colour"`)
}
