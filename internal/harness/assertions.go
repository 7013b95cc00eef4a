package harness

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/vaultguard/internal/engine"
	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/store"
)

// AssertionError is returned when an assertion does not hold.
type AssertionError struct {
	Type     string
	Target   string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("assertion %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
	}
	return fmt.Sprintf("assertion %s %s: expected %s, got %s", e.Type, e.Target, e.Expected, e.Actual)
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var msgs []string
	for _, a := range assertions {
		var errs []error
		switch a.Type {
		case AssertRecord:
			errs = h.assertRecord(ctx, a)
		case AssertLogCount:
			errs = h.assertLogCount(ctx, a)
		case AssertReplay:
			errs = h.assertReplay(ctx)
		default:
			errs = []error{fmt.Errorf("unknown assertion type %q", a.Type)}
		}
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

// assertRecord compares the listed fields of a stored record.
func (h *Harness) assertRecord(ctx context.Context, a Assertion) []error {
	addr, err := h.resolve(a.Record, refVault)
	if err != nil {
		return []error{err}
	}
	rec, found, err := h.store.GetRecord(ctx, addr)
	if err != nil {
		return []error{fmt.Errorf("assertion record %s: %w", a.Record, err)}
	}
	if !found {
		return []error{&AssertionError{Type: AssertRecord, Target: a.Record, Expected: "stored record", Actual: "none"}}
	}

	fields := make([]string, 0, len(a.Expect))
	for field := range a.Expect {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var errs []error
	for _, field := range fields {
		want, err := h.expectedField(field, a.Expect[field])
		if err != nil {
			errs = append(errs, fmt.Errorf("assertion record %s: %w", a.Record, err))
			continue
		}
		got, err := h.recordField(rec, field)
		if err != nil {
			errs = append(errs, fmt.Errorf("assertion record %s: %w", a.Record, err))
			continue
		}
		if got != want {
			errs = append(errs, &AssertionError{
				Type:     AssertRecord,
				Target:   a.Record + "." + field,
				Expected: strconv.Quote(want),
				Actual:   strconv.Quote(got),
			})
		}
	}
	return errs
}

// refFields hold addresses; their default reference kind follows.
var refFields = map[string]string{
	"owner":     refKey,
	"companion": refHolding,
	"reference": refVault,
}

func (h *Harness) expectedField(field string, v any) (string, error) {
	if kind, ok := refFields[field]; ok {
		s, isString := v.(string)
		if !isString {
			return "", fmt.Errorf("%s: want reference string, got %T", field, v)
		}
		if s == "" {
			return "", nil
		}
		k, err := h.resolve(s, kind)
		if err != nil {
			return "", fmt.Errorf("%s: %w", field, err)
		}
		return h.label(k), nil
	}
	return fmt.Sprint(v), nil
}

func (h *Harness) recordField(rec ir.Record, field string) (string, error) {
	switch field {
	case "balance":
		return strconv.FormatUint(rec.Balance, 10), nil
	case "lifecycle":
		return rec.Lifecycle.String(), nil
	case "kind":
		return string(rec.Kind), nil
	case "capacity":
		return strconv.FormatUint(uint64(rec.Capacity), 10), nil
	case "written":
		return strconv.FormatUint(uint64(rec.Written), 10), nil
	case "sensitive":
		return strconv.FormatUint(rec.Sensitive, 10), nil
	case "data":
		return string(rec.Contents()), nil
	case "owner":
		return h.label(rec.Owner), nil
	case "companion":
		return h.label(rec.Companion), nil
	case "reference":
		return h.label(rec.Reference), nil
	default:
		return "", fmt.Errorf("unknown record field %q", field)
	}
}

// assertLogCount counts log entries matching status and kind.
func (h *Harness) assertLogCount(ctx context.Context, a Assertion) []error {
	entries, err := h.store.ReadInstructions(ctx)
	if err != nil {
		return []error{fmt.Errorf("assertion log_count: %w", err)}
	}

	count := 0
	for _, e := range entries {
		if a.Status != "" && string(e.Status) != a.Status {
			continue
		}
		if a.Kind != "" && e.FailureKind != a.Kind {
			continue
		}
		count++
	}

	if count != *a.Count {
		return []error{&AssertionError{
			Type:     AssertLogCount,
			Target:   describe(a.Status, a.Kind),
			Expected: strconv.Itoa(*a.Count),
			Actual:   strconv.Itoa(count),
		}}
	}
	return nil
}

// assertReplay replays the log through an identically configured processor
// over an empty store and reports every divergence.
func (h *Harness) assertReplay(ctx context.Context) []error {
	entries, err := h.store.ReadInstructions(ctx)
	if err != nil {
		return []error{fmt.Errorf("assertion replay: %w", err)}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return []error{fmt.Errorf("assertion replay: %w", err)}
	}
	defer st.Close()

	report, err := engine.New(st, h.opts...).Replay(ctx, entries)
	if err != nil {
		return []error{fmt.Errorf("assertion replay: %w", err)}
	}

	var errs []error
	for _, d := range report.Divergences {
		errs = append(errs, &AssertionError{
			Type:     AssertReplay,
			Target:   fmt.Sprintf("seq %d", d.Seq),
			Expected: "identical outcome",
			Actual:   d.Reason,
		})
	}
	return errs
}
