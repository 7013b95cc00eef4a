package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/vaultguard/internal/ir"
)

// # Replay
//
// The instruction log stores every signed transaction with the seq and trace
// it was processed under. Replaying the log through a processor over an
// empty store, configured identically, must reproduce for every entry:
//
//   - the same instruction ID (keyed hash of instruction + seq)
//   - the same status and failure kind
//   - the same state digest for every record written
//
// Any difference is a Divergence. Replay uses the same code path as live
// processing; there is no separate replay mode.

// Divergence describes one log entry whose replay did not match.
type Divergence struct {
	Seq    int64  `json:"seq"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ReplayReport summarizes a replay run.
type ReplayReport struct {
	Replayed    int          `json:"replayed"`
	Divergences []Divergence `json:"divergences,omitempty"`
}

// Consistent reports whether every entry replayed identically.
func (r *ReplayReport) Consistent() bool {
	return len(r.Divergences) == 0
}

// Replay re-processes entries in order and compares each result with what
// was logged. p must be backed by an empty store and configured like the
// processor that produced the log.
func (p *Processor) Replay(ctx context.Context, entries []ir.LogEntry) (*ReplayReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := &ReplayReport{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tx, err := ir.DecodeTransaction(entry.Transaction)
		if err != nil {
			return report, fmt.Errorf("replay seq %d: %w", entry.Seq, err)
		}

		out, err := p.process(ctx, tx, entry.Seq, entry.TraceID)
		if err != nil {
			return report, fmt.Errorf("replay seq %d: %w", entry.Seq, err)
		}
		report.Replayed++

		if reason := compareEntry(entry, out); reason != "" {
			report.Divergences = append(report.Divergences, Divergence{
				Seq:    entry.Seq,
				ID:     entry.ID,
				Reason: reason,
			})
		}
	}

	if n := len(entries); n > 0 {
		p.clock = NewClockAt(entries[n-1].Seq)
	}
	return report, nil
}

// compareEntry returns "" when out reproduces entry.
func compareEntry(entry ir.LogEntry, out *Outcome) string {
	if out.ID != entry.ID {
		return fmt.Sprintf("id %s, logged %s", out.ID, entry.ID)
	}
	if out.Status != entry.Status {
		return fmt.Sprintf("status %s, logged %s", out.Status, entry.Status)
	}
	if out.Failure != nil && string(out.Failure.Kind) != entry.FailureKind {
		return fmt.Sprintf("failure %s, logged %s", out.Failure.Kind, entry.FailureKind)
	}

	got := make([]ir.RecordWrite, 0, len(out.Records))
	for _, rec := range out.Records {
		digest, err := ir.StateDigest(rec)
		if err != nil {
			return fmt.Sprintf("digest %s: %v", rec.Address.Short(), err)
		}
		got = append(got, ir.RecordWrite{Address: rec.Address, Digest: digest.String()})
	}
	sort.Slice(got, func(i, j int) bool {
		return got[i].Address.String() < got[j].Address.String()
	})

	if len(got) != len(entry.Writes) {
		return fmt.Sprintf("%d writes, logged %d", len(got), len(entry.Writes))
	}
	for i := range got {
		if got[i] != entry.Writes[i] {
			return fmt.Sprintf("write %s digest %s, logged %s",
				got[i].Address.Short(), got[i].Digest, entry.Writes[i].Digest)
		}
	}
	return ""
}
