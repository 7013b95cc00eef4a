package cli

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/roach88/vaultguard/internal/ir"
)

// RecordView is the printable form of a record. Unset keys are omitted.
type RecordView struct {
	Address   string `json:"address"`
	Kind      string `json:"kind"`
	Owner     string `json:"owner"`
	Companion string `json:"companion,omitempty"`
	Lifecycle string `json:"lifecycle"`
	Balance   uint64 `json:"balance"`
	Capacity  uint32 `json:"capacity"`
	Written   uint32 `json:"written"`
	Data      string `json:"data,omitempty"` // hex of the written prefix
	Sensitive uint64 `json:"sensitive"`
	Reference string `json:"reference,omitempty"`
	Salt      uint8  `json:"salt"`
	Digest    string `json:"digest"`
}

func newRecordView(rec ir.Record) (RecordView, error) {
	digest, err := ir.StateDigest(rec)
	if err != nil {
		return RecordView{}, fmt.Errorf("digest %s: %w", rec.Address.Short(), err)
	}
	v := RecordView{
		Address:   rec.Address.String(),
		Kind:      string(rec.Kind),
		Owner:     rec.Owner.String(),
		Lifecycle: rec.Lifecycle.String(),
		Balance:   rec.Balance,
		Capacity:  rec.Capacity,
		Written:   rec.Written,
		Sensitive: rec.Sensitive,
		Salt:      rec.Salt,
		Digest:    digest.String(),
	}
	if !rec.Companion.IsZero() {
		v.Companion = rec.Companion.String()
	}
	if !rec.Reference.IsZero() {
		v.Reference = rec.Reference.String()
	}
	if n := int(rec.Written); n > 0 && n <= len(rec.Buffer) {
		v.Data = hex.EncodeToString(rec.Buffer[:n])
	}
	return v, nil
}

func newRecordViews(recs []ir.Record) ([]RecordView, error) {
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		v, err := newRecordView(rec)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (v RecordView) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "%s %s %s balance=%d\n", v.Kind, v.Address, v.Lifecycle, v.Balance)
	if !verbose {
		return
	}
	fmt.Fprintf(w, "  owner:     %s\n", v.Owner)
	if v.Companion != "" {
		fmt.Fprintf(w, "  companion: %s\n", v.Companion)
	}
	fmt.Fprintf(w, "  buffer:    %d/%d %s\n", v.Written, v.Capacity, v.Data)
	fmt.Fprintf(w, "  sensitive: %d\n", v.Sensitive)
	if v.Reference != "" {
		fmt.Fprintf(w, "  reference: %s\n", v.Reference)
	}
	fmt.Fprintf(w, "  salt:      %d\n", v.Salt)
	fmt.Fprintf(w, "  digest:    %s\n", v.Digest)
}

// RecordList renders several records.
type RecordList []RecordView

func (l RecordList) renderText(w io.Writer, verbose bool) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}
	for _, v := range l {
		v.renderText(w, verbose)
	}
}

// LogView is the printable form of an instruction-log entry.
type LogView struct {
	Seq     int64            `json:"seq"`
	ID      string           `json:"id"`
	TraceID string           `json:"trace_id"`
	Op      string           `json:"op"`
	Status  string           `json:"status"`
	Kind    string           `json:"kind,omitempty"`
	Message string           `json:"message,omitempty"`
	Writes  []ir.RecordWrite `json:"writes,omitempty"`
}

func newLogView(e ir.LogEntry) LogView {
	return LogView{
		Seq:     e.Seq,
		ID:      e.ID,
		TraceID: e.TraceID,
		Op:      e.Op.String(),
		Status:  string(e.Status),
		Kind:    e.FailureKind,
		Message: e.FailureMessage,
		Writes:  e.Writes,
	}
}

// LogList renders the instruction log.
type LogList []LogView

func (l LogList) renderText(w io.Writer, verbose bool) {
	if len(l) == 0 {
		fmt.Fprintln(w, "Instruction log is empty.")
		return
	}
	for _, e := range l {
		line := fmt.Sprintf("%6d %-16s %s", e.Seq, e.Op, e.Status)
		if e.Kind != "" {
			line += " " + e.Kind
		}
		fmt.Fprintln(w, line)
		if !verbose {
			continue
		}
		fmt.Fprintf(w, "       id=%s trace=%s\n", e.ID, e.TraceID)
		if e.Message != "" {
			fmt.Fprintf(w, "       %s\n", e.Message)
		}
		for _, wr := range e.Writes {
			fmt.Fprintf(w, "       wrote %s %s\n", wr.Address.Short(), wr.Digest)
		}
	}
}
