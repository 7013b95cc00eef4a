package ir

// NOTE: These are store-layer types describing the instruction log, not
// record state.

// Status is the terminal outcome of a processed instruction.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
)

// LogEntry is one processed instruction, committed or rejected.
type LogEntry struct {
	ID             string        `json:"id"` // Content-addressed (InstructionID)
	Seq            int64         `json:"seq"`
	TraceID        string        `json:"trace_id"`
	Op             Op            `json:"op"`
	Message        []byte        `json:"message"`     // Canonical instruction encoding
	Transaction    []byte        `json:"transaction"` // Signed transaction as received
	Status         Status        `json:"status"`
	FailureKind    string        `json:"failure_kind,omitempty"`
	FailureMessage string        `json:"failure_message,omitempty"`
	Writes         []RecordWrite `json:"writes,omitempty"`
}

// RecordWrite links a committed instruction to a record state it produced.
type RecordWrite struct {
	Address Key    `json:"address"`
	Digest  string `json:"digest"`
}
