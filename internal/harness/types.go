package harness

// Step status values beyond ir.Status.
const (
	StatusHalted = "halted"
	opHalt       = "halt"
)

// TraceEvent is one executed step.
type TraceEvent struct {
	Step    int          `json:"step"`
	Seq     int64        `json:"seq,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
	Op      string       `json:"op"`
	Record  string       `json:"record,omitempty"`
	Status  string       `json:"status"`
	Kind    string       `json:"kind,omitempty"`
	Value   uint64       `json:"value,omitempty"`
	Writes  []RecordView `json:"writes,omitempty"`
}

// RecordView is the part of a written record the trace shows. Addresses are
// rendered as references so traces are readable and key-independent.
type RecordView struct {
	Record    string `json:"record"`
	Lifecycle string `json:"lifecycle"`
	Balance   uint64 `json:"balance"`
	Written   uint32 `json:"written,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
