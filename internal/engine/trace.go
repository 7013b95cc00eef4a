package engine

import (
	"github.com/google/uuid"
)

// TraceGenerator issues correlation IDs stamped on each Outcome and log line.
// Trace IDs never feed the instruction ID, so replay does not depend on them.
type TraceGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-sortable UUIDv7 trace IDs. It is stateless.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7, or a random v4 UUID if the clock
// source fails.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
