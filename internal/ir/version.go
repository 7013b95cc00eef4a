package ir

// Version constants for the record encoding and processor.
const (
	// RecordVersion is the record encoding version stored alongside each record.
	RecordVersion = "1"

	// ProcessorVersion is the vaultguard processor version.
	ProcessorVersion = "0.1.0"
)
