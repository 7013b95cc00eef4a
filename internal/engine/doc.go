// Package engine implements the vaultguard instruction processor.
//
// The processor is the only entry point that mutates records. For each
// signed transaction it:
//  1. Verifies signatures over the canonical instruction encoding
//  2. Loads working copies of every record the instruction names
//  3. Runs the op's guard chain over all touched records
//  4. Applies the transition to the working copies
//  5. Commits the mutated records and one log entry in a single store
//     transaction, or logs the rejection with no record writes
//
// ARCHITECTURE:
//
// Serialized Processing:
// Process holds a mutex for the whole of steps 1-5, so no two instructions
// ever observe each other's working sets. Submit/Run layer a FIFO queue on
// top for callers that want asynchronous submission with a single worker.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every processed instruction is stamped with a monotonic seq from
// Clock.Next(). The instruction ID is a keyed hash of the canonical
// instruction plus seq. Wall-clock time only feeds metrics.
//
// Validate Before Mutate:
// Guards for every record run before any working copy changes. A rejected
// instruction leaves every record byte-for-byte unchanged.
//
// Halt Is Not Close:
// Halt() models the execution environment disabling the processor. It is
// distinct from, and strictly stronger than, the per-record privileged_close
// transition. Nothing reachable through an instruction can halt the
// processor.
package engine
