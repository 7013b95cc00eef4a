package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/vaultguard/internal/ir"
)

// CommitInstruction appends a log entry and upserts every record it produced
// in a single transaction.
//
// A rejected entry must carry no records. A committed entry records one
// record_writes row per record, holding the state digest the write produced.
// entry.Writes is ignored; writes are always derived from records.
// Re-committing an entry with an existing ID is an error; the log is
// append-only.
func (s *Store) CommitInstruction(ctx context.Context, entry ir.LogEntry, records []ir.Record) error {
	if entry.Status == ir.StatusRejected && len(records) > 0 {
		return fmt.Errorf("commit instruction %s: rejected entry carries %d record writes", entry.ID, len(records))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit instruction: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO instructions
		(id, seq, trace_id, op, message, tx, status, failure_kind, failure_message, processor_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Seq,
		entry.TraceID,
		entry.Op.String(),
		entry.Message,
		entry.Transaction,
		string(entry.Status),
		entry.FailureKind,
		entry.FailureMessage,
		ir.ProcessorVersion,
	)
	if err != nil {
		return fmt.Errorf("commit instruction %s: insert log entry: %w", entry.ID, err)
	}

	for _, rec := range records {
		digest, err := upsertRecord(ctx, tx, rec, entry.Seq)
		if err != nil {
			return fmt.Errorf("commit instruction %s: %w", entry.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO record_writes (instruction_id, address, digest)
			VALUES (?, ?, ?)
		`, entry.ID, rec.Address.String(), digest)
		if err != nil {
			return fmt.Errorf("commit instruction %s: record write %s: %w", entry.ID, rec.Address.Short(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit instruction %s: commit: %w", entry.ID, err)
	}
	return nil
}

// PutRecord upserts a single record outside the instruction log.
// Used for seeding fixtures; normal mutation goes through CommitInstruction.
func (s *Store) PutRecord(ctx context.Context, rec ir.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put record: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := upsertRecord(ctx, tx, rec, 0); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put record: commit: %w", err)
	}
	return nil
}

// upsertRecord writes rec and returns its state digest.
func upsertRecord(ctx context.Context, tx *sql.Tx, rec ir.Record, seq int64) (string, error) {
	if rec.Address.IsZero() {
		return "", fmt.Errorf("upsert record: zero address")
	}

	data, err := ir.EncodeRecord(rec)
	if err != nil {
		return "", fmt.Errorf("upsert record %s: %w", rec.Address.Short(), err)
	}
	digest, err := ir.StateDigest(rec)
	if err != nil {
		return "", fmt.Errorf("upsert record %s: %w", rec.Address.Short(), err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (address, owner, kind, lifecycle, data, digest, version, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			owner = excluded.owner,
			kind = excluded.kind,
			lifecycle = excluded.lifecycle,
			data = excluded.data,
			digest = excluded.digest,
			version = excluded.version,
			seq = excluded.seq
	`,
		rec.Address.String(),
		rec.Owner.String(),
		string(rec.Kind),
		rec.Lifecycle.String(),
		data,
		digest.String(),
		ir.RecordVersion,
		seq,
	)
	if err != nil {
		return "", fmt.Errorf("upsert record %s: %w", rec.Address.Short(), err)
	}
	return digest.String(), nil
}
