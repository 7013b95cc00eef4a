package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/vaultguard/internal/ir"
)

// GetRecord loads the record at addr. Returns found=false with no error when
// no record has been stored at that address.
func (s *Store) GetRecord(ctx context.Context, addr ir.Key) (ir.Record, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM records WHERE address = ?
	`, addr.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, false, nil
	}
	if err != nil {
		return ir.Record{}, false, fmt.Errorf("get record %s: %w", addr.Short(), err)
	}

	rec, err := ir.DecodeRecord(data)
	if err != nil {
		return ir.Record{}, false, fmt.Errorf("get record %s: %w", addr.Short(), err)
	}
	return rec, true, nil
}

// ListRecords returns every stored record ordered by address.
func (s *Store) ListRecords(ctx context.Context) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM records
		ORDER BY address ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return scanRecords(rows)
}

// ListRecordsByOwner returns the records owned by owner ordered by address.
func (s *Store) ListRecordsByOwner(ctx context.Context, owner ir.Key) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM records
		WHERE owner = ?
		ORDER BY address ASC COLLATE BINARY
	`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list records by owner: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]ir.Record, error) {
	defer rows.Close()

	var out []ir.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := ir.DecodeRecord(data)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ReadInstructions returns the full instruction log in seq order, each entry
// with the record writes it produced.
func (s *Store) ReadInstructions(ctx context.Context) ([]ir.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, trace_id, op, message, tx, status, failure_kind, failure_message
		FROM instructions
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("read instructions: %w", err)
	}

	var entries []ir.LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("read instructions: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("read instructions: %w", err)
	}
	rows.Close()

	// Writes are loaded after the cursor closes; the pool holds one connection.
	for i := range entries {
		writes, err := s.readWrites(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Writes = writes
	}
	return entries, nil
}

// GetInstruction loads a single log entry by ID.
func (s *Store) GetInstruction(ctx context.Context, id string) (ir.LogEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, trace_id, op, message, tx, status, failure_kind, failure_message
		FROM instructions WHERE id = ?
	`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.LogEntry{}, false, nil
	}
	if err != nil {
		return ir.LogEntry{}, false, fmt.Errorf("get instruction %s: %w", id, err)
	}

	entry.Writes, err = s.readWrites(ctx, id)
	if err != nil {
		return ir.LogEntry{}, false, err
	}
	return entry, true, nil
}

// MaxSeq returns the highest logged seq, or 0 for an empty log.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM instructions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (ir.LogEntry, error) {
	var (
		entry  ir.LogEntry
		op     string
		status string
	)
	err := row.Scan(
		&entry.ID,
		&entry.Seq,
		&entry.TraceID,
		&op,
		&entry.Message,
		&entry.Transaction,
		&status,
		&entry.FailureKind,
		&entry.FailureMessage,
	)
	if err != nil {
		return ir.LogEntry{}, err
	}

	entry.Op, err = ir.ParseOp(op)
	if err != nil {
		return ir.LogEntry{}, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	entry.Status = ir.Status(status)
	return entry, nil
}

func (s *Store) readWrites(ctx context.Context, id string) ([]ir.RecordWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, digest FROM record_writes
		WHERE instruction_id = ?
		ORDER BY address ASC COLLATE BINARY
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read writes for %s: %w", id, err)
	}
	defer rows.Close()

	var writes []ir.RecordWrite
	for rows.Next() {
		var addr, digest string
		if err := rows.Scan(&addr, &digest); err != nil {
			return nil, fmt.Errorf("scan write for %s: %w", id, err)
		}
		key, err := ir.ParseKey(addr)
		if err != nil {
			return nil, fmt.Errorf("scan write for %s: %w", id, err)
		}
		writes = append(writes, ir.RecordWrite{Address: key, Digest: digest})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate writes for %s: %w", id, err)
	}
	return writes, nil
}
