package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS custody_records (
    created_seq  INTEGER PRIMARY KEY AUTOINCREMENT,
    id_digest    BLOB    NOT NULL UNIQUE,
    name         TEXT    NOT NULL,
    state        INTEGER NOT NULL,
    last_updated INTEGER NOT NULL,
    last_actor   TEXT    NOT NULL,
    location     TEXT    NOT NULL DEFAULT '',
    event_count  INTEGER NOT NULL,
    case_digest  BLOB    NOT NULL,
    chain_head   BLOB    NOT NULL
);

CREATE TABLE IF NOT EXISTS custody_events (
    id              INTEGER PRIMARY KEY,
    subject_digest  BLOB    NOT NULL REFERENCES custody_records (id_digest),
    kind            INTEGER NOT NULL,
    description     TEXT    NOT NULL,
    recorded_at     INTEGER NOT NULL,
    issuer          TEXT    NOT NULL,
    event_digest    BLOB    NOT NULL,
    resulting_state INTEGER NOT NULL,
    prev_hash       BLOB    NOT NULL,
    hash            BLOB    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_custody_events_subject ON custody_events (subject_digest, id);

CREATE TRIGGER IF NOT EXISTS custody_events_no_update
BEFORE UPDATE ON custody_events
BEGIN
    SELECT RAISE(ABORT, 'custody_events is append-only');
END;

CREATE TRIGGER IF NOT EXISTS custody_events_no_delete
BEFORE DELETE ON custody_events
BEGIN
    SELECT RAISE(ABORT, 'custody_events is append-only');
END;
`

// SQLiteStore persists records and events to a single SQLite file.
// The connection pool is capped at one connection so every Commit is
// serialized by the database itself.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle so the role store can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlScanner interface {
	Scan(dest ...any) error
}

// read runs fn in a transaction so that its statements observe one committed
// state of the file.
func (s *SQLiteStore) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Record implements StateLedger.
func (s *SQLiteStore) Record(ctx context.Context, subject digest.Digest) (*Record, error) {
	var rec *Record
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = s.loadRecord(ctx, tx, subject)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fault.New(fault.NotFound, "record %s not found", subject)
	}
	return rec, nil
}

// loadRecord returns nil, nil when the subject has no record. q must be a
// transaction for the row and its event ids to agree.
func (s *SQLiteStore) loadRecord(ctx context.Context, q sqlQuerier, subject digest.Digest) (*Record, error) {
	rec, err := scanSQLiteRecord(q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM custody_records WHERE id_digest = ?`, subject))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id FROM custody_events WHERE subject_digest = ? ORDER BY id ASC`, subject)
	if err != nil {
		return nil, fmt.Errorf("query record events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		rec.EventIDs = append(rec.EventIDs, uint64(id))
	}
	return rec, rows.Err()
}

func eventByID(ctx context.Context, q sqlQuerier, id uint64) (*Event, error) {
	ev, err := scanSQLiteEvent(q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM custody_events WHERE id = ?`, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.New(fault.NotFound, "event %d not found", id)
		}
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return ev, nil
}

// Event implements EventRegistry.
func (s *SQLiteStore) Event(ctx context.Context, id uint64) (*Event, error) {
	return eventByID(ctx, s.db, id)
}

// Events implements EventRegistry.
func (s *SQLiteStore) Events(ctx context.Context, ids []uint64) ([]*Event, error) {
	out := make([]*Event, 0, len(ids))
	err := s.read(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			ev, err := eventByID(ctx, tx, id)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot implements Store.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM custody_records ORDER BY created_seq ASC`)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}
		defer rows.Close()
		bySubject := make(map[digest.Digest]*Record)
		for rows.Next() {
			rec, err := scanSQLiteRecord(rows)
			if err != nil {
				return fmt.Errorf("scan record: %w", err)
			}
			snap.Records = append(snap.Records, rec)
			bySubject[rec.IDDigest] = rec
		}
		if err := rows.Err(); err != nil {
			return err
		}

		evRows, err := tx.QueryContext(ctx,
			`SELECT `+eventColumns+` FROM custody_events ORDER BY id ASC`)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		defer evRows.Close()
		for evRows.Next() {
			ev, err := scanSQLiteEvent(evRows)
			if err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			snap.Events = append(snap.Events, ev)
			if rec, ok := bySubject[ev.Subject]; ok {
				rec.EventIDs = append(rec.EventIDs, ev.ID)
			}
		}
		return evRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Len implements EventRegistry.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM custody_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Subjects implements Store.
func (s *SQLiteStore) Subjects(ctx context.Context) ([]digest.Digest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id_digest FROM custody_records ORDER BY created_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var out []digest.Digest
	for rows.Next() {
		var d digest.Digest
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Commit implements Store.
func (s *SQLiteStore) Commit(ctx context.Context, m Mutation) (*Record, *Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prev, err := s.loadRecord(ctx, tx, m.Subject)
	if err != nil {
		return nil, nil, err
	}
	if err := m.check(prev); err != nil {
		return nil, nil, err
	}

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM custody_events`).Scan(&last); err != nil {
		return nil, nil, fmt.Errorf("reserve event id: %w", err)
	}

	rec, ev := m.seal(prev, uint64(last)+1)

	if m.Create {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO custody_records (`+recordColumns+`, event_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.IDDigest, rec.Name, int(rec.State), rec.LastUpdated.UnixMicro(),
			rec.LastActor, rec.Location, rec.CaseDigest, rec.ChainHead, rec.Version(),
		); err != nil {
			return nil, nil, fmt.Errorf("insert record: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE custody_records
			 SET state = ?, last_updated = ?, last_actor = ?, location = ?,
			     case_digest = ?, chain_head = ?, event_count = ?
			 WHERE id_digest = ? AND event_count = ?`,
			int(rec.State), rec.LastUpdated.UnixMicro(), rec.LastActor, rec.Location,
			rec.CaseDigest, rec.ChainHead, rec.Version(), rec.IDDigest, m.Version,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("update record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, nil, fault.New(fault.Conflict, "record %s changed concurrently", m.Subject)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO custody_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(ev.ID), ev.Subject, int(ev.Kind), ev.Description, ev.Timestamp.UnixMicro(),
		ev.Issuer, ev.EventDigest, int(ev.ResultingState), ev.PrevHash, ev.Hash,
	); err != nil {
		return nil, nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit ledger tx: %w", err)
	}
	return rec, ev, nil
}

func scanSQLiteRecord(row sqlScanner) (*Record, error) {
	rec := &Record{Exists: true}
	var state int
	var updated int64
	if err := row.Scan(
		&rec.IDDigest, &rec.Name, &state, &updated,
		&rec.LastActor, &rec.Location, &rec.CaseDigest, &rec.ChainHead,
	); err != nil {
		return nil, err
	}
	rec.State = State(state)
	rec.LastUpdated = time.UnixMicro(updated).UTC()
	return rec, nil
}

func scanSQLiteEvent(row sqlScanner) (*Event, error) {
	ev := &Event{}
	var id, at int64
	var kind, state int
	if err := row.Scan(
		&id, &ev.Subject, &kind, &ev.Description, &at,
		&ev.Issuer, &ev.EventDigest, &state, &ev.PrevHash, &ev.Hash,
	); err != nil {
		return nil, err
	}
	ev.ID = uint64(id)
	ev.Kind = Kind(kind)
	ev.ResultingState = State(state)
	ev.Timestamp = time.UnixMicro(at).UTC()
	return ev, nil
}
