package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists records and events to PostgreSQL.
// It implements the Store interface; Commit runs in a single transaction that
// row-locks the subject's record, so concurrent writers for different subjects
// never contend.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
// The schema is created by cmd/migrate from migrations/.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

const recordColumns = `id_digest, name, state, last_updated, last_actor, location, case_digest, chain_head`

const eventColumns = `id, subject_digest, kind, description, recorded_at, issuer, event_digest, resulting_state, prev_hash, hash`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// readOnly is the isolation used by multi-statement reads: every statement
// sees the snapshot taken at the first one.
var readOnly = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func (s *PostgresStore) read(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, readOnly)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Record implements StateLedger.
func (s *PostgresStore) Record(ctx context.Context, subject digest.Digest) (*Record, error) {
	var rec *Record
	err := s.read(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = s.loadRecord(ctx, tx, subject, false)
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
func (s *PostgresStore) loadRecord(ctx context.Context, q querier, subject digest.Digest, forUpdate bool) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM custody_records WHERE id_digest = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rec, err := scanRecord(q.QueryRow(ctx, query, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id FROM custody_events WHERE subject_digest = $1 ORDER BY id ASC`, subject)
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

// Event implements EventRegistry.
func (s *PostgresStore) Event(ctx context.Context, id uint64) (*Event, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM custody_events WHERE id = $1`, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.New(fault.NotFound, "event %d not found", id)
		}
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return ev, nil
}

// Events implements EventRegistry.
func (s *PostgresStore) Events(ctx context.Context, ids []uint64) ([]*Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM custody_events WHERE id = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	byID := make(map[uint64]*Event, len(ids))
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		byID[ev.ID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Event, 0, len(ids))
	for _, id := range ids {
		ev, ok := byID[id]
		if !ok {
			return nil, fault.New(fault.NotFound, "event %d not found", id)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Len implements EventRegistry.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM custody_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Subjects implements Store.
func (s *PostgresStore) Subjects(ctx context.Context) ([]digest.Digest, error) {
	rows, err := s.pool.Query(ctx, `SELECT id_digest FROM custody_records ORDER BY created_seq ASC`)
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

// Snapshot implements Store.
func (s *PostgresStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.read(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+recordColumns+` FROM custody_records ORDER BY created_seq ASC`)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}
		bySubject := make(map[digest.Digest]*Record)
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan record: %w", err)
			}
			snap.Records = append(snap.Records, rec)
			bySubject[rec.IDDigest] = rec
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		evRows, err := tx.Query(ctx,
			`SELECT `+eventColumns+` FROM custody_events ORDER BY id ASC`)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		defer evRows.Close()
		for evRows.Next() {
			ev, err := scanEvent(evRows)
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

// Commit implements Store.
// It locks the subject's record row, checks the expected version, reserves the
// next event id, and writes the event and the record in one transaction.
func (s *PostgresStore) Commit(ctx context.Context, m Mutation) (*Record, *Event, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	prev, err := s.loadRecord(ctx, tx, m.Subject, true)
	if err != nil {
		return nil, nil, err
	}
	if err := m.check(prev); err != nil {
		return nil, nil, err
	}

	var id int64
	if err := tx.QueryRow(ctx,
		`SELECT nextval(pg_get_serial_sequence('custody_events', 'id'))`,
	).Scan(&id); err != nil {
		return nil, nil, fmt.Errorf("reserve event id: %w", err)
	}

	rec, ev := m.seal(prev, uint64(id))

	if m.Create {
		tag, err := tx.Exec(ctx,
			`INSERT INTO custody_records (`+recordColumns+`, event_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id_digest) DO NOTHING`,
			rec.IDDigest, rec.Name, int16(rec.State), rec.LastUpdated,
			rec.LastActor, rec.Location, rec.CaseDigest, rec.ChainHead, rec.Version(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, nil, fault.New(fault.DuplicateRecord, "record %s already exists", m.Subject)
		}
	} else {
		tag, err := tx.Exec(ctx,
			`UPDATE custody_records
			 SET state = $2, last_updated = $3, last_actor = $4, location = $5,
			     case_digest = $6, chain_head = $7, event_count = $8
			 WHERE id_digest = $1 AND event_count = $9`,
			rec.IDDigest, int16(rec.State), rec.LastUpdated, rec.LastActor,
			rec.Location, rec.CaseDigest, rec.ChainHead, rec.Version(), m.Version,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("update record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, nil, fault.New(fault.Conflict, "record %s changed concurrently", m.Subject)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO custody_events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		int64(ev.ID), ev.Subject, int16(ev.Kind), ev.Description, ev.Timestamp,
		ev.Issuer, ev.EventDigest, int16(ev.ResultingState), ev.PrevHash, ev.Hash,
	); err != nil {
		return nil, nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger transition committed",
		zap.Uint64("event_id", ev.ID),
		zap.Stringer("kind", ev.Kind),
		zap.Stringer("subject", ev.Subject),
	)
	return rec, ev, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{Exists: true}
	var state int16
	if err := row.Scan(
		&rec.IDDigest, &rec.Name, &state, &rec.LastUpdated,
		&rec.LastActor, &rec.Location, &rec.CaseDigest, &rec.ChainHead,
	); err != nil {
		return nil, err
	}
	rec.State = State(state)
	rec.LastUpdated = rec.LastUpdated.UTC()
	return rec, nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	ev := &Event{}
	var id int64
	var kind, state int16
	if err := row.Scan(
		&id, &ev.Subject, &kind, &ev.Description, &ev.Timestamp,
		&ev.Issuer, &ev.EventDigest, &state, &ev.PrevHash, &ev.Hash,
	); err != nil {
		return nil, err
	}
	ev.ID = uint64(id)
	ev.Kind = Kind(kind)
	ev.ResultingState = State(state)
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}
