package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the session archive tables. Execute it via
// [PostgresArchiver.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id  TEXT PRIMARY KEY,
    topic_id    TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    turn_count  INTEGER NOT NULL DEFAULT 0,
    total_cost  DOUBLE PRECISION NOT NULL DEFAULT 0,
    archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS session_entries (
    id         TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    role       TEXT NOT NULL,
    text       TEXT NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    metadata   JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_entries_session ON session_entries(session_id);
`

// DB is the database interface used by [PostgresArchiver]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresArchiver is an [Archiver] backed by a PostgreSQL database. Session
// metadata lives in the sessions table; transcript entries live in
// session_entries with per-entry metadata serialised as JSONB.
type PostgresArchiver struct {
	db DB
}

// Compile-time interface check.
var _ Archiver = (*PostgresArchiver)(nil)

// NewPostgresArchiver creates a new [PostgresArchiver] that uses the given
// database connection or pool. The caller is responsible for calling
// [PostgresArchiver.Migrate] to ensure the schema exists before issuing
// queries.
func NewPostgresArchiver(db DB) *PostgresArchiver {
	return &PostgresArchiver{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// archive tables and indexes if they do not already exist.
func (a *PostgresArchiver) Migrate(ctx context.Context) error {
	_, err := a.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Save implements [Archiver.Save]. Re-saving a session replaces its metadata
// row and all of its entries.
func (a *PostgresArchiver) Save(ctx context.Context, rec *Record) error {
	if rec.SessionID == "" {
		return errors.New("archive: record SessionID must not be empty")
	}

	const upsertSession = `
		INSERT INTO sessions (session_id, topic_id, started_at, ended_at, turn_count, total_cost)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id) DO UPDATE SET
			topic_id = EXCLUDED.topic_id,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			turn_count = EXCLUDED.turn_count,
			total_cost = EXCLUDED.total_cost,
			archived_at = now()`

	if _, err := a.db.Exec(ctx, upsertSession,
		rec.SessionID, rec.TopicID, rec.StartedAt, rec.EndedAt, rec.TurnCount, rec.TotalCost,
	); err != nil {
		return fmt.Errorf("archive: save session %q: %w", rec.SessionID, err)
	}

	if _, err := a.db.Exec(ctx, `DELETE FROM session_entries WHERE session_id = $1`, rec.SessionID); err != nil {
		return fmt.Errorf("archive: clear entries for %q: %w", rec.SessionID, err)
	}

	const insertEntry = `
		INSERT INTO session_entries (id, session_id, seq, role, text, ts, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	for i, e := range rec.Entries {
		metaJSON, err := json.Marshal(emptyMeta(e.Metadata))
		if err != nil {
			return fmt.Errorf("archive: marshal metadata: %w", err)
		}
		if _, err := a.db.Exec(ctx, insertEntry,
			e.ID, rec.SessionID, i, e.Role, e.Text, e.Timestamp, metaJSON,
		); err != nil {
			return fmt.Errorf("archive: save entry %d of %q: %w", i, rec.SessionID, err)
		}
	}
	return nil
}

// Get implements [Archiver.Get]. It returns (nil, nil) if no session with the
// given ID exists.
func (a *PostgresArchiver) Get(ctx context.Context, sessionID string) (*Record, error) {
	const query = `
		SELECT session_id, topic_id, started_at, ended_at, turn_count, total_cost
		FROM sessions
		WHERE session_id = $1`

	var rec Record
	err := a.db.QueryRow(ctx, query, sessionID).Scan(
		&rec.SessionID, &rec.TopicID, &rec.StartedAt, &rec.EndedAt, &rec.TurnCount, &rec.TotalCost,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: get %q: %w", sessionID, err)
	}

	entries, err := a.loadEntries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec.Entries = entries
	return &rec, nil
}

// List implements [Archiver.List]. Records are returned without their
// transcript entries loaded; use Get for the full record.
func (a *PostgresArchiver) List(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT session_id, topic_id, started_at, ended_at, turn_count, total_cost
		FROM sessions
		ORDER BY ended_at DESC`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = a.db.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = a.db.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.SessionID, &rec.TopicID, &rec.StartedAt, &rec.EndedAt, &rec.TurnCount, &rec.TotalCost,
		); err != nil {
			return nil, fmt.Errorf("archive: list scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return recs, nil
}

func (a *PostgresArchiver) loadEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	const query = `
		SELECT id, role, text, ts, metadata
		FROM session_entries
		WHERE session_id = $1
		ORDER BY seq`

	rows, err := a.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: load entries for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Role, &e.Text, &e.Timestamp, &metaJSON); err != nil {
			return nil, fmt.Errorf("archive: entry scan: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("archive: unmarshal metadata: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: load entries for %q: %w", sessionID, err)
	}
	return entries, nil
}

// emptyMeta returns m if non-nil, otherwise an empty non-nil map. This
// ensures JSON marshalling produces "{}" instead of "null".
func emptyMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
