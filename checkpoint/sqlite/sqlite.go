// Package sqlite provides the durable checkpoint store on a local SQLite
// database. WAL mode is enabled so readers do not block the writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/applymate/agent-go/checkpoint"
)

// Store persists checkpoint chains in a single SQLite file.
type Store struct {
	db *sql.DB
}

var _ checkpoint.Store = (*Store)(nil)

// Open creates or opens the checkpoint database at path.
func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("missing db path")
	}
	p = filepath.Clean(p)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Checkpoint writes are serialized per thread by the engine; a single
	// connection keeps SQLite's locking out of the picture entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) GetLatest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	if err := checkStore(s, threadID); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
SELECT thread_id, ts, parent_ts, state_json, metadata_json
FROM checkpoints
WHERE thread_id = ?
ORDER BY ts DESC
LIMIT 1
`, threadID)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkpoint.ErrNotFound
	}
	return cp, err
}

func (s *Store) List(ctx context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	if err := checkStore(s, threadID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT thread_id, ts, parent_ts, state_json, metadata_json
FROM checkpoints
WHERE thread_id = ?
ORDER BY ts DESC
`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*checkpoint.Checkpoint, 0, 8)
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *Store) Put(ctx context.Context, threadID string, state checkpoint.State, extra map[string]interface{}) (*checkpoint.Checkpoint, error) {
	if err := checkStore(s, threadID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cp, err := putTx(ctx, tx, threadID, state, extra)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Store) PutWrites(ctx context.Context, threadID string, writes []checkpoint.Write, taskID, taskPath string) (*checkpoint.Checkpoint, error) {
	if err := checkStore(s, threadID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	latest, err := latestTx(ctx, tx, threadID)
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, err
	}

	state, extra := checkpoint.MergeWrites(latest, writes, taskID, taskPath)
	cp, err := putTx(ctx, tx, threadID, state, extra)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Store) Delete(ctx context.Context, threadID string) error {
	if err := checkStore(s, threadID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	return err
}

// putTx appends one checkpoint inside tx: read the chain head, compute
// the next step and version, serialize, insert.
func putTx(ctx context.Context, tx *sql.Tx, threadID string, state checkpoint.State, extra map[string]interface{}) (*checkpoint.Checkpoint, error) {
	step := 0
	var prevTS int64
	var parent *int64

	var ts int64
	err := tx.QueryRowContext(ctx, `
SELECT ts, json_extract(metadata_json, '$.step')
FROM checkpoints
WHERE thread_id = ?
ORDER BY ts DESC
LIMIT 1
`, threadID).Scan(&ts, &step)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh thread
	case err != nil:
		return nil, err
	default:
		step++
		prevTS = ts
		parent = &ts
	}

	state.Step = step
	stateJSON, err := checkpoint.MarshalState(state)
	if err != nil {
		return nil, err
	}
	meta := checkpoint.Metadata{Step: step, Extra: extra}
	metaJSON, err := checkpoint.MarshalMetadata(meta)
	if err != nil {
		return nil, err
	}

	cp := &checkpoint.Checkpoint{
		ThreadID:        threadID,
		Timestamp:       checkpoint.NextTimestamp(prevTS),
		ParentTimestamp: parent,
		State:           state,
		Metadata:        meta,
	}

	var parentVal interface{}
	if parent != nil {
		parentVal = *parent
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO checkpoints(thread_id, ts, parent_ts, state_json, metadata_json)
VALUES(?, ?, ?, ?, ?)
`, threadID, cp.Timestamp, parentVal, string(stateJSON), string(metaJSON)); err != nil {
		return nil, err
	}
	return cp, nil
}

func latestTx(ctx context.Context, tx *sql.Tx, threadID string) (*checkpoint.Checkpoint, error) {
	row := tx.QueryRowContext(ctx, `
SELECT thread_id, ts, parent_ts, state_json, metadata_json
FROM checkpoints
WHERE thread_id = ?
ORDER BY ts DESC
LIMIT 1
`, threadID)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkpoint.ErrNotFound
	}
	return cp, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheckpoint(row rowScanner) (*checkpoint.Checkpoint, error) {
	var (
		cp        checkpoint.Checkpoint
		parentTS  sql.NullInt64
		stateJSON string
		metaJSON  string
	)
	if err := row.Scan(&cp.ThreadID, &cp.Timestamp, &parentTS, &stateJSON, &metaJSON); err != nil {
		return nil, err
	}
	if parentTS.Valid {
		p := parentTS.Int64
		cp.ParentTimestamp = &p
	}

	state, err := checkpoint.UnmarshalState([]byte(stateJSON))
	if err != nil {
		return nil, fmt.Errorf("thread %s ts %d: %w", cp.ThreadID, cp.Timestamp, err)
	}
	meta, err := checkpoint.UnmarshalMetadata([]byte(metaJSON))
	if err != nil {
		return nil, fmt.Errorf("thread %s ts %d: %w", cp.ThreadID, cp.Timestamp, err)
	}
	cp.State = state
	cp.Metadata = meta
	return &cp, nil
}

func checkStore(s *Store, threadID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if strings.TrimSpace(threadID) == "" {
		return errors.New("missing thread_id")
	}
	return nil
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS checkpoints (
  thread_id TEXT NOT NULL,
  ts INTEGER NOT NULL,
  parent_ts INTEGER,
  state_json TEXT NOT NULL,
  metadata_json TEXT NOT NULL,
  PRIMARY KEY (thread_id, ts)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_ts ON checkpoints(thread_id, ts DESC);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}
