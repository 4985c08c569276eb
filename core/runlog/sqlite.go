package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in a SQLite database, with a side table mapping
// customers to runs.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	ts     INTEGER NOT NULL,
	record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_assignments (
	run_id      TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	units       INTEGER NOT NULL,
	PRIMARY KEY (run_id, customer_id)
);
CREATE INDEX IF NOT EXISTS runs_ts ON runs(ts);
CREATE INDEX IF NOT EXISTS run_assignments_customer ON run_assignments(customer_id);`

// NewSQLiteStore opens or creates the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, ts, record) VALUES (?, ?, ?)`,
		rec.RunID, rec.Timestamp.UnixNano(), string(b)); err != nil {
		return fmt.Errorf("insert run %s: %w", rec.RunID, err)
	}
	for id, units := range rec.Assignments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_assignments (run_id, customer_id, units) VALUES (?, ?, ?)`,
			rec.RunID, id, units); err != nil {
			return fmt.Errorf("insert assignment %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT r.record FROM runs r WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND r.ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND r.ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.RunID != "" {
		query += ` AND r.run_id = ?`
		args = append(args, q.RunID)
	}
	if q.CustomerID != "" {
		query += ` AND EXISTS (SELECT 1 FROM run_assignments a WHERE a.run_id = r.run_id AND a.customer_id = ?)`
		args = append(args, q.CustomerID)
	}
	query += ` ORDER BY r.ts`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return finish(res, q.Limit), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
