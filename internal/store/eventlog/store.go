// Package eventlog keeps a durable, append-only journal of order state
// transitions in SQLite, giving the operator event stream a queryable
// history that survives restarts.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"stacker/internal/orders"
)

// Record is one journaled transition.
type Record struct {
	Seq        int64  `json:"seq"`
	Timestamp  int64  `json:"ts"`
	Level      string `json:"level"`
	OrderID    int64  `json:"order_id"`
	Instrument string `json:"instrument"`
	Contract   string `json:"contract,omitempty"`
	Account    string `json:"account,omitempty"`
	FromState  string `json:"from"`
	ToState    string `json:"to"`
	Trade      string `json:"trade"`
	Fill       string `json:"fill"`
}

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("event log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS order_transitions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		level TEXT NOT NULL,
		order_id INTEGER NOT NULL,
		instrument TEXT NOT NULL,
		contract TEXT,
		account TEXT,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		trade TEXT,
		fill TEXT
	);`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_transitions_order
		ON order_transitions(level, order_id);`)
	return err
}

// Append journals one transition. Designed to hang off the stacks'
// transition observers.
func (s *Store) Append(level orders.Level, o *orders.Order, from, to orders.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("event log closed")
	}
	_, err := s.db.Exec(
		`INSERT INTO order_transitions
			(ts, level, order_id, instrument, contract, account, from_state, to_state, trade, fill)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), string(level), o.ID,
		o.Key.Instrument, o.Key.Contract, o.Key.Account,
		string(from), string(to), o.Trade.String(), o.Fill.String(),
	)
	return err
}

// Recent returns up to limit transitions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("event log closed")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, ts, level, order_id, instrument, contract, account,
			from_state, to_state, trade, fill
		FROM order_transitions ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var contract, account, trade, fill sql.NullString
		if err := rows.Scan(&r.Seq, &r.Timestamp, &r.Level, &r.OrderID, &r.Instrument,
			&contract, &account, &r.FromState, &r.ToState, &trade, &fill); err != nil {
			return nil, err
		}
		r.Contract = contract.String
		r.Account = account.String
		r.Trade = trade.String
		r.Fill = fill.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
