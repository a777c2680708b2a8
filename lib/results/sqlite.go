// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ongpym/labctl/lib/procedure"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	procedure  TEXT NOT NULL,
	started    TEXT NOT NULL,
	parameters TEXT NOT NULL,
	columns    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rows (
	run_id TEXT NOT NULL REFERENCES runs(id),
	idx    INTEGER NOT NULL,
	data   TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);
`

// Store keeps runs and their rows in a SQLite database. Row values are
// stored as comma separated text so NaN survives the round trip.
type Store struct {
	db *sql.DB
}

// OpenStore creates or opens the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Sink returns a sink storing one run. Rows of a run are committed in a
// single transaction when the sink is closed.
func (s *Store) Sink() procedure.Sink { return &storeSink{db: s.db} }

// Rows returns the stored rows of run id keyed by column.
func (s *Store) Rows(id string) ([]procedure.Row, error) {
	var colsJSON string
	if err := s.db.QueryRow(`SELECT columns FROM runs WHERE id = ?`, id).Scan(&colsJSON); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	var cols []string
	if err := json.Unmarshal([]byte(colsJSON), &cols); err != nil {
		return nil, err
	}
	rs, err := s.db.Query(`SELECT data FROM rows WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []procedure.Row
	for rs.Next() {
		var data string
		if err := rs.Scan(&data); err != nil {
			return nil, err
		}
		toks := strings.Split(data, ",")
		row := make(procedure.Row, len(cols))
		for i, c := range cols {
			if i >= len(toks) {
				break
			}
			v, err := strconv.ParseFloat(toks[i], 64)
			if err != nil {
				return nil, fmt.Errorf("run %s: %w", id, err)
			}
			row[c] = v
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// Runs returns the ids of every stored run of the named procedure, oldest
// first.
func (s *Store) Runs(name string) ([]string, error) {
	rs, err := s.db.Query(`SELECT id FROM runs WHERE procedure = ? ORDER BY started`, name)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var ids []string
	for rs.Next() {
		var id string
		if err := rs.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rs.Err()
}

type storeSink struct {
	db  *sql.DB
	tx  *sql.Tx
	id  string
	idx int
}

func (s *storeSink) Start(h procedure.Header) error {
	params, err := json.Marshal(h.Values)
	if err != nil {
		return err
	}
	cols, err := json.Marshal(h.Columns)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	s.id = h.RunID.String()
	_, err = tx.Exec(`INSERT INTO runs (id, procedure, started, parameters, columns) VALUES (?, ?, ?, ?, ?)`,
		s.id, h.Procedure, h.Started.UTC().Format(time.RFC3339Nano), string(params), string(cols))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *storeSink) Record(vals []float64) error {
	if s.tx == nil {
		return fmt.Errorf("sqlite sink not started")
	}
	toks := make([]string, len(vals))
	for i, v := range vals {
		toks[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	if _, err := s.tx.Exec(`INSERT INTO rows (run_id, idx, data) VALUES (?, ?, ?)`, s.id, s.idx, strings.Join(toks, ",")); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	s.idx++
	return nil
}

func (s *storeSink) Close() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}
