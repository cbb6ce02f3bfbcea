// Package tracestore keeps finished runs (settings plus per-chain traces) in
// a SQLite database.
package tracestore

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	// sqlite driver registered as "sqlite"
	_ "modernc.org/sqlite"

	"github.com/CraigKelly/bayesgraph/trace"
)

// ErrUnknownRun is returned when no run has the requested id
var ErrUnknownRun = errors.New("Unknown run")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	created    INTEGER NOT NULL,
	iterations INTEGER NOT NULL,
	burnin     INTEGER NOT NULL,
	chains     INTEGER NOT NULL,
	thin       INTEGER NOT NULL,
	seed       INTEGER NOT NULL,
	compiled   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trace_columns (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name     TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS samples (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	chain    INTEGER NOT NULL,
	row_num  INTEGER NOT NULL,
	position INTEGER NOT NULL,
	value    REAL,
	PRIMARY KEY (run_id, chain, row_num, position)
);
`

// Run describes the settings of one stored run
type Run struct {
	ID         string
	Model      string
	Created    time.Time
	Iterations int
	Burnin     int
	Chains     int
	Thin       int
	Seed       int64
	Compiled   bool
}

// Store is a SQLite backed run archive. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates (or opens) the database at path. Use ":memory:" for a
// private in-memory store.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrapf(err, "Could not create directory for %s", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not open trace store %s", path)
	}
	// One connection: SQLite has a single writer, the pragma below is per
	// connection and each ":memory:" connection is a separate database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Could not enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Could not create trace store schema")
	}

	log.Debug("trace store open", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a run and its traces in one transaction. Chains are numbered
// by their position in traces. An empty run.ID gets a fresh UUID; the id
// used is returned.
func (s *Store) Save(ctx context.Context, run Run, traces []*trace.Trace) (string, error) {
	if len(traces) < 1 {
		return "", errors.New("No traces to save")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Created.IsZero() {
		run.Created = time.Now()
	}
	run.Chains = len(traces)
	columns := traces[0].Columns

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "Could not begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, model, created, iterations, burnin, chains, thin, seed, compiled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.Created.UnixNano(), run.Iterations, run.Burnin, run.Chains, run.Thin, run.Seed, run.Compiled)
	if err != nil {
		return "", errors.Wrapf(err, "Could not save run %s", run.ID)
	}

	for i, name := range columns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO trace_columns (run_id, position, name) VALUES (?, ?, ?)`, run.ID, i, name); err != nil {
			return "", errors.Wrapf(err, "Could not save column %s", name)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (run_id, chain, row_num, position, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", errors.Wrap(err, "Could not prepare sample insert")
	}
	defer stmt.Close()

	for chain, tr := range traces {
		if len(tr.Columns) != len(columns) {
			return "", errors.Errorf("Chain %d has %d columns, expected %d", chain, len(tr.Columns), len(columns))
		}
		for r, row := range tr.Rows() {
			for p, v := range row {
				val := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
				if _, err := stmt.ExecContext(ctx, run.ID, chain, r, p, val); err != nil {
					return "", errors.Wrapf(err, "Could not save chain %d row %d", chain, r)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrapf(err, "Could not commit run %s", run.ID)
	}
	s.log.Info("run saved", zap.String("run_id", run.ID), zap.Int("chains", len(traces)))
	return run.ID, nil
}

// Runs lists every stored run, newest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT id, model, created, iterations, burnin, chains, thin, seed, compiled FROM runs ORDER BY created DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "Could not list runs")
	}
	defer rs.Close()

	var out []Run
	for rs.Next() {
		run, err := scanRun(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, errors.Wrap(rs.Err(), "Could not list runs")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var created int64
	if err := sc.Scan(&run.ID, &run.Model, &created, &run.Iterations, &run.Burnin, &run.Chains, &run.Thin, &run.Seed, &run.Compiled); err != nil {
		return nil, err
	}
	run.Created = time.Unix(0, created)
	return &run, nil
}

// Load returns a stored run and one trace per chain. NaN samples come back
// as NaN.
func (s *Store) Load(ctx context.Context, id string) (*Run, []*trace.Trace, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, model, created, iterations, burnin, chains, thin, seed, compiled FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, errors.Wrapf(ErrUnknownRun, "%s", id)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Could not load run %s", id)
	}

	columns, err := s.columns(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rows := make([][][]float64, run.Chains)
	rs, err := s.db.QueryContext(ctx,
		`SELECT chain, row_num, position, value FROM samples WHERE run_id = ? ORDER BY chain, row_num, position`, id)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Could not load samples of %s", id)
	}
	defer rs.Close()
	for rs.Next() {
		var chain, row, pos int
		var v sql.NullFloat64
		if err := rs.Scan(&chain, &row, &pos, &v); err != nil {
			return nil, nil, errors.Wrapf(err, "Could not read samples of %s", id)
		}
		if chain < 0 || chain >= run.Chains || pos >= len(columns) {
			return nil, nil, errors.Errorf("Run %s has a sample outside chain %d column %d", id, chain, pos)
		}
		for len(rows[chain]) <= row {
			rows[chain] = append(rows[chain], make([]float64, len(columns)))
		}
		val := math.NaN()
		if v.Valid {
			val = v.Float64
		}
		rows[chain][row][pos] = val
	}
	if err := rs.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "Could not read samples of %s", id)
	}

	traces := make([]*trace.Trace, run.Chains)
	for c := range traces {
		if traces[c], err = trace.New(c, columns, rows[c]); err != nil {
			return nil, nil, err
		}
	}
	return run, traces, nil
}

func (s *Store) columns(ctx context.Context, id string) ([]string, error) {
	rs, err := s.db.QueryContext(ctx, `SELECT name FROM trace_columns WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not load columns of %s", id)
	}
	defer rs.Close()

	var cols []string
	for rs.Next() {
		var name string
		if err := rs.Scan(&name); err != nil {
			return nil, errors.Wrapf(err, "Could not read columns of %s", id)
		}
		cols = append(cols, name)
	}
	return cols, errors.Wrapf(rs.Err(), "Could not read columns of %s", id)
}

// Delete removes a run and its samples
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "Could not delete run %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrUnknownRun, "%s", id)
	}
	return nil
}
