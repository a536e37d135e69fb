// Package results persists benchmark runs in a SQLite database.
package results

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/bench"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bench_runs (
	run_id        TEXT PRIMARY KEY,
	dataset       TEXT NOT NULL,
	builder       TEXT NOT NULL,
	threads       INTEGER NOT NULL,
	vectors       INTEGER NOT NULL,
	dimension     INTEGER NOT NULL,
	build_seconds REAL NOT NULL,
	recall        REAL,
	cpu           TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS bench_runs_dataset ON bench_runs(dataset, created_at);
`

// timeLayout keeps created_at lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed log of benchmark runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	log.Debug().Msgf("Results store opened at %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one run.
func (s *Store) Record(ctx context.Context, r bench.Result) error {
	if r.RunID == "" {
		return errors.New("run id must be set")
	}
	var recall sql.NullFloat64
	if r.Recall != nil {
		recall = sql.NullFloat64{Float64: *r.Recall, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bench_runs(run_id, dataset, builder, threads, vectors, dimension, build_seconds, recall, cpu, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Dataset, r.Builder, r.Threads, r.Vectors, r.Dimension, r.BuildSeconds, recall, r.CPU,
		r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return errors.Wrapf(err, "record run %s", r.RunID)
	}
	return nil
}

// List returns the runs for dataset, oldest first. An empty dataset lists every run.
func (s *Store) List(ctx context.Context, dataset string) ([]bench.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, dataset, builder, threads, vectors, dimension, build_seconds, recall, cpu, created_at
		 FROM bench_runs WHERE ? = '' OR dataset = ? ORDER BY created_at, run_id`, dataset, dataset)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []bench.Result
	for rows.Next() {
		var (
			r       bench.Result
			recall  sql.NullFloat64
			created string
		)
		if err := rows.Scan(&r.RunID, &r.Dataset, &r.Builder, &r.Threads, &r.Vectors, &r.Dimension,
			&r.BuildSeconds, &recall, &r.CPU, &created); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		if recall.Valid {
			v := recall.Float64
			r.Recall = &v
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, errors.Wrapf(err, "run %s created_at", r.RunID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
