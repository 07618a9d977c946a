// Package store persists benchmark runs in a SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"satmetrics/internal/config"
)

// Satisfiability is the solver verdict as stored in the runs table.
type Satisfiability int8

const (
	Unsatisfiable Satisfiability = -1
	Unknown       Satisfiability = 0
	Satisfiable   Satisfiability = 1
)

// TestMetrics holds everything recorded about a single solver run.
// Runtime is in milliseconds. Failed marks runs that were killed or
// produced no usable output; their runtime is stored as NULL.
type TestMetrics struct {
	Failed            bool
	Runtime           int64
	Satisfiable       Satisfiability
	ParseTime         int64
	MemoryUsage       int64
	Restarts          int64
	Conflicts         int64
	Propagations      int64
	ConflictLiterals  int64
	NumberOfVariables int64
	NumberOfClauses   int64
}

// Failed is the record stored for runs that were killed or never
// produced usable output.
func Failed() TestMetrics {
	return TestMetrics{Failed: true, Satisfiable: Unknown}
}

// Bundle ties metrics to the solver, test set and target file that
// produced them.
type Bundle struct {
	Metrics TestMetrics
	Solver  string
	TestSet string
	Target  string
}

var schema = []string{
	`create table if not exists benchmarks (
		id integer primary key,
		comment text
	);`,
	`create table if not exists test_sets (
		id integer primary key,
		timeout integer not null,
		name text not null,
		params text not null
	);`,
	`create table if not exists solvers (
		id integer primary key,
		name text not null,
		exec text not null,
		params text not null,
		ingest text not null
	);`,
	`create table if not exists runs (
		id integer primary key,

		runtime integer,
		parse_time integer not null,
		satisfiable integer not null,
		memory_usage integer not null,
		restarts integer not null,
		conflicts integer not null,
		propagations integer not null,

		conflict_literals integer not null,
		number_of_variables integer not null,
		number_of_clauses integer not null,
		target text not null,

		solver integer not null references solvers (id),
		test integer not null references test_sets (id),
		benchmark integer not null references benchmarks (id)
	);`,
}

const insertRun = `insert into runs
	(runtime, parse_time, satisfiable, memory_usage, restarts, conflicts,
	 propagations, conflict_literals, number_of_variables,
	 number_of_clauses, target, solver, test, benchmark)
	values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) returning id`

// DB is a metrics database. A single DB may be shared by concurrent
// workers; database/sql serializes access to the connection.
type DB struct {
	db        *sql.DB
	solvers   map[string]int64
	testSets  map[string]int64
	benchmark int64
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	for _, pragma := range []string{
		"pragma journal_mode = WAL;",
		"pragma busy_timeout = 5000;",
		"pragma foreign_keys = on;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return &DB{db: db, solvers: map[string]int64{}, testSets: map[string]int64{}}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Benchmark returns the active benchmark id after Init.
func (d *DB) Benchmark() int64 {
	return d.benchmark
}

// Init creates the schema, inserts or reuses solver and test set rows
// for everything the config defines, and opens a benchmark: either the
// given existing one (benchmark > 0) or a fresh row with the comment.
func (d *DB) Init(cfg *config.Config, benchmark int64, comment string) error {
	for _, stmt := range schema {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	for _, name := range cfg.SolverNames() {
		solver := cfg.Solvers[name]
		id, err := d.namedID(
			"select id from solvers where name = ?",
			"insert into solvers (name, exec, params, ingest) values (?, ?, ?, ?) returning id",
			name, solver.Exec, strings.Join(solver.Params, " "), solver.Ingest)
		if err != nil {
			return fmt.Errorf("register solver %s: %w", name, err)
		}
		d.solvers[name] = id
	}

	for _, name := range cfg.TestNames() {
		set := cfg.Tests[name]
		id, err := d.namedID(
			"select id from test_sets where name = ?",
			"insert into test_sets (name, timeout, params) values (?, ?, ?) returning id",
			name, set.Timeout.Std().Milliseconds(), strings.Join(set.Params, " "))
		if err != nil {
			return fmt.Errorf("register test set %s: %w", name, err)
		}
		d.testSets[name] = id
	}

	if benchmark > 0 {
		var exists int
		err := d.db.QueryRow("select count(*) from benchmarks where id = ?", benchmark).Scan(&exists)
		if err != nil {
			return fmt.Errorf("look up benchmark %d: %w", benchmark, err)
		}
		if exists == 0 {
			return fmt.Errorf("benchmark %d does not exist", benchmark)
		}
		d.benchmark = benchmark
		return nil
	}

	var nullable any
	if comment != "" {
		nullable = comment
	}
	if err := d.db.QueryRow("insert into benchmarks (comment) values (?) returning id", nullable).Scan(&d.benchmark); err != nil {
		return fmt.Errorf("create benchmark: %w", err)
	}
	return nil
}

func (d *DB) namedID(selectStmt, insertStmt string, name string, rest ...any) (int64, error) {
	var id int64
	err := d.db.QueryRow(selectStmt, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	args := append([]any{name}, rest...)
	if err := d.db.QueryRow(insertStmt, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// StoreRun inserts one run and returns its id.
func (d *DB) StoreRun(b Bundle) (int64, error) {
	solver, ok := d.solvers[b.Solver]
	if !ok {
		return 0, fmt.Errorf("unknown solver %q", b.Solver)
	}
	test, ok := d.testSets[b.TestSet]
	if !ok {
		return 0, fmt.Errorf("unknown test set %q", b.TestSet)
	}
	var id int64
	err := d.db.QueryRow(insertRun,
		nullableRuntime(b.Metrics),
		b.Metrics.ParseTime,
		int8(b.Metrics.Satisfiable),
		b.Metrics.MemoryUsage,
		b.Metrics.Restarts,
		b.Metrics.Conflicts,
		b.Metrics.Propagations,
		b.Metrics.ConflictLiterals,
		b.Metrics.NumberOfVariables,
		b.Metrics.NumberOfClauses,
		b.Target,
		solver,
		test,
		d.benchmark,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// StoreBatch inserts all bundles in a single transaction.
func (d *DB) StoreBatch(bundles []Bundle) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertRun)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bundles {
		solver, ok := d.solvers[b.Solver]
		if !ok {
			return fmt.Errorf("unknown solver %q", b.Solver)
		}
		test, ok := d.testSets[b.TestSet]
		if !ok {
			return fmt.Errorf("unknown test set %q", b.TestSet)
		}
		var id int64
		err := stmt.QueryRow(
			nullableRuntime(b.Metrics),
			b.Metrics.ParseTime,
			int8(b.Metrics.Satisfiable),
			b.Metrics.MemoryUsage,
			b.Metrics.Restarts,
			b.Metrics.Conflicts,
			b.Metrics.Propagations,
			b.Metrics.ConflictLiterals,
			b.Metrics.NumberOfVariables,
			b.Metrics.NumberOfClauses,
			b.Target,
			solver,
			test,
			d.benchmark,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert run for %s: %w", b.Target, err)
		}
	}
	return tx.Commit()
}

func nullableRuntime(m TestMetrics) any {
	if m.Failed {
		return nil
	}
	return m.Runtime
}
