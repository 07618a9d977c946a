package store

import (
	"database/sql"
	"fmt"
)

// EnsureSchema creates the tables without touching solver or test set
// registrations. Used by merge targets that are not opened via Init.
func (d *DB) EnsureSchema() error {
	for _, stmt := range schema {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Merge copies every benchmark and run from the database at srcPath
// into this one. Solvers and test sets are matched by name; benchmarks
// keep their comment but get fresh ids. Returns the number of copied
// runs.
func (d *DB) Merge(srcPath string) (int64, error) {
	src, err := sql.Open("sqlite", srcPath)
	if err != nil {
		return 0, fmt.Errorf("open source database %s: %w", srcPath, err)
	}
	defer src.Close()

	solverIDs, err := d.remapNamed(src,
		"select id, name, exec, params, ingest from solvers",
		"select id from solvers where name = ?",
		"insert into solvers (name, exec, params, ingest) values (?, ?, ?, ?) returning id",
		3)
	if err != nil {
		return 0, fmt.Errorf("merge solvers: %w", err)
	}

	testIDs, err := d.remapNamed(src,
		"select id, name, timeout, params from test_sets",
		"select id from test_sets where name = ?",
		"insert into test_sets (name, timeout, params) values (?, ?, ?) returning id",
		2)
	if err != nil {
		return 0, fmt.Errorf("merge test sets: %w", err)
	}

	benchIDs := map[int64]int64{}
	rows, err := src.Query("select id, comment from benchmarks")
	if err != nil {
		return 0, fmt.Errorf("read source benchmarks: %w", err)
	}
	for rows.Next() {
		var id int64
		var comment sql.NullString
		if err := rows.Scan(&id, &comment); err != nil {
			rows.Close()
			return 0, err
		}
		var newID int64
		var arg any
		if comment.Valid {
			arg = comment.String
		}
		if err := d.db.QueryRow("insert into benchmarks (comment) values (?) returning id", arg).Scan(&newID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("copy benchmark %d: %w", id, err)
		}
		benchIDs[id] = newID
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	return d.copyRuns(src, solverIDs, testIDs, benchIDs)
}

// remapNamed copies rows keyed by a unique name column, reusing rows
// that already exist in the destination. extra is the number of value
// columns after id and name.
func (d *DB) remapNamed(src *sql.DB, selectAll, selectByName, insert string, extra int) (map[int64]int64, error) {
	ids := map[int64]int64{}
	rows, err := src.Query(selectAll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		values := make([]any, extra)
		dest := make([]any, 0, extra+2)
		dest = append(dest, &id, &name)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		newID, err := d.namedID(selectByName, insert, name, values...)
		if err != nil {
			return nil, fmt.Errorf("remap %q: %w", name, err)
		}
		ids[id] = newID
	}
	return ids, rows.Err()
}

func (d *DB) copyRuns(src *sql.DB, solverIDs, testIDs, benchIDs map[int64]int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertRun)
	if err != nil {
		return 0, fmt.Errorf("prepare merge insert: %w", err)
	}
	defer stmt.Close()

	rows, err := src.Query(`select runtime, parse_time, satisfiable, memory_usage,
		restarts, conflicts, propagations, conflict_literals,
		number_of_variables, number_of_clauses, target, solver, test, benchmark
		from runs`)
	if err != nil {
		return 0, fmt.Errorf("read source runs: %w", err)
	}
	defer rows.Close()

	var copied int64
	for rows.Next() {
		var runtime sql.NullInt64
		var m TestMetrics
		var satisfiable int8
		var target string
		var solver, test, benchmark int64
		err := rows.Scan(&runtime, &m.ParseTime, &satisfiable, &m.MemoryUsage,
			&m.Restarts, &m.Conflicts, &m.Propagations, &m.ConflictLiterals,
			&m.NumberOfVariables, &m.NumberOfClauses, &target, &solver, &test, &benchmark)
		if err != nil {
			return 0, err
		}
		newSolver, ok := solverIDs[solver]
		if !ok {
			return 0, fmt.Errorf("run for %s references unknown solver %d", target, solver)
		}
		newTest, ok := testIDs[test]
		if !ok {
			return 0, fmt.Errorf("run for %s references unknown test set %d", target, test)
		}
		newBench, ok := benchIDs[benchmark]
		if !ok {
			return 0, fmt.Errorf("run for %s references unknown benchmark %d", target, benchmark)
		}
		var runtimeArg any
		if runtime.Valid {
			runtimeArg = runtime.Int64
		}
		var id int64
		err = stmt.QueryRow(runtimeArg, m.ParseTime, satisfiable, m.MemoryUsage,
			m.Restarts, m.Conflicts, m.Propagations, m.ConflictLiterals,
			m.NumberOfVariables, m.NumberOfClauses, target, newSolver, newTest, newBench).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("copy run for %s: %w", target, err)
		}
		copied++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return copied, nil
}
