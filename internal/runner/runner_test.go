package runner

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"satmetrics/internal/config"
	"satmetrics/internal/store"
	"satmetrics/pkg/api"
)

func TestIngestVerdictFromLog(t *testing.T) {
	out := "c parsed 250 clauses in 0.500 seconds\ns SATISFIABLE\n"
	m, err := ingest(out, 10, 1234)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), m.Runtime)
	assert.Equal(t, store.Satisfiable, m.Satisfiable)
	assert.Equal(t, int64(500), m.ParseTime)
	assert.Equal(t, int64(250), m.NumberOfClauses, "runner ingestion uses the real clause count")
}

func TestIngestVerdictFromExitCode(t *testing.T) {
	m, err := ingest("c no verdict line here\n", 20, 10)
	require.NoError(t, err)
	assert.Equal(t, store.Unsatisfiable, m.Satisfiable)

	m, err = ingest("", 10, 10)
	require.NoError(t, err)
	assert.Equal(t, store.Satisfiable, m.Satisfiable)

	m, err = ingest("", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, store.Unknown, m.Satisfiable)
}

func TestIngestUnparsableOutput(t *testing.T) {
	_, err := ingest("c parsed garbage without numbers\n", 10, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnparsableLine))
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func benchTree(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bench")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"one.cnf", "two.cnf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("p cnf 1 1\n1 0\n"), 0o644))
	}
	return dir
}

func executeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Init(cfg, 0, "runner test"))

	r := New(cfg, db, zap.NewNop())
	require.NoError(t, r.Execute(context.Background()))
	return dbPath
}

func queryRuns(t *testing.T, path string) (count int, satisfiable []int8) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	rows, err := db.Query("select satisfiable from runs order by id")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var s int8
		require.NoError(t, rows.Scan(&s))
		satisfiable = append(satisfiable, s)
		count++
	}
	require.NoError(t, rows.Err())
	return count, satisfiable
}

func TestExecuteStoresRuns(t *testing.T) {
	bench := benchTree(t)
	solver := writeScript(t, t.TempDir(), "fakesolver",
		`echo "c parsed 3 clauses in 0.250 seconds"
echo "s SATISFIABLE"
exit 10
`)
	cfg := &config.Config{
		Executor: config.ExecutorConfig{Threads: 2},
		Solvers: map[string]config.Solver{
			"fake": {Exec: solver, Ingest: "cadical"},
		},
		Tests: map[string]*config.TestSet{
			"bench": {
				Paths:      []string{bench},
				Glob:       "*.cnf",
				Timeout:    config.Duration(5 * time.Second),
				Iterations: 2,
				Solvers:    []string{"fake"},
			},
		},
	}

	dbPath := executeConfig(t, cfg)
	count, satisfiable := queryRuns(t, dbPath)
	assert.Equal(t, 4, count, "2 files x 1 solver x 2 iterations")
	for _, s := range satisfiable {
		assert.Equal(t, int8(1), s)
	}
}

func TestExecuteRecordsTimeouts(t *testing.T) {
	bench := benchTree(t)
	solver := writeScript(t, t.TempDir(), "slowsolver", "sleep 5\n")
	cfg := &config.Config{
		Solvers: map[string]config.Solver{
			"slow": {Exec: solver, Ingest: "cadical"},
		},
		Tests: map[string]*config.TestSet{
			"bench": {
				Paths:      []string{bench},
				Glob:       "one.cnf",
				Timeout:    config.Duration(100 * time.Millisecond),
				Iterations: 1,
				Solvers:    []string{"slow"},
			},
		},
	}

	dbPath := executeConfig(t, cfg)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var runtime sql.NullInt64
	var satisfiable int8
	require.NoError(t, db.QueryRow("select runtime, satisfiable from runs").Scan(&runtime, &satisfiable))
	assert.False(t, runtime.Valid, "timed out runs store NULL runtime")
	assert.Equal(t, int8(0), satisfiable)
}

func TestExecuteContinuesAfterJobErrors(t *testing.T) {
	bench := benchTree(t)
	solver := writeScript(t, t.TempDir(), "badsolver",
		`echo "c parsed garbage without numbers"
exit 10
`)
	cfg := &config.Config{
		Solvers: map[string]config.Solver{
			"bad": {Exec: solver, Ingest: "cadical"},
		},
		Tests: map[string]*config.TestSet{
			"bench": {
				Paths:      []string{bench},
				Glob:       "*.cnf",
				Timeout:    config.Duration(5 * time.Second),
				Iterations: 1,
				Solvers:    []string{"bad"},
			},
		},
	}

	// ingest fails for every file; the run itself still completes
	dbPath := executeConfig(t, cfg)
	count, _ := queryRuns(t, dbPath)
	assert.Zero(t, count, "failed ingests are not stored")
}

func TestBuildJobsMatrix(t *testing.T) {
	bench := benchTree(t)
	cfg := &config.Config{
		Solvers: map[string]config.Solver{"a": {}, "b": {}},
		Tests: map[string]*config.TestSet{
			"bench": {
				Paths:      []string{bench},
				Glob:       "*.cnf",
				Timeout:    config.Duration(time.Second),
				Iterations: 3,
				Solvers:    []string{"a", "b"},
			},
		},
	}
	r := New(cfg, nil, zap.NewNop())
	jobs, err := r.buildJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 12, "2 files x 2 solvers x 3 iterations")
}
