// Package runner executes a benchmark suite: every collected test file
// is run through every selected solver, the output is ingested into
// metrics and the metrics are stored.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"satmetrics/internal/collect"
	"satmetrics/internal/config"
	"satmetrics/internal/store"
	"satmetrics/pkg/api"
)

// cadical exit codes for solved instances.
const (
	exitSatisfiable   = 10
	exitUnsatisfiable = 20
)

type Runner struct {
	cfg *config.Config
	db  *store.DB
	log *zap.Logger

	// CaptureLimit caps captured solver output per stream; 0 uses the
	// default.
	CaptureLimit int64
}

func New(cfg *config.Config, db *store.DB, log *zap.Logger) *Runner {
	return &Runner{cfg: cfg, db: db, log: log}
}

type job struct {
	test      string
	set       *config.TestSet
	solver    string
	target    string
	iteration int
}

func (r *Runner) buildJobs() ([]job, error) {
	var jobs []job
	for _, name := range r.cfg.TestNames() {
		set := r.cfg.Tests[name]
		files, err := collect.Files(set.Paths, set.Glob)
		if err != nil {
			return nil, fmt.Errorf("test set %s: %w", name, err)
		}
		if len(files) == 0 {
			r.log.Warn("test set matched no files", zap.String("test", name))
		}
		for _, file := range files {
			for _, solver := range set.Solvers {
				for it := 0; it < set.Iterations; it++ {
					jobs = append(jobs, job{test: name, set: set, solver: solver, target: file, iteration: it})
				}
			}
		}
	}
	return jobs, nil
}

// Execute runs all jobs on a bounded worker pool. Individual job
// failures are counted and logged but do not stop the run; only
// context cancellation does.
func (r *Runner) Execute(ctx context.Context) error {
	jobs, err := r.buildJobs()
	if err != nil {
		return err
	}

	threads := r.cfg.Executor.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	r.log.Info("starting execution",
		zap.Int("jobs", len(jobs)),
		zap.Int("threads", threads))

	var processed, failed atomic.Uint64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.runJob(ctx, j); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				r.log.Error("job failed",
					zap.String("test", j.test),
					zap.String("solver", j.solver),
					zap.String("target", j.target),
					zap.Error(err))
			}
			n := processed.Add(1)
			r.log.Info("job done",
				zap.String("test", j.test),
				zap.String("solver", j.solver),
				zap.String("target", j.target),
				zap.Int("iteration", j.iteration),
				zap.Uint64("processed", n),
				zap.Int("total", len(jobs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.log.Info("finished execution",
		zap.Uint64("processed", processed.Load()),
		zap.Uint64("errors", failed.Load()))
	if n := failed.Load(); n > 0 {
		r.log.Warn("errors were encountered during execution, consult the logs", zap.Uint64("errors", n))
	}
	return nil
}

func (r *Runner) runJob(ctx context.Context, j job) error {
	solver, ok := r.cfg.Solvers[j.solver]
	if !ok {
		return fmt.Errorf("solver %q is not defined", j.solver)
	}

	tctx, cancel := context.WithTimeout(ctx, j.set.Timeout.Std())
	defer cancel()

	args := make([]string, 0, len(solver.Params)+len(j.set.Params)+1)
	args = append(args, solver.Params...)
	args = append(args, j.set.Params...)
	args = append(args, j.target)

	cmd := exec.CommandContext(tctx, solver.Exec, args...)
	stdout := NewCaptureBuffer(r.CaptureLimit)
	stderr := NewCaptureBuffer(r.CaptureLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// don't wait on orphaned grandchildren holding the output pipes
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if tctx.Err() == context.DeadlineExceeded {
		r.log.Debug("killed due to timeout",
			zap.String("test", j.test),
			zap.String("solver", j.solver),
			zap.String("target", j.target))
		return r.storeRun(j, store.Failed())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return fmt.Errorf("spawn %s: %w", solver.Exec, runErr)
		}
	}
	exit := cmd.ProcessState.ExitCode()
	if runErr != nil && exit != exitSatisfiable && exit != exitUnsatisfiable {
		r.log.Warn("solver exited abnormally",
			zap.String("solver", j.solver),
			zap.String("target", j.target),
			zap.Int("exit", exit),
			zap.String("stderr", stderr.String()))
	}
	if stdout.Truncated() {
		r.log.Warn("solver output truncated at capture limit",
			zap.String("solver", j.solver),
			zap.String("target", j.target))
	}

	metrics, err := ingest(stdout.String(), exit, elapsed)
	if err != nil {
		return fmt.Errorf("ingest output of %s: %w", j.target, err)
	}
	return r.storeRun(j, metrics)
}

func (r *Runner) storeRun(j job, metrics store.TestMetrics) error {
	id, err := r.db.StoreRun(store.Bundle{
		Metrics: metrics,
		Solver:  j.solver,
		TestSet: j.test,
		Target:  j.target,
	})
	if err != nil {
		return fmt.Errorf("store run for %s: %w", j.target, err)
	}
	r.log.Debug("saved run", zap.Int64("id", id))
	return nil
}

// ingest turns captured solver output into a run record. The verdict
// comes from the log when present, otherwise from the conventional
// solver exit codes 10 and 20.
func ingest(output string, exitCode int, runtimeMS int64) (store.TestMetrics, error) {
	m, err := api.Extract(strings.NewReader(output), api.Options{FixClauses: true})
	if err != nil {
		return store.TestMetrics{}, err
	}
	tm := store.TestMetrics{Runtime: runtimeMS}
	if v, ok := m.Get("parse_time"); ok {
		tm.ParseTime = v
	}
	if v, ok := m.Get("clauses"); ok {
		tm.NumberOfClauses = v
	}
	if v, ok := m.Get("satisfiability"); ok {
		tm.Satisfiable = store.Satisfiability(v)
	} else {
		switch exitCode {
		case exitSatisfiable:
			tm.Satisfiable = store.Satisfiable
		case exitUnsatisfiable:
			tm.Satisfiable = store.Unsatisfiable
		}
	}
	return tm, nil
}
