// Package config loads and validates the benchmark suite description:
// which solvers to run, which test sets to run them on, how to ingest
// their output and where to store the resulting metrics.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"satmetrics/internal/collect"
)

type Config struct {
	Executor ExecutorConfig      `yaml:"executor"`
	Database DatabaseConfig      `yaml:"database"`
	Solvers  map[string]Solver   `yaml:"solvers"`
	Tests    map[string]*TestSet `yaml:"tests"`
	Ingest   map[string]Ingestor `yaml:"ingest"`
}

type ExecutorConfig struct {
	// Threads bounds the worker pool; 0 falls back to GOMAXPROCS.
	Threads int `yaml:"threads"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Solver is a generic executable with fixed parameters.
type Solver struct {
	Exec   string   `yaml:"exec"`
	Params []string `yaml:"params"`
	Ingest string   `yaml:"ingest"`
}

// TestSet is a set of test files collected from the configured paths,
// filtered by Glob against the base name.
type TestSet struct {
	Path       string   `yaml:"path"`
	Paths      []string `yaml:"paths"`
	Glob       string   `yaml:"glob"`
	Timeout    Duration `yaml:"timeout"`
	Iterations int      `yaml:"iterations"`
	Solvers    []string `yaml:"solvers"`
	Params     []string `yaml:"params"`
}

type Ingestor struct {
	Name string `yaml:"name"`
}

// Duration accepts either a Go duration string ("10s") or a bare
// integer number of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("timeout must be a duration string or milliseconds: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads a YAML config. Unknown fields are rejected so typos fail
// loudly instead of silently running an empty benchmark.
func Load(path string) (*Config, error) {
	raw, err := collect.ReadFileLimited(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// FilterSolvers keeps only the named solvers. An empty list keeps all.
func (c *Config) FilterSolvers(names []string) {
	if len(names) == 0 {
		return
	}
	keep := map[string]bool{}
	for _, n := range names {
		keep[n] = true
	}
	for name := range c.Solvers {
		if !keep[name] {
			delete(c.Solvers, name)
		}
	}
}

// FilterTests keeps only the named test sets. An empty list keeps all.
func (c *Config) FilterTests(names []string) {
	if len(names) == 0 {
		return
	}
	keep := map[string]bool{}
	for _, n := range names {
		keep[n] = true
	}
	for name := range c.Tests {
		if !keep[name] {
			delete(c.Tests, name)
		}
	}
}

// SolverNames returns the solver names in sorted order.
func (c *Config) SolverNames() []string {
	names := make([]string, 0, len(c.Solvers))
	for name := range c.Solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TestNames returns the test set names in sorted order.
func (c *Config) TestNames() []string {
	names := make([]string, 0, len(c.Tests))
	for name := range c.Tests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preflight validates the semantic structure of the config, collecting
// every problem instead of stopping at the first one. It also applies
// defaults: path is merged into paths, iterations defaults to 1 and an
// empty test solver list falls back to all solvers.
func (c *Config) Preflight(logger *zap.Logger) error {
	var errs []error

	if len(c.Solvers) == 0 {
		errs = append(errs, errors.New("no solver was defined, unable to build a queue of tests"))
	}

	for _, name := range c.SolverNames() {
		solver := c.Solvers[name]
		if _, ok := c.Ingest[solver.Ingest]; !ok {
			errs = append(errs, fmt.Errorf("solvers.%s.ingest %q is not defined in ingest", name, solver.Ingest))
		}
		if err := checkExecutable(solver.Exec); err != nil {
			errs = append(errs, fmt.Errorf("solvers.%s.exec: %w", name, err))
		}
	}

	for _, name := range c.TestNames() {
		set := c.Tests[name]
		if set.Path != "" {
			if len(set.Paths) > 0 {
				logger.Warn("test set defines both path and paths; path is treated as a member of paths",
					zap.String("test", name))
			}
			set.Paths = append(set.Paths, set.Path)
			set.Path = ""
		}
		if len(set.Paths) == 0 {
			errs = append(errs, fmt.Errorf("tests.%s contains neither path nor paths, a test cannot be a no-op", name))
		}
		if set.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("tests.%s.timeout must be positive", name))
		}
		if set.Iterations <= 0 {
			set.Iterations = 1
		}
		if len(set.Solvers) == 0 {
			logger.Warn("test set selects no solvers, falling back to all solvers",
				zap.String("test", name))
			set.Solvers = c.SolverNames()
		} else {
			for _, solver := range set.Solvers {
				if _, ok := c.Solvers[solver]; !ok {
					errs = append(errs, fmt.Errorf("tests.%s references solver %q but it is not defined", name, solver))
				}
			}
		}
	}

	if c.Database.Path != "" {
		if info, err := os.Stat(c.Database.Path); err == nil && !info.Mode().IsRegular() {
			errs = append(errs, fmt.Errorf("database.path %s must be a regular file or absent", c.Database.Path))
		}
	}

	return errors.Join(errs...)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s does not exist", path)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
