package api

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	parsedPrefix  = "c parsed "
	satLine       = "s SATISFIABLE"
	unsatLine     = "s UNSATISFIABLE"
	maxLineLength = 1 << 20
)

// clausesRe captures the clause count and the parse time (in seconds)
// from a cadical "c parsed ..." line.
var clausesRe = regexp.MustCompile(`(?P<clauses>[0-9]+)[^0-9]+(?P<parse_time>[0-9]+\.[0-9]+)`)

// ErrUnparsableLine is returned when a "c parsed" line does not contain
// the expected clause count and parse time. It aborts the whole run.
var ErrUnparsableLine = errors.New(`unparsable "c parsed" line`)

type Options struct {
	// FixClauses reports the clauses metric from the clause-count
	// capture. The default stays bug-compatible with the legacy
	// extractor script, which derives clauses from the parse-time
	// capture instead.
	FixClauses bool
}

// Extractor classifies solver output lines and accumulates metrics.
// Unrecognized lines are skipped.
type Extractor struct {
	opt     Options
	metrics *Metrics
}

func NewExtractor(opt Options) *Extractor {
	return &Extractor{opt: opt, metrics: NewMetrics()}
}

func (e *Extractor) Metrics() *Metrics {
	return e.metrics
}

// Line classifies a single line of solver output. Trailing line
// terminators are trimmed before comparison, so callers may pass lines
// with or without their newline.
func (e *Extractor) Line(line string) error {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case strings.HasPrefix(line, parsedPrefix):
		return e.parsed(line)
	case line == unsatLine:
		e.metrics.Set("satisfiability", -1)
	case line == satLine:
		e.metrics.Set("satisfiability", 1)
	}
	return nil
}

func (e *Extractor) parsed(line string) error {
	m := clausesRe.FindStringSubmatch(line)
	if m == nil {
		return fmt.Errorf("%w: %q", ErrUnparsableLine, line)
	}
	secs, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnparsableLine, line, err)
	}
	ms := int64(secs * 1000)
	e.metrics.Set("parse_time", ms)
	if e.opt.FixClauses {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrUnparsableLine, line, err)
		}
		e.metrics.Set("clauses", n)
	} else {
		// bug-compatible: the clauses value is computed from the
		// parse-time capture, not the clauses capture
		e.metrics.Set("clauses", ms)
	}
	return nil
}

// Extract runs a single linear scan over r and returns the accumulated
// metrics. On the first unparsable "c parsed" line it returns an error
// and no metrics.
func Extract(r io.Reader, opt Options) (*Metrics, error) {
	e := NewExtractor(opt)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for sc.Scan() {
		if err := e.Line(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return e.metrics, nil
}
