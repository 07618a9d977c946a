package main

import (
	"bytes"
	"strings"
	"testing"

	"satmetrics/internal/version"
)

func runCLI(t *testing.T, args []string, stdin string) (rc int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	rc = run(args, strings.NewReader(stdin), &out, &errb)
	return rc, out.String(), errb.String()
}

const sampleLog = `c --- [ banner ] ---
c parsed 218 clauses in 4.500 seconds
c some more chatter
s SATISFIABLE
`

func TestDefaultCommandExtractsFromStdin(t *testing.T) {
	rc, stdout, stderr := runCLI(t, nil, sampleLog)
	if rc != 0 {
		t.Fatalf("rc = %d, stderr = %s", rc, stderr)
	}
	want := "parse_time: 4500\nclauses: 4500\nsatisfiability: 1\n"
	if stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
}

func TestExtractSubcommand(t *testing.T) {
	rc, stdout, _ := runCLI(t, []string{"extract"}, "s UNSATISFIABLE\n")
	if rc != 0 {
		t.Fatalf("rc = %d", rc)
	}
	if stdout != "satisfiability: -1\n" {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestExtractFixClauses(t *testing.T) {
	rc, stdout, _ := runCLI(t, []string{"extract", "--fix-clauses"}, sampleLog)
	if rc != 0 {
		t.Fatalf("rc = %d", rc)
	}
	if !strings.Contains(stdout, "clauses: 218\n") {
		t.Fatalf("stdout = %q, want real clause count", stdout)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	rc, stdout, _ := runCLI(t, []string{"extract"}, "")
	if rc != 0 {
		t.Fatalf("rc = %d", rc)
	}
	if stdout != "" {
		t.Fatalf("stdout = %q, want empty", stdout)
	}
}

func TestExtractFatalLine(t *testing.T) {
	rc, stdout, stderr := runCLI(t, []string{"extract"}, "s SATISFIABLE\nc parsed nothing useful\n")
	if rc != 1 {
		t.Fatalf("rc = %d, want 1", rc)
	}
	if stdout != "" {
		t.Fatalf("no metrics may be printed on a fatal parse failure, got %q", stdout)
	}
	if !strings.Contains(stderr, "c parsed nothing useful") {
		t.Fatalf("stderr does not identify the line: %q", stderr)
	}
}

func TestVersionFlag(t *testing.T) {
	rc, stdout, _ := runCLI(t, []string{"--version"}, "")
	if rc != 0 {
		t.Fatalf("rc = %d", rc)
	}
	if !strings.Contains(stdout, "satmetrics") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestVersionSubcommand(t *testing.T) {
	rc, stdout, stderr := runCLI(t, []string{"version"}, "")
	if rc != 0 {
		t.Fatalf("rc = %d, stderr = %s", rc, stderr)
	}
	if stdout != version.Current()+"\n" {
		t.Fatalf("stdout = %q, want %q", stdout, version.Current()+"\n")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	rc, _, stderr := runCLI(t, []string{"run"}, "")
	if rc != 1 {
		t.Fatalf("rc = %d, want 1", rc)
	}
	if !strings.Contains(stderr, "config") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestMergeRequiresOutput(t *testing.T) {
	rc, _, stderr := runCLI(t, []string{"merge", "one.db"}, "")
	if rc != 1 {
		t.Fatalf("rc = %d, want 1", rc)
	}
	if !strings.Contains(stderr, "output") {
		t.Fatalf("stderr = %q", stderr)
	}
}
