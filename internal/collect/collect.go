// Package collect finds the test files a benchmark should run on.
package collect

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const defaultMaxBytes = 50 * 1024 * 1024

func maxBytes() int64 {
	v := os.Getenv("SATMETRICS_MAX_BYTES")
	if v == "" {
		return defaultMaxBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return defaultMaxBytes
	}
	return n
}

// ReadFileLimited reads a whole file, refusing anything larger than
// the byte limit (SATMETRICS_MAX_BYTES overrides the default).
func ReadFileLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	limit := maxBytes()
	lr := &io.LimitedReader{R: f, N: limit + 1}
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("input exceeds max bytes limit (%d); set SATMETRICS_MAX_BYTES to override", limit)
	}
	return b, nil
}

// Files walks every root and returns the regular files whose base name
// matches glob, sorted and deduplicated. An empty glob matches
// everything. Hidden files and directories are skipped. A root that is
// itself a file is included subject to the same glob.
func Files(roots []string, glob string) ([]string, error) {
	if glob != "" {
		// surface bad patterns before walking anything
		if _, err := filepath.Match(glob, "probe"); err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", glob, err)
		}
	}

	seen := map[string]bool{}
	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") && path != root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if glob != "" {
				ok, _ := filepath.Match(glob, name)
				if !ok {
					return nil
				}
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}
