package internal

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const IgnoreFilename = ".imgsimignore"

// IgnoreMatcher applies gitignore-style patterns relative to a library root.
type IgnoreMatcher struct {
	patterns []gitignore.Pattern
	basePath string
}

func NewIgnoreMatcher(fs billy.Filesystem, basePath string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{
		basePath: basePath,
	}

	patterns, err := parseIgnoreFile(fs, fs.Join(basePath, IgnoreFilename))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	m.patterns = patterns
	return m, nil
}

func (m *IgnoreMatcher) Match(path string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	relPath, err := filepath.Rel(m.basePath, path)
	if err != nil || relPath == "." || strings.HasPrefix(relPath, "..") {
		return false
	}

	pathParts := strings.Split(filepath.ToSlash(relPath), "/")

	var excluded bool
	for _, p := range m.patterns {
		switch p.Match(pathParts, isDir) {
		case gitignore.Exclude:
			excluded = true
		case gitignore.Include:
			excluded = false
		}
	}
	return excluded
}

func parseIgnoreFile(fs billy.Filesystem, path string) ([]gitignore.Pattern, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}
