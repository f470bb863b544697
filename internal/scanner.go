package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp"}

func IsSupportedImage(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// Scanner walks a directory tree and collects image files, honouring
// .imgsimignore at the root and skipping the library data directory.
type Scanner struct {
	fs   billy.Filesystem
	host bool
}

// NewScanner walks fs. A nil fs means the host filesystem.
func NewScanner(fs billy.Filesystem) *Scanner {
	if fs == nil {
		return &Scanner{fs: osfs.New("/"), host: true}
	}
	return &Scanner{fs: fs}
}

func (s *Scanner) Scan(ctx context.Context, root string) ([]string, error) {
	if s.host {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrIO, root, err)
		}
		root = abs
	}

	info, err := s.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrIO, root)
	}

	ignore, err := NewIgnoreMatcher(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFilename, err)
	}

	var paths []string
	err = util.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrIO, path, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if info.IsDir() {
			if path != root && (info.Name() == DataDirName || ignore.Match(path, true)) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode().IsRegular() && IsSupportedImage(path) && !ignore.Match(path, false) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(paths)
	return paths, nil
}
