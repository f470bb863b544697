package internal

import (
	"os"
	"path/filepath"
)

const DataDirName = ".imgsim"

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeLibrary ScopeType = "library"
)

type Scope struct {
	Type     ScopeType
	Path     string // library root holding the images
	DataPath string // .imgsim directory path
}

func (s Scope) ConfigPath() string {
	return filepath.Join(s.DataPath, "config.yaml")
}

func (s Scope) DatabasePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.DataPath, name)
}

type ScopeResolver struct {
	homeDir string
	workDir string
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home}
}

func (r *ScopeResolver) Global() Scope {
	return Scope{
		Type:     ScopeGlobal,
		Path:     r.homeDir,
		DataPath: filepath.Join(r.homeDir, DataDirName),
	}
}

// Library finds the nearest ancestor of the working directory holding a .imgsim directory.
func (r *ScopeResolver) Library() (Scope, bool) {
	cwd := r.workDir
	if cwd == "" {
		var err error
		if cwd, err = os.Getwd(); err != nil {
			return Scope{}, false
		}
	}
	return findLibraryScope(cwd)
}

func findLibraryScope(dir string) (Scope, bool) {
	for {
		dataPath := filepath.Join(dir, DataDirName)
		info, err := os.Stat(dataPath)
		if err == nil && info.IsDir() {
			return Scope{Type: ScopeLibrary, Path: dir, DataPath: dataPath}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

func (r *ScopeResolver) Resolve(explicit string) Scope {
	if explicit == string(ScopeGlobal) {
		return r.Global()
	}
	if scope, ok := r.Library(); ok {
		return scope
	}
	return r.Global()
}
