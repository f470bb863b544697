package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopePaths(t *testing.T) {
	scope := Scope{DataPath: "/photos/.imgsim"}

	assert.Equal(t, "/photos/.imgsim/config.yaml", scope.ConfigPath())
	assert.Equal(t, "/photos/.imgsim/images.db", scope.DatabasePath("images.db"))
	assert.Equal(t, "/var/db/images.db", scope.DatabasePath("/var/db/images.db"))
}

func TestScopeResolverGlobal(t *testing.T) {
	resolver := &ScopeResolver{homeDir: "/home/ada"}
	scope := resolver.Global()

	assert.Equal(t, ScopeGlobal, scope.Type)
	assert.Equal(t, "/home/ada", scope.Path)
	assert.Equal(t, filepath.Join("/home/ada", DataDirName), scope.DataPath)
}

func TestScopeResolverLibraryNotFound(t *testing.T) {
	resolver := &ScopeResolver{homeDir: t.TempDir(), workDir: t.TempDir()}

	_, found := resolver.Library()
	assert.False(t, found)
	assert.Equal(t, ScopeGlobal, resolver.Resolve("").Type)
}

func TestScopeResolverLibraryInParent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, DataDirName), 0755))
	sub := filepath.Join(root, "2024", "summer")
	require.NoError(t, os.MkdirAll(sub, 0755))

	resolver := &ScopeResolver{homeDir: t.TempDir(), workDir: sub}
	scope, found := resolver.Library()
	require.True(t, found)

	assert.Equal(t, ScopeLibrary, scope.Type)
	assert.Equal(t, root, scope.Path)
	assert.Equal(t, filepath.Join(root, DataDirName), scope.DataPath)

	assert.Equal(t, ScopeLibrary, resolver.Resolve("").Type)
	assert.Equal(t, ScopeGlobal, resolver.Resolve("global").Type)
}

func TestScopeResolverIgnoresDataFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DataDirName), []byte("not a dir"), 0644))

	resolver := &ScopeResolver{workDir: root}
	_, found := resolver.Library()
	assert.False(t, found)
}
