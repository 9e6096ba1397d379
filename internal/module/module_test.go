package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jstar/value"
)

func TestRegistry_PutGetRemove(t *testing.T) {
	r := NewRegistry()
	m := value.NewModule("foo", "foo.jsr")
	r.Put("foo", m)

	got, ok := r.Get("foo")
	require.True(t, ok)
	assert.Same(t, m, got)

	r.Remove("foo")
	_, ok = r.Get("foo")
	assert.False(t, ok)
}

func TestResolver_PrefersPackageThenCompiled(t *testing.T) {
	dir := t.TempDir()

	pkgDir := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "__package__.jsr"), []byte("var x = 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b.jsr"), []byte("var y = 2"), 0o644))

	r := NewResolver([]string{dir}, true)
	res, err := r.Resolve("a.b")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, filepath.Join(pkgDir, "__package__.jsr"), res.Path)
	assert.False(t, res.IsBytecode)
}

func TestResolver_FindsCompiledFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.jsc"), []byte{0xde, 0xad}, 0o644))

	r := NewResolver([]string{dir}, true)
	res, err := r.Resolve("m")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.IsBytecode)
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver([]string{t.TempDir()}, true)
	res, err := r.Resolve("no.such.module")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestResolver_ReadsJstarPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "envmod.jsr"), []byte("var z = 3"), 0o644))
	t.Setenv("JSTARPATH", dir)

	r := NewResolver(nil, false)
	res, err := r.Resolve("envmod")
	require.NoError(t, err)
	require.NotNil(t, res)

	ignored := NewResolver(nil, true)
	res, err = ignored.Resolve("envmod")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestResolver_BuiltinsShortCircuit(t *testing.T) {
	r := NewResolver(nil, true)
	r.Builtins = func(name string) (*ImportResult, bool) {
		if name == "math" {
			return &ImportResult{Path: "<builtin math>"}, true
		}
		return nil, false
	}

	res, err := r.Resolve("math")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "<builtin math>", res.Path)
}
