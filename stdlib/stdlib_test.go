package stdlib

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jstar/internal/module"
	"jstar/internal/vm"
)

func newVM(t *testing.T) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	v := vm.New(vm.Config{
		Stdout: &out,
		Import: func(name string) (*module.ImportResult, error) {
			res, ok := Lookup(name)
			if !ok {
				return nil, nil
			}
			return res, nil
		},
	})
	return v, &out
}

func TestLookup_KnownAndUnknown(t *testing.T) {
	res, ok := Lookup("math")
	require.True(t, ok)
	assert.NotNil(t, res.Natives)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestMathModule(t *testing.T) {
	v, out := newVM(t)
	err := v.EvalSource(module.MainModule, "<t>", `
		import math
		print(math.sqrt(16))
		print(math.max(2, 7))
		print(math.floor(3.9))
	`)
	require.NoError(t, err)
	assert.Equal(t, "4\n7\n3\n", out.String())
}

func TestReModule(t *testing.T) {
	v, out := newVM(t)
	err := v.EvalSource(module.MainModule, "<t>", `
		import re
		print(re.match("^a+$", "aaa"))
		print(re.find("[0-9]+", "abc123def"))
		print(re.replace("l+", "hello", "L"))
		var prog = re.compile("^x")
		print(re.match(prog, "xyz"))
	`)
	require.NoError(t, err)
	assert.Equal(t, "true\n123\nheLo\ntrue\n", out.String())
}

func TestSysModule(t *testing.T) {
	t.Setenv("JSTAR_TEST_ENV", "yes")
	v, out := newVM(t)
	err := v.EvalSource(module.MainModule, "<t>", `
		import sys
		print(sys.getenv("JSTAR_TEST_ENV"))
		print(sys.time() > 0)
	`)
	require.NoError(t, err)
	assert.Equal(t, "yes\ntrue\n", out.String())
}

func TestIoModule(t *testing.T) {
	dir := t.TempDir()
	v, out := newVM(t)
	err := v.EvalSource(module.MainModule, "<t>", `
		import io
		io.writeFile("`+dir+`/f.txt", "content")
		print(io.exists("`+dir+`/f.txt"))
		print(io.readFile("`+dir+`/f.txt"))
		io.remove("`+dir+`/f.txt")
		print(io.exists("`+dir+`/f.txt"))
	`)
	require.NoError(t, err)
	assert.Equal(t, "true\ncontent\nfalse\n", out.String())
}

func TestDebugModule(t *testing.T) {
	v, out := newVM(t)
	err := v.EvalSource(module.MainModule, "<t>", `
		import debug
		debug.gc()
		var s = debug.stats()
		print(s["collections"] >= 1)
		print(debug.allocated() > 0)
	`)
	require.NoError(t, err)
	assert.Equal(t, "true\ntrue\n", out.String())
}
