package stdlib

import (
	"os"
	"runtime"
	"time"

	"jstar/internal/module"
	"jstar/value"
)

const sysSource = `
native exit(code)
native time()
native clock()
native getenv(name)
native platform()

// args is populated by the host before __main__ runs.
var args = []
`

func sysNatives() *module.NativeRegistry {
	reg := &module.NativeRegistry{}

	reg.Register("exit", 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		code := 0
		if args[0].IsNumber() {
			code = int(args[0].AsNumber())
		}
		os.Exit(code)
		return value.NullVal(), nil
	})

	reg.Register("time", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return value.NumberVal(float64(time.Now().UnixNano()) / 1e9), nil
	})

	reg.Register("clock", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return value.NumberVal(float64(time.Now().UnixNano()) / 1e9), nil
	})

	reg.Register("getenv", 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		name, ok := asGoString(args[0])
		if !ok {
			return value.NullVal(), typeError("getenv", "string", args[0])
		}
		v, found := os.LookupEnv(name)
		if !found {
			return value.NullVal(), nil
		}
		return value.ObjVal(rt.Heap().Intern(v)), nil
	})

	reg.Register("platform", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return value.ObjVal(rt.Heap().Intern(runtime.GOOS)), nil
	})

	return reg
}
