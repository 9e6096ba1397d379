package stdlib

import (
	"os"

	"github.com/pkg/errors"

	"jstar/internal/module"
	"jstar/value"
)

const ioSource = `
native readFile(path)
native writeFile(path, data)
native appendFile(path, data)
native exists(path)
native remove(path)
`

func ioNatives() *module.NativeRegistry {
	reg := &module.NativeRegistry{}

	reg.Register("readFile", 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		path, ok := asGoString(args[0])
		if !ok {
			return value.NullVal(), typeError("readFile", "string", args[0])
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return value.NullVal(), errors.Wrap(err, "readFile")
		}
		return value.ObjVal(rt.Heap().Intern(string(data))), nil
	})

	reg.Register("writeFile", 2, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return writeImpl("writeFile", args, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	})

	reg.Register("appendFile", 2, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return writeImpl("appendFile", args, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
	})

	reg.Register("exists", 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		path, ok := asGoString(args[0])
		if !ok {
			return value.NullVal(), typeError("exists", "string", args[0])
		}
		_, err := os.Stat(path)
		return value.BoolVal(err == nil), nil
	})

	reg.Register("remove", 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		path, ok := asGoString(args[0])
		if !ok {
			return value.NullVal(), typeError("remove", "string", args[0])
		}
		if err := os.Remove(path); err != nil {
			return value.NullVal(), errors.Wrap(err, "remove")
		}
		return value.NullVal(), nil
	})

	return reg
}

func writeImpl(fn string, args []value.Value, flags int) (value.Value, error) {
	path, ok := asGoString(args[0])
	if !ok {
		return value.NullVal(), typeError(fn, "string", args[0])
	}
	data, ok := asGoString(args[1])
	if !ok {
		return value.NullVal(), typeError(fn, "string", args[1])
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return value.NullVal(), errors.Wrap(err, fn)
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		return value.NullVal(), errors.Wrap(err, fn)
	}
	return value.NullVal(), nil
}
