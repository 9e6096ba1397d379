package stdlib

import (
	"regexp"

	"github.com/pkg/errors"

	"jstar/internal/module"
	"jstar/value"
)

const reSource = `
native compile(pattern)
native match(pattern, s)
native find(pattern, s)
native findAll(pattern, s)
native replace(pattern, s, repl)
native split(pattern, s)
`

// compiledTag marks the Userdata a compiled pattern lives in; match and
// friends accept either a pattern string or one of these.
const compiledTag = "re.compiled"

func reNatives() *module.NativeRegistry {
	reg := &module.NativeRegistry{}

	reg.Register("compile", 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		pattern, ok := asGoString(args[0])
		if !ok {
			return value.NullVal(), typeError("compile", "string", args[0])
		}
		prog, err := regexp.Compile(pattern)
		if err != nil {
			return value.NullVal(), errors.Wrap(err, "compile")
		}
		ud := rt.Heap().NewUserdata(compiledTag, 0)
		ud.Host = prog
		ud.Finalize = func(u *value.Userdata) { u.Host = nil }
		return value.ObjVal(ud), nil
	})

	reg.Register("match", 2, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		prog, s, err := patternAndSubject("match", args)
		if err != nil {
			return value.NullVal(), err
		}
		return value.BoolVal(prog.MatchString(s)), nil
	})

	reg.Register("find", 2, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		prog, s, err := patternAndSubject("find", args)
		if err != nil {
			return value.NullVal(), err
		}
		m := prog.FindString(s)
		if m == "" && !prog.MatchString(s) {
			return value.NullVal(), nil
		}
		return value.ObjVal(rt.Heap().Intern(m)), nil
	})

	reg.Register("findAll", 2, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		prog, s, err := patternAndSubject("findAll", args)
		if err != nil {
			return value.NullVal(), err
		}
		var elems []value.Value
		for _, m := range prog.FindAllString(s, -1) {
			elems = append(elems, value.ObjVal(rt.Heap().Intern(m)))
		}
		return value.ObjVal(rt.Heap().NewList(elems)), nil
	})

	reg.Register("replace", 3, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		prog, s, err := patternAndSubject("replace", args)
		if err != nil {
			return value.NullVal(), err
		}
		repl, ok := asGoString(args[2])
		if !ok {
			return value.NullVal(), typeError("replace", "string", args[2])
		}
		return value.ObjVal(rt.Heap().Intern(prog.ReplaceAllString(s, repl))), nil
	})

	reg.Register("split", 2, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		prog, s, err := patternAndSubject("split", args)
		if err != nil {
			return value.NullVal(), err
		}
		var elems []value.Value
		for _, part := range prog.Split(s, -1) {
			elems = append(elems, value.ObjVal(rt.Heap().Intern(part)))
		}
		return value.ObjVal(rt.Heap().NewList(elems)), nil
	})

	return reg
}

// patternAndSubject resolves args[0] (a pattern string or a compiled
// userdata) and args[1] (the subject string).
func patternAndSubject(fn string, args []value.Value) (*regexp.Regexp, string, error) {
	s, ok := asGoString(args[1])
	if !ok {
		return nil, "", typeError(fn, "string", args[1])
	}
	if ud, isUD := args[0].AsObj().(*value.Userdata); args[0].IsObj() && isUD && ud.Tag == compiledTag {
		prog, _ := ud.Host.(*regexp.Regexp)
		if prog == nil {
			return nil, "", errors.New(fn + ": compiled pattern already finalized")
		}
		return prog, s, nil
	}
	pattern, ok := asGoString(args[0])
	if !ok {
		return nil, "", typeError(fn, "string or compiled pattern", args[0])
	}
	prog, err := regexp.Compile(pattern)
	if err != nil {
		return nil, "", errors.Wrap(err, fn)
	}
	return prog, s, nil
}
