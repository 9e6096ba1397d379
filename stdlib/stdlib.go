// Package stdlib provides the built-in native modules (sys, io, math,
// re, debug) as import results: a small J* source declaring the
// module's surface plus a native registry implementing it. The file
// resolver consults Lookup before touching the filesystem, so these
// modules shadow same-named files on the search path.
package stdlib

import "jstar/internal/module"

type builtin struct {
	source  string
	natives func() *module.NativeRegistry
}

var builtins = map[string]builtin{
	"sys":   {source: sysSource, natives: sysNatives},
	"io":    {source: ioSource, natives: ioNatives},
	"math":  {source: mathSource, natives: mathNatives},
	"re":    {source: reSource, natives: reNatives},
	"debug": {source: debugSource, natives: debugNatives},
}

// Lookup implements the Resolver.Builtins hook.
func Lookup(name string) (*module.ImportResult, bool) {
	b, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return &module.ImportResult{
		Source:  []byte(b.source),
		Path:    "<builtin " + name + ">",
		Natives: b.natives(),
	}, true
}
