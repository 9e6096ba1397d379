package module

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Source file extensions: SourceExt is compiled on the fly, CompiledExt
// is deserialized.
const (
	SourceExt   = ".jsr"
	CompiledExt = ".jsc"
)

// Resolver is the reference import callback: it searches a list of
// directories for a module's compiled or source file, preferring
// package directories over plain files and compiled output over source.
// For module a.b.c in search path D it tries, in order:
//
//	D/a/b/c/__package__.jsc
//	D/a/b/c/__package__.jsr
//	D/a/b/c.jsc
//	D/a/b/c.jsr
//
// Builtins lets the standard library short-circuit filesystem search
// for the modules it provides natively.
type Resolver struct {
	Paths    []string
	Builtins func(name string) (*ImportResult, bool)
	// Extra supplies additional directories read on every resolve, so a
	// host can expose a search path guest code mutates at runtime
	// (__core__.importPaths).
	Extra func() []string
}

// NewResolver seeds the search path with dirs plus, unless ignoreEnv is
// set, the platform-delimited JSTARPATH environment variable.
func NewResolver(dirs []string, ignoreEnv bool) *Resolver {
	r := &Resolver{Paths: append([]string(nil), dirs...)}
	if !ignoreEnv {
		if env := os.Getenv("JSTARPATH"); env != "" {
			r.Paths = append(r.Paths, filepath.SplitList(env)...)
		}
	}
	return r
}

// Resolve implements ImportCallback.
func (r *Resolver) Resolve(name string) (*ImportResult, error) {
	if r.Builtins != nil {
		if res, ok := r.Builtins(name); ok {
			return res, nil
		}
	}

	dirs := r.Paths
	if r.Extra != nil {
		dirs = append(append([]string(nil), dirs...), r.Extra()...)
	}

	rel := filepath.Join(strings.Split(name, ".")...)
	for _, dir := range dirs {
		candidates := []string{
			filepath.Join(dir, rel, "__package__"+CompiledExt),
			filepath.Join(dir, rel, "__package__"+SourceExt),
			filepath.Join(dir, rel+CompiledExt),
			filepath.Join(dir, rel+SourceExt),
		}
		for _, path := range candidates {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, errors.Wrapf(err, "reading module %q", name)
			}
			return &ImportResult{
				Source:     data,
				IsBytecode: strings.HasSuffix(path, CompiledExt),
				Path:       path,
			}, nil
		}
	}
	return nil, nil
}
