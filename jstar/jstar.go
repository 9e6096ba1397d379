// Package jstar is the embedding API: the stack-oriented surface a
// host program uses to drive a VM, evaluate source or compiled
// bytecode, exchange values, call guest code, and register native
// functions. It is the only package (together with value) an embedder
// imports.
package jstar

import (
	"io"

	"github.com/pkg/errors"

	"jstar/internal/bytecode"
	"jstar/internal/compiler"
	"jstar/internal/module"
	"jstar/internal/parser"
	"jstar/internal/token"
	"jstar/internal/vm"
	"jstar/value"
)

// Version is reported by `jstar -v` and the REPL banner.
const Version = "0.9.0"

// Result is the outcome code of an evaluate/compile operation; the
// reference CLI uses its numeric value as the process exit code.
type Result int

const (
	Success Result = iota
	SyntaxErr
	CompileErr
	RuntimeErr
	DeserializeErr
	VersionErr
)

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case SyntaxErr:
		return "SYNTAX_ERR"
	case CompileErr:
		return "COMPILE_ERR"
	case RuntimeErr:
		return "RUNTIME_ERR"
	case DeserializeErr:
		return "DESERIALIZE_ERR"
	case VersionErr:
		return "VERSION_ERR"
	}
	return "UNKNOWN"
}

// ErrorFunc receives syntax/compile diagnostics: path, 1-based line and
// column, and the message.
type ErrorFunc func(path string, line, col int, msg string)

// Conf configures a new VM.
type Conf struct {
	StackSize          int
	InitialGCThreshold uintptr
	HeapGrowRate       float64
	GCStress           bool
	OnError            ErrorFunc
	Import             module.ImportCallback
	Stdout             io.Writer
	HostData           any
}

// VM is one embeddable interpreter instance. It is not safe for
// concurrent use; distinct VMs are fully independent.
type VM struct {
	rt      *vm.VM
	onError ErrorFunc
}

// NewVM creates a VM and its __core__ module.
func NewVM(conf *Conf) *VM {
	if conf == nil {
		conf = &Conf{}
	}
	j := &VM{onError: conf.OnError}
	j.rt = vm.New(vm.Config{
		StackSize:          conf.StackSize,
		InitialGCThreshold: conf.InitialGCThreshold,
		HeapGrowRate:       conf.HeapGrowRate,
		GCStress:           conf.GCStress,
		OnError:            j.reportError,
		Import:             conf.Import,
		Stdout:             conf.Stdout,
		HostData:           conf.HostData,
	})
	j.rt.SetDeserializer(func(data []byte, path string) (*value.FuncProto, error) {
		return bytecode.Deserialize(j.rt.Heap(), data, path)
	})
	return j
}

// Free releases everything the VM owns, running pending userdata
// finalizers. The VM must not be used afterwards.
func (j *VM) Free() { j.rt.Free() }

// Runtime exposes the underlying interpreter for advanced embedders
// (the REPL uses it for the module registry).
func (j *VM) Runtime() *vm.VM { return j.rt }

func (j *VM) reportError(path string, pos token.Pos, msg string) {
	if j.onError != nil {
		j.onError(path, pos.Line, pos.Column, msg)
	}
}

// Interrupt requests an eval break: signal-handler safe, a single
// atomic store. The running code observes an InterruptedException at
// the next backward jump or call.
func (j *VM) Interrupt() { j.rt.Interrupt() }

// EvalString compiles and runs src in the named module (creating it if
// needed). On RuntimeErr the exception value is pushed so the host can
// inspect it; GetStacktrace formats it.
func (j *VM) EvalString(moduleName, path, src string) Result {
	proto, res := j.compile(path, src)
	if res != Success {
		return res
	}
	return j.evalProto(moduleName, proto)
}

// EvalBytecode runs a serialized function in the named module.
func (j *VM) EvalBytecode(moduleName, path string, code []byte) Result {
	proto, err := bytecode.Deserialize(j.rt.Heap(), code, path)
	if err != nil {
		j.reportError(path, token.Pos{}, err.Error())
		if errors.Is(err, bytecode.ErrVersion) {
			return VersionErr
		}
		return DeserializeErr
	}
	return j.evalProto(moduleName, proto)
}

// CompileString compiles src to the serialized bytecode container
// without executing it.
func (j *VM) CompileString(path, src string) ([]byte, Result) {
	proto, res := j.compile(path, src)
	if res != Success {
		return nil, res
	}
	return bytecode.Serialize(proto), Success
}

// compile distinguishes syntax errors (parser) from compile errors
// (semantic rules) so the two result codes stay separate.
func (j *VM) compile(path, src string) (*value.FuncProto, Result) {
	syntaxErr := false
	p := parser.New(path, src, func(pth string, pos token.Pos, msg string) {
		syntaxErr = true
		j.reportError(pth, pos, msg)
	})
	prog := p.Parse()
	if syntaxErr {
		return nil, SyntaxErr
	}

	compileErr := false
	c := compiler.New(j.rt.Heap(), path, func(pth string, pos token.Pos, msg string) {
		compileErr = true
		j.reportError(pth, pos, msg)
	})
	proto := c.CompileModule(path, prog)
	if compileErr {
		return nil, CompileErr
	}
	return proto, Success
}

func (j *VM) evalProto(moduleName string, proto *value.FuncProto) Result {
	if err := j.rt.EvalProto(moduleName, proto); err != nil {
		if uncaught, ok := err.(*vm.UncaughtError); ok {
			j.rt.EnsureStack(1)
			j.rt.Push(uncaught.Val)
		}
		return RuntimeErr
	}
	return Success
}

// GetStacktrace formats the exception left by the most recent
// RuntimeErr result.
func (j *VM) GetStacktrace() string {
	exc := j.rt.LastException()
	if exc.IsNull() {
		return ""
	}
	return j.rt.FormatException(exc)
}
