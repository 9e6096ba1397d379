// Command jstar is the reference embedding: it runs a script, a -e
// statement, or the interactive REPL on top of the embedding API, with
// module resolution over the script directory, the working directory,
// and JSTARPATH.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"jstar/internal/module"
	"jstar/jstar"
	"jstar/repl"
	"jstar/stdlib"
	"jstar/value"
)

type options struct {
	version     bool
	skipVersion bool
	exec        string
	interactive bool
	ignoreEnv   bool
	noColors    bool
	noHints     bool
}

func main() {
	opts := &options{}
	exitCode := 0

	root := &cobra.Command{
		Use:   "jstar [script [args...]]",
		Short: "The J* interpreter and REPL",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = run(opts, args)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.Flags()
	f.BoolVarP(&opts.version, "version", "v", false, "print version and exit")
	f.BoolVarP(&opts.skipVersion, "skip-version", "V", false, "suppress the REPL header banner")
	f.StringVarP(&opts.exec, "exec", "e", "", "execute the given statement")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "enter the REPL after -e and/or the script")
	f.BoolVarP(&opts.ignoreEnv, "ignore-env", "E", false, "ignore the JSTARPATH environment variable")
	f.BoolVarP(&opts.noColors, "no-colors", "C", false, "disable terminal colors")
	f.BoolVarP(&opts.noHints, "no-hints", "H", false, "disable REPL hints")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(opts *options, args []string) int {
	if opts.version {
		fmt.Println("J* version " + jstar.Version)
		return 0
	}

	script := ""
	var scriptArgs []string
	if len(args) > 0 {
		script = args[0]
		scriptArgs = args[1:]
	}

	searchDirs := []string{"."}
	if script != "" {
		searchDirs = []string{filepath.Dir(script), "."}
	}
	resolver := module.NewResolver(searchDirs, opts.ignoreEnv)
	resolver.Builtins = stdlib.Lookup

	vm := jstar.NewVM(&jstar.Conf{
		Import: resolver.Resolve,
		OnError: func(path string, line, col int, msg string) {
			repl.ReportError(os.Stderr, opts.noColors, path, line, col, msg)
		},
	})
	defer vm.Free()
	wireImportPaths(vm, resolver)
	installInterruptHandler(vm)
	setScriptArgs(vm, scriptArgs)

	res := jstar.Success
	if opts.exec != "" {
		res = vm.EvalString("__main__", "<exec>", opts.exec)
		reportRuntime(vm, opts, res)
	}

	if script != "" && res == jstar.Success {
		res = runScript(vm, opts, script)
	}

	if opts.interactive || (script == "" && opts.exec == "") {
		r := repl.New(vm)
		r.ShowBanner = !opts.skipVersion
		r.NoColors = opts.noColors
		r.NoHints = opts.noHints
		if err := r.Start(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	return int(res)
}

func runScript(vm *jstar.VM, opts *options, script string) jstar.Result {
	data, err := os.ReadFile(script)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return jstar.RuntimeErr
	}
	var res jstar.Result
	if strings.HasSuffix(script, module.CompiledExt) {
		res = vm.EvalBytecode("__main__", script, data)
	} else {
		res = vm.EvalString("__main__", script, string(data))
	}
	reportRuntime(vm, opts, res)
	return res
}

func reportRuntime(vm *jstar.VM, opts *options, res jstar.Result) {
	if res == jstar.RuntimeErr {
		repl.PrintRuntimeError(os.Stderr, opts.noColors, vm.GetStacktrace())
	}
}

// installInterruptHandler wires SIGINT to the eval-break flag: the
// running program observes an InterruptedException it may catch; a
// second signal kills the process the usual way.
func installInterruptHandler(vm *jstar.VM) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		for range ch {
			vm.Interrupt()
		}
	}()
}

// wireImportPaths seeds the guest-visible __core__.importPaths list
// with the resolver's directories and points the resolver back at the
// live list, so guest code appending to importPaths extends the search
// path for later imports.
func wireImportPaths(vm *jstar.VM, resolver *module.Resolver) {
	paths := vm.Runtime().ImportPaths()
	for _, d := range resolver.Paths {
		paths.Elems = append(paths.Elems, vm.Runtime().Intern(d))
	}
	resolver.Paths = nil
	resolver.Extra = func() []string {
		dirs := make([]string, 0, len(paths.Elems))
		for _, v := range paths.Elems {
			if s, ok := v.AsObj().(*value.String); v.IsObj() && ok {
				dirs = append(dirs, s.Bytes)
			}
		}
		return dirs
	}
}

// setScriptArgs publishes the script's argument vector as sys.args.
func setScriptArgs(vm *jstar.VM, args []string) {
	if len(args) == 0 {
		return
	}
	if !vm.GetGlobal("sys", "args") {
		// sys not imported yet: import it eagerly so args are visible the
		// moment guest code does `import sys`.
		if vm.EvalString("__main__", "<argv>", "import sys") != jstar.Success {
			return
		}
		if !vm.GetGlobal("sys", "args") {
			return
		}
	}
	for _, a := range args {
		vm.PushString(a)
		vm.ListAppend(-2)
	}
	vm.Pop()
}
