// Command jstarc is the ahead-of-time compiler: it turns .jsr source
// into .jsc bytecode containers, lists disassembly, and syntax-checks
// files without producing output.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jstar/internal/bytecode"
	"jstar/internal/compiler"
	"jstar/internal/gc"
	"jstar/internal/lexer"
	"jstar/internal/module"
	"jstar/internal/opcode"
	"jstar/internal/parser"
	"jstar/internal/token"
	"jstar/value"
)

type options struct {
	output      string
	recurse     bool
	list        bool
	disassemble bool
	checkOnly   bool
}

func main() {
	opts := &options{}
	exitCode := 0

	root := &cobra.Command{
		Use:   "jstarc [options] <path>",
		Short: "The J* ahead-of-time bytecode compiler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = run(opts, args[0])
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output file or directory")
	f.BoolVarP(&opts.recurse, "recurse", "r", false, "recurse into directories compiling every .jsr")
	f.BoolVarP(&opts.list, "list", "l", false, "print disassembly instead of writing output")
	f.BoolVarP(&opts.disassemble, "disassemble", "d", false, "input is bytecode; disassemble it")
	f.BoolVarP(&opts.checkOnly, "check", "c", false, "syntax-check only, produce no output")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(opts *options, path string) int {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if info.IsDir() {
		if !opts.recurse {
			fmt.Fprintf(os.Stderr, "%s is a directory (use -r to recurse)\n", path)
			return 1
		}
		code := 0
		err := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && strings.HasSuffix(p, module.SourceExt) {
				if c := processFile(opts, p); c != 0 {
					code = c
				}
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return code
	}
	return processFile(opts, path)
}

func processFile(opts *options, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	heap := gc.New(gc.DefaultConfig())

	if opts.disassemble {
		proto, err := bytecode.Deserialize(heap, data, path)
		if err != nil {
			reportError(path, token.Pos{}, err.Error())
			return 1
		}
		printDisassembly(proto)
		return 0
	}

	if opts.checkOnly {
		return syntaxCheck(path, string(data))
	}

	hadError := false
	proto, ok := compiler.CompileSource(heap, path, string(data), func(p string, pos token.Pos, msg string) {
		hadError = true
		reportError(p, pos, msg)
	})
	if !ok || hadError {
		return 1
	}

	if opts.list {
		printDisassembly(proto)
		return 0
	}

	out := outputPath(opts, path)
	if err := os.WriteFile(out, bytecode.Serialize(proto), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("compiled %s -> %s\n", path, out)
	return 0
}

// syntaxCheck tokenizes (exercising the lexer's rewind over a probe
// token) and parses, reporting every diagnostic without generating
// code.
func syntaxCheck(path, src string) int {
	lx := lexer.New(src)
	first := lx.Next()
	lx.Rewind(first)

	hadError := false
	p := parser.New(path, src, func(pth string, pos token.Pos, msg string) {
		hadError = true
		reportError(pth, pos, msg)
	})
	p.Parse()
	if hadError {
		return 1
	}
	fmt.Printf("%s: syntax OK\n", path)
	return 0
}

func outputPath(opts *options, in string) string {
	base := strings.TrimSuffix(filepath.Base(in), module.SourceExt) + module.CompiledExt
	if opts.output == "" {
		return filepath.Join(filepath.Dir(in), base)
	}
	if fi, err := os.Stat(opts.output); err == nil && fi.IsDir() {
		return filepath.Join(opts.output, base)
	}
	return opts.output
}

// printDisassembly lists proto and, recursively, every nested prototype
// in its constant pool.
func printDisassembly(proto *value.FuncProto) {
	constName := func(idx uint16) string {
		if int(idx) >= len(proto.Constants) {
			return "?"
		}
		return proto.Constants[idx].String()
	}
	fmt.Print(opcode.Disassemble(proto.Name, proto.Code, proto.Lines, constName))
	for _, c := range proto.Constants {
		if nested, ok := c.AsObj().(*value.FuncProto); c.IsObj() && ok {
			printDisassembly(nested)
		}
	}
}

func reportError(path string, pos token.Pos, msg string) {
	red := color.New(color.FgRed)
	if pos.Line > 0 {
		red.Fprintf(os.Stderr, "File %s [line:%d, col:%d]:\n%s\n", path, pos.Line, pos.Column, msg)
		return
	}
	red.Fprintf(os.Stderr, "File %s:\n%s\n", path, msg)
}
