// Package repl implements the interactive read-eval-print loop for the
// jstar executable: readline-backed line editing with history, colored
// feedback, and continuation prompts so multi-line constructs
// (functions, classes, loops) can be typed naturally.
package repl

import (
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"jstar/internal/lexer"
	"jstar/internal/parser"
	"jstar/internal/token"
	"jstar/jstar"
)

var (
	blueColor   = color.New(color.FgBlue)
	yellowColor = color.New(color.FgYellow)
	redColor    = color.New(color.FgRed)
	greenColor  = color.New(color.FgGreen)
	cyanColor   = color.New(color.FgCyan)
)

const banner = `       _     _
      (_)___| |_ __ _ _ __
      | / __| __/ _` + "`" + ` | '__|
      | \__ \ || (_| | |
     _/ |___/\__\__,_|_|
    |__/`

// Repl drives one interactive session against a shared VM instance.
type Repl struct {
	VM         *jstar.VM
	ShowBanner bool
	NoColors   bool
	NoHints    bool
	Prompt     string
	ContPrompt string
}

func New(vm *jstar.VM) *Repl {
	return &Repl{
		VM:         vm,
		ShowBanner: true,
		Prompt:     "J*>> ",
		ContPrompt: ".... ",
	}
}

// PrintBanner writes the startup header: logo, version, and the hint
// lines (suppressed by NoHints).
func (r *Repl) PrintBanner(w io.Writer) {
	if r.NoColors {
		color.NoColor = true
	}
	line := strings.Repeat("-", 44)
	blueColor.Fprintln(w, line)
	greenColor.Fprintln(w, banner)
	blueColor.Fprintln(w, line)
	yellowColor.Fprintln(w, "J* "+jstar.Version+" -- an embeddable scripting language")
	blueColor.Fprintln(w, line)
	if !r.NoHints {
		cyanColor.Fprintln(w, "Type code and press enter to evaluate it")
		cyanColor.Fprintln(w, "Multi-line blocks continue until their closing 'end'")
		cyanColor.Fprintln(w, "Press Ctrl-D or type '.exit' to quit")
	}
}

// Start runs the loop until EOF or '.exit'. Errors print and the loop
// continues; every chunk evaluates into the __main__ module so
// definitions persist across lines.
func (r *Repl) Start(out io.Writer) error {
	if r.NoColors {
		color.NoColor = true
	}
	if r.ShowBanner {
		r.PrintBanner(out)
	}

	rl, err := readline.New(r.Prompt)
	if err != nil {
		return err
	}
	defer rl.Close()

	var buf []string
	for {
		if len(buf) == 0 {
			rl.SetPrompt(r.Prompt)
		} else {
			rl.SetPrompt(r.ContPrompt)
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buf = buf[:0]
			continue
		}
		if err != nil { // io.EOF
			return nil
		}
		if len(buf) == 0 && strings.TrimSpace(line) == ".exit" {
			return nil
		}

		buf = append(buf, line)
		src := strings.Join(buf, "\n")
		if incomplete(src) {
			continue
		}
		buf = buf[:0]

		if res := r.VM.EvalString("__main__", "<stdin>", src); res == jstar.RuntimeErr {
			redColor.Fprintln(out, r.VM.GetStacktrace())
		}
	}
}

// incomplete reports whether src is the prefix of a well-formed chunk:
// it parses with errors, every one of them at the end-of-input
// position. An error before EOF is a real mistake and the chunk is
// evaluated (and diagnosed) immediately.
func incomplete(src string) bool {
	eofPos := eofPosition(src)
	sawError := false
	allAtEOF := true
	p := parser.New("<stdin>", src, func(path string, pos token.Pos, msg string) {
		sawError = true
		if pos != eofPos {
			allAtEOF = false
		}
	})
	p.Parse()
	return sawError && allAtEOF
}

func eofPosition(src string) token.Pos {
	toks := lexer.New(src).All()
	if len(toks) == 0 {
		return token.Pos{Line: 1, Column: 1}
	}
	return toks[len(toks)-1].Pos
}

// PrintRuntimeError prints a formatted uncaught-exception traceback.
func PrintRuntimeError(out io.Writer, noColors bool, trace string) {
	if noColors {
		color.NoColor = true
	}
	redColor.Fprintln(out, trace)
}

// ReportError prints one syntax/compile diagnostic in the CLI's
// standard format; wired as the VM's error callback by cmd/jstar.
func ReportError(out io.Writer, noColors bool, path string, line, col int, msg string) {
	if noColors {
		color.NoColor = true
	}
	if col > 0 {
		redColor.Fprintf(out, "File %s [line:%d, col:%d]:\n%s\n", path, line, col, msg)
		return
	}
	redColor.Fprintf(out, "File %s [line:%d]:\n%s\n", path, line, msg)
}
