package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/codalotl/xrayreport/internal/types"
)

type Printer struct {
	mu                 sync.Mutex
	out                io.Writer
	colored            bool
	appStyle           text.Colors
	commandStyle       text.Colors
	commandOutputStyle text.Colors
	last               outputKind
}

type outputKind int

const (
	outputNone outputKind = iota
	outputApp
	outputCommand
)

// NewPrinter creates a Printer that colors output only when out is a terminal and the environment allows it.
func NewPrinter(out io.Writer) *Printer {
	return newPrinter(out, ColorEnabled(out))
}

// NewPlainPrinter never emits escape sequences.
func NewPlainPrinter(out io.Writer) *Printer {
	return newPrinter(out, false)
}

func newPrinter(out io.Writer, colored bool) *Printer {
	if out == nil {
		out = io.Discard
	}
	return &Printer{
		out:                out,
		colored:            colored,
		appStyle:           text.Colors{text.Bold},
		commandStyle:       text.Colors{text.FgHiBlue},
		commandOutputStyle: text.Colors{text.Italic, text.FgHiBlack},
	}
}

// Colored reports whether the printer emits escape sequences.
func (p *Printer) Colored() bool {
	return p.colored
}

// App writes bold application output.
func (p *Printer) App(s string) error {
	if s == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureGapBeforeApp(); err != nil {
		return err
	}
	if err := p.writeStyled(p.appStyle, ensureTrailingNewline(s)); err != nil {
		return err
	}
	p.last = outputApp
	return nil
}

func (p *Printer) Appf(format string, args ...any) error {
	return p.App(fmt.Sprintf(format, args...))
}

// Status writes a line prefixed with the status, colored by outcome.
func (p *Printer) Status(status types.Status, s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureGapBeforeApp(); err != nil {
		return err
	}
	label := fmt.Sprintf("%-4s", status)
	if p.colored {
		label = statusColors(status).Sprint(label)
	}
	if _, err := io.WriteString(p.out, ensureTrailingNewline(label+" "+s)); err != nil {
		return err
	}
	p.last = outputApp
	return nil
}

// Raw writes s unstyled, e.g. a pre-rendered table.
func (p *Printer) Raw(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureGapBeforeApp(); err != nil {
		return err
	}
	_, err := io.WriteString(p.out, ensureTrailingNewline(s))
	p.last = outputApp
	return err
}

// Command prints a command invocation before it runs.
func (p *Printer) Command(name string, args ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureGapBeforeCommand(); err != nil {
		return err
	}
	if err := p.writeStyled(p.commandStyle, ensureTrailingNewline(FormatCommand(name, args))); err != nil {
		return err
	}
	p.last = outputCommand
	return nil
}

// CommandOutput returns a writer that styles a running command's output.
func (p *Printer) CommandOutput() io.Writer {
	return &styledWriter{p: p}
}

func statusColors(status types.Status) text.Colors {
	switch status {
	case types.StatusPass:
		return text.Colors{text.Bold, text.FgGreen}
	case types.StatusFail:
		return text.Colors{text.Bold, text.FgRed}
	default:
		return text.Colors{text.Bold, text.FgYellow}
	}
}

func (p *Printer) ensureGapBeforeCommand() error {
	switch p.last {
	case outputApp, outputCommand:
		_, err := io.WriteString(p.out, "\n")
		return err
	default:
		return nil
	}
}

func (p *Printer) ensureGapBeforeApp() error {
	if p.last != outputCommand {
		return nil
	}
	_, err := io.WriteString(p.out, "\n")
	return err
}

func (p *Printer) writeStyled(style text.Colors, s string) error {
	if s == "" {
		return nil
	}
	if p.colored {
		s = style.Sprint(s)
	}
	_, err := io.WriteString(p.out, s)
	return err
}

type styledWriter struct {
	p *Printer
}

func (w *styledWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if err := w.p.writeStyled(w.p.commandOutputStyle, string(b)); err != nil {
		return 0, err
	}
	w.p.last = outputCommand
	return len(b), nil
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// FormatCommand renders name and args as a shell-quoted command line.
func FormatCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(name))
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n'\"\\$&|;<>*?[]{}()") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", "'\"'\"'") + "'"
}
