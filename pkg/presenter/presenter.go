// Package presenter provides consistent CLI output for user-facing
// messages: success, warning, error, and informational lines with color
// support and a quiet mode for scripting.
package presenter

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorMode controls whether output is colorized.
type ColorMode int

const (
	// ColorAuto enables color only when writing to a terminal.
	ColorAuto ColorMode = iota
	// ColorAlways forces color output.
	ColorAlways
	// ColorNever disables color output.
	ColorNever
)

// Presenter writes user-facing messages.
type Presenter struct {
	mu        sync.Mutex
	out       io.Writer
	errOut    io.Writer
	colorMode ColorMode
	quiet     bool
}

// New creates a Presenter writing to the given streams.
func New(out, errOut io.Writer) *Presenter {
	return &Presenter{out: out, errOut: errOut, colorMode: ColorAuto}
}

var defaultPresenter = New(os.Stdout, os.Stderr)

// Default returns the process-wide presenter.
func Default() *Presenter { return defaultPresenter }

// SetQuiet suppresses success and info output; warnings and errors still print.
func (p *Presenter) SetQuiet(quiet bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quiet = quiet
}

// IsQuiet reports whether quiet mode is enabled.
func (p *Presenter) IsQuiet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quiet
}

func (p *Presenter) useColor(w io.Writer) bool {
	switch p.colorMode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

func (p *Presenter) println(w io.Writer, c *color.Color, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.useColor(w) {
		fmt.Fprintln(w, c.Sprint(msg))
		return
	}
	fmt.Fprintln(w, msg)
}

// Success prints a success message unless quiet.
func (p *Presenter) Success(msg string) {
	if p.IsQuiet() {
		return
	}
	p.println(p.out, color.New(color.FgGreen), "✓ "+msg)
}

// Info prints an informational message unless quiet.
func (p *Presenter) Info(msg string) {
	if p.IsQuiet() {
		return
	}
	p.println(p.out, color.New(color.FgCyan), msg)
}

// Warning prints a warning message. Warnings are never suppressed.
func (p *Presenter) Warning(msg string) {
	p.println(p.errOut, color.New(color.FgYellow), "⚠ "+msg)
}

// Error prints an error with optional context. Errors are never suppressed.
func (p *Presenter) Error(err error, context string) {
	msg := context
	if err != nil {
		if msg != "" {
			msg = fmt.Sprintf("%s: %v", context, err)
		} else {
			msg = err.Error()
		}
	}
	p.println(p.errOut, color.New(color.FgRed, color.Bold), "✗ "+msg)
}

// Section prints a section title unless quiet.
func (p *Presenter) Section(title string) {
	if p.IsQuiet() {
		return
	}
	p.println(p.out, color.New(color.Bold), "\n"+title)
}

// Package-level helpers writing through the default presenter.

// Success prints a success message via the default presenter.
func Success(msg string) { defaultPresenter.Success(msg) }

// Info prints an informational message via the default presenter.
func Info(msg string) { defaultPresenter.Info(msg) }

// Warning prints a warning via the default presenter.
func Warning(msg string) { defaultPresenter.Warning(msg) }

// Error prints an error via the default presenter.
func Error(err error, context string) { defaultPresenter.Error(err, context) }

// Section prints a section title via the default presenter.
func Section(title string) { defaultPresenter.Section(title) }

// SetQuiet toggles quiet mode on the default presenter.
func SetQuiet(quiet bool) { defaultPresenter.SetQuiet(quiet) }
