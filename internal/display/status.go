// Package display renders colored status lines on the terminal, with
// graceful fallback to plain text when the output is not a capable TTY.
package display

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// StatusPrinter writes leveled status lines to the terminal
type StatusPrinter struct {
	out          io.Writer
	colorEnabled bool
	success      *color.Color
	errorc       *color.Color
	warn         *color.Color
	info         *color.Color
}

// NewStatusPrinter creates a printer writing to stdout. Colors are disabled
// when explicitly requested, when stdout is not a terminal, or when the
// terminal does not advertise color support.
func NewStatusPrinter(noColor bool) *StatusPrinter {
	return NewStatusPrinterTo(os.Stdout, noColor)
}

// NewStatusPrinterTo creates a printer writing to the given writer.
func NewStatusPrinterTo(out io.Writer, noColor bool) *StatusPrinter {
	enabled := !noColor && detectColorSupport(out)

	p := &StatusPrinter{
		out:          out,
		colorEnabled: enabled,
		success:      color.New(color.FgGreen, color.Bold),
		errorc:       color.New(color.FgRed, color.Bold),
		warn:         color.New(color.FgYellow),
		info:         color.New(color.FgCyan),
	}

	if !enabled {
		for _, c := range []*color.Color{p.success, p.errorc, p.warn, p.info} {
			c.DisableColor()
		}
	}

	return p
}

// detectColorSupport checks whether the writer is a color-capable terminal
func detectColorSupport(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

// Successf prints a success line
func (p *StatusPrinter) Successf(format string, args ...interface{}) {
	fmt.Fprintln(p.out, p.success.Sprint("[OK] ")+fmt.Sprintf(format, args...))
}

// Errorf prints an error line
func (p *StatusPrinter) Errorf(format string, args ...interface{}) {
	fmt.Fprintln(p.out, p.errorc.Sprint("[ERROR] ")+fmt.Sprintf(format, args...))
}

// Warnf prints a warning line
func (p *StatusPrinter) Warnf(format string, args ...interface{}) {
	fmt.Fprintln(p.out, p.warn.Sprint("[WARN] ")+fmt.Sprintf(format, args...))
}

// Infof prints an informational line
func (p *StatusPrinter) Infof(format string, args ...interface{}) {
	fmt.Fprintln(p.out, p.info.Sprint("[INFO] ")+fmt.Sprintf(format, args...))
}

// ColorEnabled reports whether colored output is active
func (p *StatusPrinter) ColorEnabled() bool {
	return p.colorEnabled
}
