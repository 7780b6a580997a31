package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Kind classifies a status line for coloring.
type Kind int

const (
	Info Kind = iota
	OK
	Warn
	Error
)

const (
	labelWidth = 20
	indent     = "  "
)

// Console renders formatted CLI output. Color is enabled only when the
// underlying writer is a terminal.
type Console struct {
	out      io.Writer
	colorize bool
}

// NewConsole builds a console writing to w, auto-detecting color support.
func NewConsole(w io.Writer) *Console {
	return &Console{out: w, colorize: shouldColorize(w)}
}

// NewPlainConsole builds a console with color disabled regardless of terminal.
func NewPlainConsole(w io.Writer) *Console {
	return &Console{out: w}
}

// Writer returns the underlying output writer.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Header prints a section header with a rule underneath.
func (c *Console) Header(title string) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if c.colorize {
		line = color.New(color.FgBlue).Sprint(line)
		rule = color.New(color.FgBlue).Sprint(rule)
	}
	fmt.Fprintln(c.out, line)
	fmt.Fprintln(c.out, rule)
}

// StatusLine prints an indented label with a bracketed status badge.
func (c *Console) StatusLine(label string, kind Kind, message string) {
	statusText := "[" + kindLabel(kind) + "]"
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", indent, labelWidth, label+":", statusText)
	if c.colorize {
		if painter := kindColor(kind); painter != nil {
			base = painter.Sprint(base)
		}
	}
	fmt.Fprintln(c.out, base)
}

// Step prints a numbered progress line for multi-step operations.
func (c *Console) Step(n, total int, message string) {
	prefix := fmt.Sprintf("[%d/%d]", n, total)
	if c.colorize {
		prefix = color.New(color.FgCyan).Sprint(prefix)
	}
	fmt.Fprintf(c.out, "%s %s\n", prefix, message)
}

// Success prints a checkmark line.
func (c *Console) Success(format string, args ...any) {
	c.mark("✓", color.FgGreen, format, args...)
}

// Warning prints a warning line.
func (c *Console) Warning(format string, args ...any) {
	c.mark("!", color.FgYellow, format, args...)
}

// Failure prints an error line.
func (c *Console) Failure(format string, args ...any) {
	c.mark("✗", color.FgRed, format, args...)
}

// Note prints an informational line.
func (c *Console) Note(format string, args ...any) {
	c.mark("·", color.FgBlue, format, args...)
}

// Plain prints an unadorned line.
func (c *Console) Plain(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// KeyValue prints an indented aligned key/value pair.
func (c *Console) KeyValue(key, value string) {
	fmt.Fprintf(c.out, "%s%-*s %s\n", indent, labelWidth, key+":", value)
}

// Hint prints a suggested next step for an error.
func (c *Console) Hint(hint string) {
	if hint == "" {
		return
	}
	line := indent + "hint: " + hint
	if c.colorize {
		line = color.New(color.Faint).Sprint(line)
	}
	fmt.Fprintln(c.out, line)
}

func (c *Console) mark(glyph string, attr color.Attribute, format string, args ...any) {
	if c.colorize {
		glyph = color.New(attr).Sprint(glyph)
	}
	fmt.Fprintf(c.out, "%s %s\n", glyph, fmt.Sprintf(format, args...))
}

// Bytes formats a byte count for display.
func Bytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

func kindLabel(kind Kind) string {
	switch kind {
	case OK:
		return "OK"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

func kindColor(kind Kind) *color.Color {
	switch kind {
	case OK:
		return color.New(color.FgGreen)
	case Warn:
		return color.New(color.FgYellow)
	case Error:
		return color.New(color.FgRed)
	case Info:
		return color.New(color.FgBlue)
	default:
		return nil
	}
}

func shouldColorize(writer io.Writer) bool {
	if color.NoColor {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
