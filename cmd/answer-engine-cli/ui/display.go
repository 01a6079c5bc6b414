package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgCyan)
	keyColor     = color.New(color.Bold)
)

// Init applies the color setting.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Printer writes formatted messages to an output stream.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Success displays a success message.
func (p *Printer) Success(format string, args ...interface{}) {
	successColor.Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func (p *Printer) Warning(format string, args ...interface{}) {
	warningColor.Fprintf(p.out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message.
func (p *Printer) Error(format string, args ...interface{}) {
	errorColor.Fprintf(p.out, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func (p *Printer) Info(format string, args ...interface{}) {
	infoColor.Fprintf(p.out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// KeyValue displays a key-value pair.
func (p *Printer) KeyValue(key, value string) {
	fmt.Fprintf(p.out, "  %s: %s\n", keyColor.Sprint(key), value)
}

// Section displays a section header.
func (p *Printer) Section(title string) {
	fmt.Fprintf(p.out, "\n%s\n%s\n\n", keyColor.Sprint(title), strings.Repeat("=", len(title)))
}

// Table displays rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// Groundedness colors a groundedness label by how far it can be trusted.
func Groundedness(label string) string {
	switch label {
	case "verified":
		return successColor.Sprint(label)
	case "grounded":
		return infoColor.Sprint(label)
	case "ungrounded":
		return warningColor.Sprint(label)
	default:
		return errorColor.Sprint(label)
	}
}
