package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 14
	statusIndent     = "  "
)

// reportWriter prints aligned report sections, colouring them only on terminals.
type reportWriter struct {
	out      io.Writer
	colorize bool
}

func newReportWriter(out io.Writer) *reportWriter {
	return &reportWriter{out: out, colorize: shouldColorize(out)}
}

func (w *reportWriter) section(title string) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	fmt.Fprintln(w.out, w.paint(ansiBlue, line))
	fmt.Fprintln(w.out, w.paint(ansiBlue, rule))
}

func (w *reportWriter) status(label string, kind statusKind, message string) {
	text := "[" + kind.String() + "]"
	if message != "" {
		text += " " + message
	}
	fmt.Fprintln(w.out, w.paint(kind.color(), w.labelled(label, text)))
}

func (w *reportWriter) field(label, value string) {
	fmt.Fprintln(w.out, w.labelled(label, value))
}

func (w *reportWriter) blank() {
	fmt.Fprintln(w.out)
}

func (w *reportWriter) labelled(label, value string) string {
	return fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", value)
}

func (w *reportWriter) paint(color, text string) string {
	if !w.colorize || color == "" {
		return text
	}
	return color + text + ansiReset
}

func (k statusKind) String() string {
	switch k {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (k statusKind) color() string {
	switch k {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
