package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notice writes one status line to stderr so stdout stays clean for
// command output.
func notice(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notice(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notice(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notice(colorYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { notice(colorCyan, "→", format, args...) }

func printStatus(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printAnswer writes an answer and its sources to w.
func printAnswer(w io.Writer, a askResult) {
	fmt.Fprintln(w, a.Answer)
	fmt.Fprintln(w)

	meta := fmt.Sprintf("confidence %.0f%% · %d ms", a.Confidence*100, a.ProcessingMS)
	if len(a.Namespaces) > 0 {
		meta += " · " + strings.Join(a.Namespaces, ", ")
	}
	fmt.Fprintln(w, colorize(colorDim, meta))

	if len(a.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, colorize(colorBold, "Sources:"))
	for i, s := range a.Sources {
		title := s.Title
		if title == "" {
			title = s.ID
		}
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, title, colorize(colorDim, fmt.Sprintf("(%s, %.2f)", s.Namespace, s.Score)))
	}
}
