package main

import (
	"fmt"
	"os"
)

// ANSI escapes for CLI output. Status and progress lines go to stderr so
// stdout stays clean for piping answers and document listings.
const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiCyan  = "\033[36m"
	ansiBold  = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + ansiReset
}

func stderrLine(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printStep(format string, args ...any)    { stderrLine(ansiCyan, "→", format, args...) }
func printSuccess(format string, args ...any) { stderrLine(ansiGreen, "✓", format, args...) }
func printError(format string, args ...any)   { stderrLine(ansiRed, "✗", format, args...) }

// printStatus renders one indented "Label: value" line for the status command.
func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(ansiBold, label+":"), val)
}
