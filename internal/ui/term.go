package ui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// defaultWidth is assumed when w is not a terminal.
const defaultWidth = 80

// IsTTY reports whether w writes to a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TermWidth returns the width of the terminal behind w in columns.
func TermWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return defaultWidth
	}
	return cols
}
