package ui

import (
	"errors"
	"fmt"
	"strings"
)

// HintError is an error that carries commands the operator can run to
// recover from it.
type HintError struct {
	Err   error
	Hints []string
}

func (e *HintError) Error() string { return e.Err.Error() }
func (e *HintError) Unwrap() error { return e.Err }

// WithHints attaches recovery commands to err. A nil err stays nil.
func WithHints(err error, hints ...string) error {
	if err == nil {
		return nil
	}
	return &HintError{Err: err, Hints: hints}
}

// Hints returns the recovery commands attached anywhere in err's chain.
func Hints(err error) []string {
	var he *HintError
	if errors.As(err, &he) {
		return he.Hints
	}
	return nil
}

// FormatError renders err for the terminal, followed by a "Try:" list when
// it carries hints.
func FormatError(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleBoldRed.Render("Error:"), err)

	hints := Hints(err)
	if len(hints) == 0 {
		return b.String()
	}
	b.WriteString("\n" + StyleHint.Render("  Try:") + "\n")
	for _, h := range hints {
		fmt.Fprintf(&b, "    %s %s\n", StyleHint.Render(SymbolArrow), h)
	}
	return b.String()
}
