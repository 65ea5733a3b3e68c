package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// slowStep is the duration after which a finished step shows its elapsed time.
const slowStep = 500 * time.Millisecond

// StepSpinner reports startup steps one line at a time. On a terminal the
// running step animates; otherwise the step is printed once and completed
// in place, which keeps CI logs readable.
type StepSpinner struct {
	w       io.Writer
	static  bool
	now     func() time.Time
	spin    *spinner.Spinner
	msg     string
	started time.Time
}

// NewStepSpinner creates a spinner that writes to w. static disables the
// animation for non-interactive output.
func NewStepSpinner(w io.Writer, static bool) *StepSpinner {
	return &StepSpinner{w: w, static: static, now: time.Now}
}

// Start begins a step labelled msg.
func (ss *StepSpinner) Start(msg string) {
	ss.msg = msg
	ss.started = ss.now()
	if ss.static {
		fmt.Fprintf(ss.w, "  %s", msg)
		return
	}
	ss.spin = spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(ss.w))
	ss.spin.Prefix = "  "
	ss.spin.Suffix = " " + msg
	ss.spin.Start()
}

// Done marks the current step as successful.
func (ss *StepSpinner) Done() {
	ss.finish(StyleSuccess.Render(SymbolCheck))
}

// Fail marks the current step as failed.
func (ss *StepSpinner) Fail() {
	ss.finish(StyleError.Render(SymbolCross))
}

// Stop halts the animation without reporting an outcome.
func (ss *StepSpinner) Stop() {
	if ss.spin != nil {
		ss.spin.Stop()
		ss.spin = nil
	}
}

func (ss *StepSpinner) finish(mark string) {
	elapsed := ""
	if !ss.started.IsZero() {
		if d := ss.now().Sub(ss.started); d >= slowStep {
			elapsed = " " + StyleHint.Render(d.Round(100*time.Millisecond).String())
		}
	}
	if ss.static {
		fmt.Fprintf(ss.w, " %s%s\n", mark, elapsed)
		return
	}
	ss.Stop()
	fmt.Fprintf(ss.w, "\r  %s %s%s\n", ss.msg, mark, elapsed)
}
