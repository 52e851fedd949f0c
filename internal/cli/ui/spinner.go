package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// StepSpinner animates sequential startup steps. On a terminal each step
// shows a braille spinner that resolves to a check or cross; with plain
// output (pipes, CI) it prints static lines instead.
type StepSpinner struct {
	out   io.Writer
	spin  *spinner.Spinner
	msg   string
	plain bool
}

// NewStepSpinner creates a spinner writing to out. Pass plain=true when out
// is not an interactive terminal.
func NewStepSpinner(out io.Writer, plain bool) *StepSpinner {
	return &StepSpinner{out: out, plain: plain}
}

// Start begins a named step.
func (ss *StepSpinner) Start(msg string) {
	ss.msg = msg
	if ss.plain {
		fmt.Fprintf(ss.out, "  %s", msg)
		return
	}
	ss.spin = spinner.New(
		spinner.CharSets[14], // braille dots
		80*time.Millisecond,
		spinner.WithWriter(ss.out),
	)
	ss.spin.Prefix = "  "
	ss.spin.Suffix = " " + msg
	ss.spin.Start()
}

// Done resolves the current step with a green check.
func (ss *StepSpinner) Done() {
	ss.finish(StyleSuccess.Render(SymbolCheck))
}

// Fail resolves the current step with a red cross.
func (ss *StepSpinner) Fail() {
	ss.finish(StyleError.Render(SymbolCross))
}

func (ss *StepSpinner) finish(symbol string) {
	if ss.plain {
		fmt.Fprintf(ss.out, " %s\n", symbol)
		return
	}
	ss.Stop()
	fmt.Fprintf(ss.out, "\r  %s %s\n", ss.msg, symbol)
}

// Stop halts the animation without printing a status, for cleanup paths.
func (ss *StepSpinner) Stop() {
	if ss.spin != nil {
		ss.spin.Stop()
		ss.spin = nil
	}
}
