package ctest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/imagealter/worker-test-harness/framework"

	"github.com/fatih/color"
)

var consoleTestErrorColor = color.New(color.FgYellow)              //nolint:gochecknoglobals
var consoleTestFailedColor = color.New(color.FgRed)                //nolint:gochecknoglobals
var consoleTestPassedColor = color.New(color.FgGreen)              //nolint:gochecknoglobals
var consoleTestSkippedColor = color.New(color.Faint, color.FgBlue) //nolint:gochecknoglobals
var consoleDebugOutputColor = color.New(color.Faint)               //nolint:gochecknoglobals
var allTestsPassedColor = color.New(color.FgGreen)                 //nolint:gochecknoglobals

// TestLogger receives progress events from Run. Implementations must not assume that events for
// different tests are delivered from the same goroutine.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput)
	TestSkipped(id TestID, reason string)
	EndLog(results Results) error
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID)                                        {}
func (n nullTestLogger) TestError(TestID, error)                                   {}
func (n nullTestLogger) TestFinished(TestID, TestResult, framework.CapturedOutput) {}
func (n nullTestLogger) TestSkipped(TestID, string)                                {}
func (n nullTestLogger) EndLog(Results) error                                      { return nil }

// ConsoleTestLogger writes a line per test to standard output. Only leaf tests get a PASSED line;
// group scopes are announced when they start and reported again only if they fail.
type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Printf("[%s]\n", id)
}

func (c ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = consoleTestErrorColor.Printf("  %s\n", line)
	}
}

func (c ConsoleTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	failed := len(result.Errors) != 0
	switch {
	case failed:
		_, _ = consoleTestFailedColor.Printf("  FAILED: %s\n", id)
	case result.Leaf:
		if len(result.Notes) == 0 {
			_, _ = consoleTestPassedColor.Printf("  PASSED: %s\n", id)
		} else {
			_, _ = consoleTestPassedColor.Printf("  PASSED: %s (%s)\n", id, strings.Join(result.Notes, ", "))
		}
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		_, _ = consoleDebugOutputColor.Println(debugOutput.ToString("    DEBUG "))
	}
}

func (c ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		_, _ = consoleTestSkippedColor.Printf("  SKIPPED: %s\n", id)
	} else {
		_, _ = consoleTestSkippedColor.Printf("  SKIPPED: %s (%s)\n", id, reason)
	}
}

func (c ConsoleTestLogger) EndLog(results Results) error {
	PrintResults(results)
	return nil
}

// MultiTestLogger forwards every event to each of its members. EndLog returns the first error.
type MultiTestLogger struct {
	Loggers []TestLogger
}

func (m MultiTestLogger) TestStarted(id TestID) {
	for _, l := range m.Loggers {
		l.TestStarted(id)
	}
}

func (m MultiTestLogger) TestError(id TestID, err error) {
	for _, l := range m.Loggers {
		l.TestError(id, err)
	}
}

func (m MultiTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	for _, l := range m.Loggers {
		l.TestFinished(id, result, debugOutput)
	}
}

func (m MultiTestLogger) TestSkipped(id TestID, reason string) {
	for _, l := range m.Loggers {
		l.TestSkipped(id, reason)
	}
}

func (m MultiTestLogger) EndLog(results Results) error {
	var firstErr error
	for _, l := range m.Loggers {
		if err := l.EndLog(results); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PrintResults writes the final summary of a run to the console.
func PrintResults(results Results) {
	WriteResults(os.Stdout, os.Stderr, results)
}

// WriteResults is the same as PrintResults but with explicit destinations.
func WriteResults(out, errOut io.Writer, results Results) {
	summary := results.Summary()
	fmt.Fprintln(out)
	if results.OK() {
		if summary.Attempted == 0 {
			_, _ = consoleTestSkippedColor.Fprintln(out, "No tests were run")
		} else {
			_, _ = allTestsPassedColor.Fprintln(out, "All tests passed")
		}
	} else {
		_, _ = consoleTestFailedColor.Fprintf(errOut, "FAILED TESTS (%d):\n", len(results.Failures))
		for _, f := range results.Failures {
			_, _ = consoleTestFailedColor.Fprintf(errOut, "  * %s\n", f.TestID)
		}
	}
	fmt.Fprintln(out, summary)
}
