package ctest

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/imagealter/worker-test-harness/framework"
)

type environment struct {
	config  TestConfiguration
	results Results
}

// T represents a test scope. It is very similar to Go's testing.T type.
type T struct {
	env         *environment
	id          TestID
	debugLogger framework.CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	hasChildren bool
	cleanups    []func()
	errors      []error
	notes       []string
	helperFns   []string
}

// TestConfiguration contains options for the entire test run.
type TestConfiguration struct {
	// Filter is an optional filter for determining which tests to run based on their names.
	// Tests that are excluded are neither run nor reported.
	Filter Filter

	// TestLogger receives status information about each test.
	TestLogger TestLogger
}

// Run starts a top-level test scope.
func Run(
	config TestConfiguration,
	action func(*T),
) Results {
	if config.TestLogger == nil {
		config.TestLogger = nullTestLogger{}
	}
	env := &environment{
		config: config,
	}
	t := &T{env: env}
	t.run(action)
	return env.results
}

func (t *T) run(action func(*T)) (result TestResult) {
	result.TestID = t.id
	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil {
			if t.skipped {
				result.SkipReason = t.skipReason
				t.runCleanups()
				return
			}
			t.failed = true
			var addError error
			if _, ok := r.(*T); ok {
				if len(t.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				t.errors = append(t.errors, addError)
				t.env.config.TestLogger.TestError(t.id, addError)
			}
		}
		result.Errors = t.errors
		result.Notes = t.notes
		result.Leaf = !t.hasChildren
		result.Duration = time.Since(startTime)
		if t.failed {
			t.env.results.Failures = append(t.env.results.Failures, result)
		}
		t.env.results.Tests = append(t.env.results.Tests, result)
		t.runCleanups()
	}()

	action(t)
	return result
}

func (t *T) runCleanups() {
	for i := len(t.cleanups) - 1; i >= 0; i-- {
		t.cleanups[i]()
	}
	t.cleanups = nil
}

// ID returns the full name of the current test.
func (t *T) ID() TestID {
	return t.id
}

// Run runs a subtest in its own scope.
//
// This is equivalent to Go's testing.T.Run.
func (t *T) Run(name string, action func(*T)) {
	id := t.id.Plus(name)
	if t.env.config.Filter != nil && !t.env.config.Filter.Match(id) {
		return
	}
	t.hasChildren = true

	t.env.config.TestLogger.TestStarted(id)
	c1 := &T{
		id:  id,
		env: t.env,
	}
	t.debugLogger.AddChildLogger(&c1.debugLogger) // see comments on t.DebugLogger()
	result := c1.run(action)
	t.debugLogger.RemoveChildLogger(&c1.debugLogger)
	if c1.skipped {
		t.env.results.Skipped = append(t.env.results.Skipped, result)
		t.env.config.TestLogger.TestSkipped(id, c1.skipReason)
	} else {
		t.env.config.TestLogger.TestFinished(id, result, c1.debugLogger.Output())
	}
}

// Errorf reports a test failure. It is equivalent to Go's testing.T.Errorf. It does not cause the test
// to terminate, but adds the failure message to the output and marks the test as failed.
//
// It is also what makes *T usable with testify's assert and require packages.
func (t *T) Errorf(format string, args ...interface{}) {
	t.failed = true
	err := newCaseFailure(fmt.Sprintf(format, args...), t.helperFns)

	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// Error reports an error value as a test failure without terminating the test. Unlike Errorf, the
// error is kept as-is so that errors.Is and errors.As still work on the recorded result.
func (t *T) Error(err error) {
	t.failed = true
	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// FailNow causes the test to immediately terminate and be marked as failed.
func (t *T) FailNow() {
	panic(t)
}

// Failed returns true if the test has reported any failure so far.
func (t *T) Failed() bool {
	return t.failed
}

// Skip causes the test to immediately terminate and be marked as skipped.
func (t *T) Skip() {
	t.skipped = true
	panic(t)
}

// SkipWithReason is equivalent to Skip but provides a message.
func (t *T) SkipWithReason(reason string) {
	t.skipReason = reason
	t.Skip()
}

// Note attaches a short piece of information to the test result, such as timing or image
// dimensions. Notes are shown by the console logger next to the test outcome.
func (t *T) Note(message string, args ...interface{}) {
	t.notes = append(t.notes, fmt.Sprintf(message, args...))
}

// Debug writes a message to the output for this test scope.
func (t *T) Debug(message string, args ...interface{}) {
	t.debugLogger.Printf(message, args...)
}

// DebugLogger returns a Logger instance for writing output for this test scope.
//
// The output that is captured for a test will be passed to TestLogger.TestFinished at the end of
// the test. The test runner can choose whether to display this or not based on command-line options.
//
// While a subtest is running, any output sent to the parent test's logger goes to the subtest's
// logger instead. The suite relies on this: the worker transcript is written to the top-level
// logger, and so it is attributed to whichever case is currently talking to the worker.
func (t *T) DebugLogger() framework.Logger {
	return &t.debugLogger
}

// Defer schedules a cleanup function which is guaranteed to be called when this test scope
// exits for any reason. Unlike a Go defer statement, Defer can be used from within helper
// functions.
func (t *T) Defer(cleanupFn func()) {
	t.cleanups = append(t.cleanups, cleanupFn)
}

// Helper marks the function that calls it as a test helper that shouldn't appear in CaseFailure.Frames.
// Equivalent to Go's testing.T.Helper().
func (t *T) Helper() {
	var pc [1]uintptr
	if runtime.Callers(2, pc[:]) == 0 { // skip runtime.Callers and Helper itself
		return
	}
	frame, _ := runtime.CallersFrames(pc[:]).Next()
	t.helperFns = append(t.helperFns, frame.Function)
}
