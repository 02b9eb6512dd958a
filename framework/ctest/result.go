package ctest

import (
	"fmt"
	"strings"
	"time"
)

// Results is the accumulated outcome of a test run.
type Results struct {
	Tests    []TestResult
	Failures []TestResult
	Skipped  []TestResult
}

type TestResult struct {
	TestID     TestID
	Errors     []error
	Notes      []string
	Duration   time.Duration
	Leaf       bool
	SkipReason string
}

// Summary counts the leaf tests of a run, that is, the tests that did real work rather than
// just grouping subtests.
type Summary struct {
	Attempted  int
	Successful int
	Skipped    int
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

func (r Results) Summary() Summary {
	var s Summary
	for _, t := range r.Tests {
		if !t.Leaf || len(t.TestID) == 0 {
			continue
		}
		s.Attempted++
		if len(t.Errors) == 0 {
			s.Successful++
		}
	}
	s.Skipped = len(r.Skipped)
	return s
}

// Failed returns the number of attempted tests that did not succeed.
func (s Summary) Failed() int { return s.Attempted - s.Successful }

// OK is true if every attempted test succeeded. It is also true if nothing was attempted; callers
// that want to treat an empty run as a failure must check Attempted themselves.
func (s Summary) OK() bool { return s.Attempted == s.Successful }

func (s Summary) String() string {
	return fmt.Sprintf("%d attempted, %d passed, %d failed, %d skipped",
		s.Attempted, s.Successful, s.Failed(), s.Skipped)
}

type TestID []string

func (t TestID) String() string {
	return strings.Join(t, "/")
}

func (t TestID) Plus(name string) TestID {
	return append(append(TestID(nil), t...), name)
}

// Name returns the last component of the ID.
func (t TestID) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}
