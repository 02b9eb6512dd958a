package ctest

import (
	"fmt"
	"path"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/exp/slices"
)

const maxFailureFrames = 32

// CaseFailure is a failure reported through T.Errorf. Frames lists the calls that led to it, from
// the failing call outward, stopping at the test action that the scope was running. Calls inside
// this package and functions marked with T.Helper are left out.
type CaseFailure struct {
	Message string
	Frames  []CallFrame
}

func (f CaseFailure) Error() string { return f.Message }

// CallFrame is one entry of CaseFailure.Frames.
type CallFrame struct {
	Function string // package-qualified without the module path, like "transformtests.runTestCase"
	File     string // base name only
	Line     int
}

func (c CallFrame) String() string {
	return fmt.Sprintf("%s (%s:%d)", c.Function, c.File, c.Line)
}

var testifyPreambleRegex = regexp.MustCompile(`^(?s:\s*Error Trace:.*\sError:\s*)`)

var ctestPackage = reflect.TypeOf((*T)(nil)).Elem().PkgPath() //nolint:gochecknoglobals

// newCaseFailure builds the error for a failed assertion. testify's "Error Trace:" header is
// dropped since the frames already say where the failure happened.
func newCaseFailure(message string, helperFns []string) error {
	if strings.Contains(message, "Error Trace:") {
		message = strings.TrimSpace(testifyPreambleRegex.ReplaceAllLiteralString(message, ""))
	}
	return CaseFailure{Message: message, Frames: callerFrames(3, helperFns)}
}

// callerFrames skips the given number of frames, including runtime.Callers itself.
func callerFrames(skip int, helperFns []string) []CallFrame {
	pcs := make([]uintptr, maxFailureFrames)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var ret []CallFrame
	for {
		frame, more := frames.Next()
		if frame.Function == ctestPackage+".(*T).run" {
			break
		}
		if packageOfFunction(frame.Function) != ctestPackage && !slices.Contains(helperFns, frame.Function) {
			ret = append(ret, CallFrame{
				Function: path.Base(frame.Function),
				File:     filepath.Base(frame.File),
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
	return ret
}

// packageOfFunction turns "example.com/mod/pkg.(*T).Method.func1" into "example.com/mod/pkg".
func packageOfFunction(fullName string) string {
	lastSlash := strings.LastIndex(fullName, "/")
	dot := strings.Index(fullName[lastSlash+1:], ".")
	if dot < 0 {
		return fullName
	}
	return fullName[:lastSlash+1+dot]
}
