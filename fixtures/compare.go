package fixtures

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/imagealter/worker-test-harness/framework/helpers"
)

// Outcome is the overall result of a comparison.
type Outcome int

const (
	Pass Outcome = iota
	Fail
)

func (o Outcome) String() string {
	if o == Pass {
		return "Pass"
	}
	return "Fail"
}

// FailureKind says why a comparison failed.
type FailureKind string

const (
	MissingFixture FailureKind = "MissingFixture"
	IOError        FailureKind = "IOError"
	Mismatch       FailureKind = "Mismatch"
)

var (
	ErrMissingFixture = errors.New("expected-output fixture does not exist")
	ErrIO             = errors.New("could not read file")
	ErrMismatch       = errors.New("output does not match fixture")
)

// ComparisonResult is the outcome of comparing one case's output with its fixture.
//
// A failure that happened after the actual output was read always has ArtifactPath set, or
// ArtifactErr if the output could not be saved. A failure that happened before then has neither.
type ComparisonResult struct {
	Outcome Outcome
	Kind    FailureKind
	Err     error

	ExpectedPath string
	ActualPath   string
	ArtifactPath string
	ArtifactErr  error

	// MismatchOffset is the index of the first differing byte, for a Mismatch.
	MismatchOffset int
	Expected       ImageInfo
	Actual         ImageInfo

	// Updated means the fixture was written from the actual output instead of being compared.
	Updated bool
}

func (r ComparisonResult) Passed() bool { return r.Outcome == Pass }

// Details returns extra lines of explanation for a failure.
func (r ComparisonResult) Details() []string {
	var ret []string
	if r.Kind == Mismatch {
		ret = append(ret,
			fmt.Sprintf("first difference at byte %d", r.MismatchOffset),
			fmt.Sprintf("expected: %s", r.Expected),
			fmt.Sprintf("actual:   %s", r.Actual),
		)
	}
	if r.ArtifactPath != "" {
		ret = append(ret, fmt.Sprintf("actual output saved to %s", r.ArtifactPath))
	}
	if r.ArtifactErr != nil {
		ret = append(ret, fmt.Sprintf("could not save actual output: %s", r.ArtifactErr))
	}
	return ret
}

type compareConfig struct {
	updateFixtures bool
}

// CompareOption is the interface for optional configuration parameters to Compare.
type CompareOption helpers.ConfigOption[compareConfig]

// CompareUpdateFixtures makes Compare write the actual output as the new fixture, instead of
// failing, when the fixture is missing or different.
func CompareUpdateFixtures(update bool) CompareOption {
	return helpers.ConfigOptionFunc[compareConfig](func(c *compareConfig) error {
		c.updateFixtures = update
		return nil
	})
}

// Compare checks the file at actualPath against the case's fixture, byte for byte.
func Compare(tc TestCase, actualPath string, options ...CompareOption) ComparisonResult {
	var config compareConfig
	_ = helpers.ApplyOptions(&config, options...)

	result := ComparisonResult{ExpectedPath: tc.ExpectedPath(), ActualPath: actualPath}
	fail := func(kind FailureKind, err error) ComparisonResult {
		result.Outcome, result.Kind, result.Err = Fail, kind, err
		return result
	}

	_, statErr := os.Stat(result.ExpectedPath)
	missing := errors.Is(statErr, fs.ErrNotExist)
	if missing && !config.updateFixtures {
		return fail(MissingFixture, fmt.Errorf("%w: %s", ErrMissingFixture, result.ExpectedPath))
	}

	actual, err := os.ReadFile(actualPath) //nolint:gosec
	if err != nil {
		return fail(IOError, fmt.Errorf("%w: actual output: %w", ErrIO, err))
	}

	saveArtifact := func() {
		if err := os.WriteFile(tc.GotPath(), actual, 0o644); err != nil { //nolint:gosec
			result.ArtifactErr = err
		} else {
			result.ArtifactPath = tc.GotPath()
		}
	}
	updateFixture := func() ComparisonResult {
		if err := os.WriteFile(result.ExpectedPath, actual, 0o644); err != nil { //nolint:gosec
			saveArtifact()
			return fail(IOError, fmt.Errorf("%w: updating fixture: %w", ErrIO, err))
		}
		result.Updated = true
		return result
	}

	if missing {
		return updateFixture()
	}

	expected, err := os.ReadFile(result.ExpectedPath)
	if err != nil {
		saveArtifact()
		return fail(IOError, fmt.Errorf("%w: expected output: %w", ErrIO, err))
	}

	if bytes.Equal(expected, actual) {
		return result
	}
	if config.updateFixtures {
		return updateFixture()
	}

	saveArtifact()
	result.MismatchOffset = firstDifference(expected, actual)
	result.Expected, result.Actual = DescribeImage(expected), DescribeImage(actual)
	return fail(Mismatch, fmt.Errorf("%w: %d bytes expected, %d bytes received, first difference at byte %d",
		ErrMismatch, len(expected), len(actual), result.MismatchOffset))
}

func firstDifference(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
