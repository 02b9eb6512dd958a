package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/imagealter/worker-test-harness/framework/ctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsOf(passed, failed int) ctest.Results {
	var r ctest.Results
	for i := 0; i < passed; i++ {
		r.Tests = append(r.Tests, ctest.TestResult{TestID: ctest.TestID{"pass"}, Leaf: true})
	}
	for i := 0; i < failed; i++ {
		result := ctest.TestResult{TestID: ctest.TestID{"fail"}, Leaf: true, Errors: []error{errors.New("no")}}
		r.Tests = append(r.Tests, result)
		r.Failures = append(r.Failures, result)
	}
	return r
}

func TestCheckResults(t *testing.T) {
	assert.NoError(t, checkResults(resultsOf(2, 0), false))
	assert.ErrorIs(t, checkResults(resultsOf(2, 1), false), errTestsFailed)
	assert.Error(t, checkResults(resultsOf(0, 0), false))
	assert.NoError(t, checkResults(resultsOf(0, 0), true))
}

func TestRootCommandArguments(t *testing.T) {
	var params commandParams
	var ran bool
	cmd := newRootCommand(&params, func(*commandParams) error {
		ran = true
		return nil
	})
	cmd.SetArgs([]string{"--dir", "/work/test", "--skip", "rotate", "--debug", "resize"})
	require.NoError(t, cmd.Execute())

	assert.True(t, ran)
	assert.Equal(t, "resize", params.filter)
	assert.Equal(t, filepath.Join("/work", "src", "build", "ImageAlter"), params.serviceDir)
	assert.True(t, params.debug)
	assert.Equal(t, `"rotate"`, params.filters.MustNotMatch.String())
}

func TestRootCommandRejectsExtraArguments(t *testing.T) {
	var params commandParams
	cmd := newRootCommand(&params, func(*commandParams) error { return nil })
	cmd.SetArgs([]string{"a", "b"})
	assert.Error(t, cmd.Execute())
}

func TestLoadSuppressions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip.txt")
	require.NoError(t, os.WriteFile(path, []byte("resize_small\n\n# broken upstream\nrotate.90\n"), 0o600))

	params := commandParams{skipFile: path}
	require.NoError(t, loadSuppressions(&params))

	assert.False(t, params.filters.Match(ctest.TestID{"resize_small"}))
	assert.False(t, params.filters.Match(ctest.TestID{"rotate.90"}))
	assert.True(t, params.filters.Match(ctest.TestID{"rotate_90"}))
	assert.True(t, params.filters.Match(ctest.TestID{"resize_small_png"}))
}

func TestRecordFailuresRoundTripsThroughSkipFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.txt")
	require.NoError(t, recordFailures(path, resultsOf(1, 1)))

	params := commandParams{skipFile: path}
	require.NoError(t, loadSuppressions(&params))
	assert.False(t, params.filters.Match(ctest.TestID{"fail"}))
	assert.True(t, params.filters.Match(ctest.TestID{"pass"}))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, loadEnvFile(commandParams{dir: dir}))
	assert.Error(t, loadEnvFile(commandParams{dir: dir, envFile: filepath.Join(dir, "missing.env")}))

	t.Setenv("IMAGEALTER_TEST_PRESET", "from-environment")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("IMAGEALTER_TEST_PRESET=from-file\nIMAGEALTER_TEST_NEW=from-file\n"), 0o600))
	t.Setenv("IMAGEALTER_TEST_NEW", "")
	require.NoError(t, os.Unsetenv("IMAGEALTER_TEST_NEW"))

	require.NoError(t, loadEnvFile(commandParams{dir: dir}))
	assert.Equal(t, "from-environment", os.Getenv("IMAGEALTER_TEST_PRESET"))
	assert.Equal(t, "from-file", os.Getenv("IMAGEALTER_TEST_NEW"))
}
