package transformtests

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/imagealter/worker-test-harness/fixtures"
	"github.com/imagealter/worker-test-harness/framework"
	"github.com/imagealter/worker-test-harness/framework/ctest"
	"github.com/imagealter/worker-test-harness/framework/worker"
	"github.com/imagealter/worker-test-harness/workerdef"
	"github.com/imagealter/worker-test-harness/workerinfo"

	"github.com/stretchr/testify/require"
)

// SkipReasonWorkerGone is reported for cases that could not run because an earlier case
// left the worker dead.
const SkipReasonWorkerGone = "worker is no longer running"

// SuiteParams configures RunTransformTestSuite.
type SuiteParams struct {
	CasesDir  string
	ImagesDir string

	RunnerPath string
	ServiceDir string
	WorkDir    string
	Profile    workerdef.Profile
	WorkerEnv  []string

	// UpdateFixtures makes every case save its output as the new expected fixture.
	UpdateFixtures bool

	// DebugLogger receives run-level messages. The worker transcript goes to each case's own log.
	DebugLogger framework.Logger

	// OnWorkerReady, if set, is called once the handshake has completed.
	OnWorkerReady func(workerinfo.WorkerInfo)
}

// RunTransformTestSuite loads the test cases, starts one worker, and runs every case that the
// filter selects, in order, against that worker.
//
// An error is returned only if the run could not start at all: the cases directory could not be
// read, or the worker could not be spawned or did not complete its handshake. In that case no test was run.
// Failures of individual cases are in the Results.
func RunTransformTestSuite(
	params SuiteParams,
	filter ctest.Filter,
	testLogger ctest.TestLogger,
) (ctest.Results, error) {
	if params.DebugLogger == nil {
		params.DebugLogger = framework.NullLogger()
	}

	cases, err := fixtures.LoadTestCases(params.CasesDir)
	if err != nil {
		return ctest.Results{}, err
	}
	params.DebugLogger.Printf("Loaded %d test case(s) from %s", len(cases), params.CasesDir)

	config := ctest.TestConfiguration{
		Filter:     filter,
		TestLogger: testLogger,
	}

	var startErr error
	results := ctest.Run(config, func(t *ctest.T) {
		session, err := StartSession(SessionParams{
			RunnerPath:  params.RunnerPath,
			ServiceDir:  params.ServiceDir,
			WorkDir:     params.WorkDir,
			Profile:     params.Profile,
			WorkerEnv:   params.WorkerEnv,
			Transcript:  t.DebugLogger(),
			DebugLogger: framework.LoggerWithPrefix(params.DebugLogger, "[worker] "),
		})
		if err != nil {
			startErr = err
			return
		}
		t.Defer(func() {
			if err := session.Close(); err != nil {
				params.DebugLogger.Printf("Error closing worker session: %s", err)
			}
		})
		if params.OnWorkerReady != nil {
			params.OnWorkerReady(session.Info())
		}

		for _, tc := range cases {
			tc := tc
			t.Run(tc.Name, func(t *ctest.T) {
				if session.State() == StateFaulted {
					t.SkipWithReason(SkipReasonWorkerGone)
				}
				runTestCase(t, params, session, tc)
			})
		}
	})
	return results, startErr
}

func runTestCase(t *ctest.T, params SuiteParams, session *Session, tc fixtures.TestCase) {
	if tc.LoadError != nil {
		t.Error(tc.LoadError)
		t.FailNow()
	}
	sourcePath, err := tc.SourcePath(params.ImagesDir)
	require.NoError(t, err)
	if _, err := os.Stat(sourcePath); err != nil {
		t.Debug("source image is not accessible: %s", err)
	}

	req := workerdef.TransformRequest{
		File:   workerdef.FileURIFromPath(sourcePath, params.Profile.URIStyle),
		Params: tc.Params,
	}
	started := time.Now()
	resp, err := session.Transform(req)
	elapsed := time.Since(started)
	if err != nil {
		reportTransformError(t, err)
		t.FailNow()
	}
	t.Debug("result: %s", resp.JSON)

	actualPath, err := resp.LocalPath()
	if err != nil {
		t.Errorf("worker returned an unusable file reference %q: %s", resp.File, err)
		t.FailNow()
	}

	result := fixtures.Compare(tc, actualPath, fixtures.CompareUpdateFixtures(params.UpdateFixtures))
	if !result.Passed() {
		t.Error(result.Err)
		for _, line := range result.Details() {
			t.Errorf("%s", line)
		}
		return
	}
	if result.Updated {
		t.Note("fixture updated")
	}
	if dims := resp.Dimensions(); dims != "" {
		t.Note("%s", dims)
	}
	t.Note("%s", elapsed.Round(time.Millisecond))
}

func reportTransformError(t *ctest.T, err error) {
	var workerErr *workerdef.WorkerError
	var parseErr *workerdef.ProtocolParseError
	switch {
	case errors.Is(err, worker.ErrChannelClosed):
		t.Error(fmt.Errorf("worker stopped responding: %w", err))
	case errors.As(err, &workerErr):
		t.Error(fmt.Errorf("worker reported an error: %w", err))
	case errors.As(err, &parseErr):
		t.Error(fmt.Errorf("could not understand worker output: %w", err))
	default:
		t.Error(err)
	}
}
