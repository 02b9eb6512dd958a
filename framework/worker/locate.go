package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnvSDKPath names the SDK installation whose bin directory holds the runner.
	EnvSDKPath = "BPSDK_PATH"

	// EnvServiceRunner names the runner executable directly.
	EnvServiceRunner = "SERVICE_RUNNER"

	// RunnerName is the file name of the runner inside an SDK's bin directory.
	RunnerName = "ServiceRunner"
)

// RunnerCandidate is one possible location of the runner executable.
type RunnerCandidate struct {
	Source string
	Path   string
}

// RunnerCandidates lists the places the runner may be found, lowest precedence first: the SDK
// checked out next to the test directory, then $BPSDK_PATH, then $SERVICE_RUNNER, then an explicit
// path from the command line. Candidates that are not set are omitted.
func RunnerCandidates(testDir, explicitPath string) []RunnerCandidate {
	var ret []RunnerCandidate
	if testDir != "" {
		ret = append(ret, RunnerCandidate{
			Source: "default",
			Path:   filepath.Join(testDir, "..", "..", "bpsdk", "bin", RunnerName),
		})
	}
	if sdk := os.Getenv(EnvSDKPath); sdk != "" {
		ret = append(ret, RunnerCandidate{Source: "$" + EnvSDKPath, Path: filepath.Join(sdk, "bin", RunnerName)})
	}
	if runner := os.Getenv(EnvServiceRunner); runner != "" {
		ret = append(ret, RunnerCandidate{Source: "$" + EnvServiceRunner, Path: runner})
	}
	if explicitPath != "" {
		ret = append(ret, RunnerCandidate{Source: "--runner", Path: explicitPath})
	}
	return ret
}

// LocateExecutable picks the highest-precedence candidate and checks that it can be run. Lower
// precedence candidates are not tried as fallbacks: if the user pointed somewhere explicitly, a
// broken path there is an error.
func LocateExecutable(candidates []RunnerCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", &SpawnError{Err: fmt.Errorf("no location configured for %s; set %s or %s",
			RunnerName, EnvSDKPath, EnvServiceRunner)}
	}
	chosen := candidates[len(candidates)-1]
	path, err := filepath.Abs(chosen.Path)
	if err != nil {
		return "", &SpawnError{Path: chosen.Path, Err: err}
	}
	if err := CheckExecutable(path); err != nil {
		var spawnErr *SpawnError
		if errors.As(err, &spawnErr) {
			spawnErr.Err = fmt.Errorf("%w (from %s)", spawnErr.Err, chosen.Source)
		}
		return "", err
	}
	return path, nil
}
