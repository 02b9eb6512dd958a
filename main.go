package main

import (
	"bufio"
	_ "embed" // this is required in order for go:embed to work
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/imagealter/worker-test-harness/framework"
	"github.com/imagealter/worker-test-harness/framework/ctest"
	"github.com/imagealter/worker-test-harness/framework/worker"
	"github.com/imagealter/worker-test-harness/transformtests"
	"github.com/imagealter/worker-test-harness/workerdef"
	"github.com/imagealter/worker-test-harness/workerinfo"

	"github.com/joho/godotenv"
)

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

var errTestsFailed = errors.New("some tests failed")

func main() {
	fmt.Printf("imagealter-test-harness v%s\n", strings.TrimSpace(versionString))

	var params commandParams
	cmd := newRootCommand(&params, func(p *commandParams) error {
		results, err := run(*p)
		if err != nil {
			return err
		}
		return checkResults(results, p.allowEmpty)
	})
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// checkResults decides the exit status: every attempted test must have passed, and unless
// allowEmpty is set, at least one must have been attempted.
func checkResults(results ctest.Results, allowEmpty bool) error {
	summary := results.Summary()
	if !results.OK() || !summary.OK() {
		return errTestsFailed
	}
	if summary.Attempted == 0 && !allowEmpty {
		return errors.New("no test cases were run (use --allow-empty if that is expected)")
	}
	return nil
}

func run(params commandParams) (ctest.Results, error) {
	if err := loadEnvFile(params); err != nil {
		return ctest.Results{}, err
	}
	if params.skipFile != "" {
		if err := loadSuppressions(&params); err != nil {
			return ctest.Results{}, err
		}
	}

	runnerPath, err := worker.LocateExecutable(worker.RunnerCandidates(params.dir, params.runnerPath))
	if err != nil {
		return ctest.Results{}, err
	}
	serviceDir, err := filepath.Abs(params.serviceDir)
	if err != nil {
		return ctest.Results{}, err
	}
	if info, err := os.Stat(serviceDir); err != nil || !info.IsDir() {
		return ctest.Results{}, fmt.Errorf("can't find built service to test: %s", serviceDir)
	}

	profile := workerdef.DefaultProfile()
	if params.profilePath != "" {
		if profile, err = workerdef.LoadProfile(params.profilePath); err != nil {
			return ctest.Results{}, err
		}
	}

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(os.Stdout, "", log.LstdFlags)
	}
	mainDebugLogger.Printf("Using runner %s, service %s, profile %q", runnerPath, serviceDir, profile.Name)

	filter := ctest.AllFilters{ctest.SubstringFilter(params.filter), params.filters}
	fmt.Println()
	filter.Describe(os.Stdout)

	info := workerinfo.Empty()
	var testLogger ctest.TestLogger
	consoleLogger := ctest.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	if params.jUnitFile == "" {
		testLogger = consoleLogger
	} else {
		testLogger = &ctest.MultiTestLogger{Loggers: []ctest.TestLogger{
			consoleLogger,
			ctest.NewJUnitTestLogger(params.jUnitFile, func() workerinfo.WorkerInfo { return info }, params.filters),
		}}
	}

	results, err := transformtests.RunTransformTestSuite(
		transformtests.SuiteParams{
			CasesDir:       filepath.Join(params.dir, "cases"),
			ImagesDir:      filepath.Join(params.dir, "test_images"),
			RunnerPath:     runnerPath,
			ServiceDir:     serviceDir,
			WorkDir:        params.dir,
			Profile:        profile,
			UpdateFixtures: params.updateFixtures,
			DebugLogger:    mainDebugLogger,
			OnWorkerReady: func(i workerinfo.WorkerInfo) {
				info = i
				for _, line := range i.Banner {
					mainDebugLogger.Printf("worker: %s", line)
				}
			},
		},
		filter,
		testLogger,
	)
	if err != nil {
		return ctest.Results{}, err
	}

	fmt.Println()
	if err := testLogger.EndLog(results); err != nil {
		return ctest.Results{}, fmt.Errorf("error writing log: %v", err)
	}

	if params.recordFailures != "" {
		if err := recordFailures(params.recordFailures, results); err != nil {
			return ctest.Results{}, err
		}
	}

	return results, nil
}

// loadEnvFile adds variables such as BPSDK_PATH from a .env file without overriding any that are
// already set. The default file is optional; one named with --env-file is not.
func loadEnvFile(params commandParams) error {
	path := params.envFile
	if path == "" {
		path = filepath.Join(params.dir, ".env")
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("cannot load environment file %s: %w", path, err)
	}
	return nil
}

func recordFailures(path string, results ctest.Results) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("cannot create suppression file: %v", err)
	}
	for _, test := range results.Failures {
		if len(test.TestID) != 0 {
			fmt.Fprintln(f, test.TestID)
		}
	}
	return f.Close()
}

func loadSuppressions(params *commandParams) error {
	file, err := os.Open(params.skipFile)
	if err != nil {
		return fmt.Errorf("cannot open provided suppression file: %v", err)
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		// Ignore blank lines and comments
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		escaped := "^" + regexp.QuoteMeta(strings.TrimSpace(line)) + "$"
		if err := params.filters.MustNotMatch.Set(escaped); err != nil {
			return fmt.Errorf("cannot parse suppression: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("while processing suppression file: %v", err)
	}
	return nil
}
