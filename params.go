package main

import (
	"path/filepath"

	"github.com/imagealter/worker-test-harness/framework/ctest"

	"github.com/spf13/cobra"
)

type commandParams struct {
	dir            string
	serviceDir     string
	runnerPath     string
	profilePath    string
	envFile        string
	filter         string
	filters        ctest.RegexFilters
	skipFile       string
	recordFailures string
	jUnitFile      string
	debug          bool
	debugAll       bool
	allowEmpty     bool
	updateFixtures bool
}

func newRootCommand(params *commandParams, run func(*commandParams) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagealter-test-harness [filter]",
		Short: "run the image transform test cases against a worker",
		Long: "Starts the ImageAlter service in a ServiceRunner, sends it every test case in <dir>/cases, " +
			"and compares each output image with the expected .out file. If a filter is given, only cases " +
			"whose names contain it are run.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				params.filter = args[0]
			}
			if params.serviceDir == "" {
				params.serviceDir = filepath.Join(params.dir, "..", "src", "build", "ImageAlter")
			}
			return run(params)
		},
	}
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	fs := cmd.Flags()
	fs.StringVar(&params.dir, "dir", ".", "test directory containing cases/ and test_images/")
	fs.StringVar(&params.serviceDir, "service", "", "built service directory (default <dir>/../src/build/ImageAlter)")
	fs.StringVar(&params.runnerPath, "runner", "", "ServiceRunner executable (overrides $SERVICE_RUNNER and $BPSDK_PATH)")
	fs.StringVar(&params.profilePath, "profile", "", "YAML or JSON file overriding protocol settings")
	fs.StringVar(&params.envFile, "env-file", "", "file of environment variables to load (default <dir>/.env if present)")
	fs.Var(&params.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&params.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.StringVar(&params.skipFile, "skip-file", "", "file listing names of tests not to run, one per line")
	fs.StringVar(&params.recordFailures, "record-failures", "", "write the names of failed tests to this file")
	fs.StringVar(&params.jUnitFile, "junit", "", "write JUnit XML output to the specified path")
	fs.BoolVar(&params.debug, "debug", false, "show the worker transcript for failed tests")
	fs.BoolVar(&params.debugAll, "debug-all", false, "show the worker transcript for all tests, and harness debug logging")
	fs.BoolVar(&params.allowEmpty, "allow-empty", false, "exit successfully even if no test was run")
	fs.BoolVar(&params.updateFixtures, "update-fixtures", false, "save each output as the new expected output instead of comparing")
	return cmd
}
