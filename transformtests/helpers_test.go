package transformtests

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/imagealter/worker-test-harness/framework/ctest"
	"github.com/imagealter/worker-test-harness/mockworker"
	"github.com/imagealter/worker-test-harness/workerdef"

	"github.com/stretchr/testify/require"
)

const mockWorkerVar = "TRANSFORMTESTS_MOCK_WORKER"

// TestMain lets the test binary act as the worker: with mockWorkerVar set, it runs the mock
// worker on its own stdin and stdout.
func TestMain(m *testing.M) {
	if os.Getenv(mockWorkerVar) != "" {
		os.Exit(mockworker.Main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

type suiteFixture struct {
	casesDir   string
	imagesDir  string
	outputDir  string
	serviceDir string
}

func newSuiteFixture(t *testing.T) suiteFixture {
	dir := t.TempDir()
	f := suiteFixture{
		casesDir:   filepath.Join(dir, "cases"),
		imagesDir:  filepath.Join(dir, "test_images"),
		outputDir:  filepath.Join(dir, "output"),
		serviceDir: filepath.Join(dir, "ImageAlter"),
	}
	for _, d := range []string{f.casesDir, f.imagesDir, f.outputDir, f.serviceDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return f
}

func (f suiteFixture) addImage(t *testing.T, name string, data []byte) {
	require.NoError(t, os.WriteFile(filepath.Join(f.imagesDir, name), data, 0o600))
}

// addCase writes a case definition, and its expected output unless expected is nil.
func (f suiteFixture) addCase(t *testing.T, name, definition string, expected []byte) {
	require.NoError(t, os.WriteFile(filepath.Join(f.casesDir, name+".json"), []byte(definition), 0o600))
	if expected != nil {
		require.NoError(t, os.WriteFile(filepath.Join(f.casesDir, name+".out"), expected, 0o600))
	}
}

func (f suiteFixture) gotPath(name string) string {
	return filepath.Join(f.casesDir, name+".got")
}

func testProfile(f suiteFixture, mockArgs ...string) workerdef.Profile {
	p := workerdef.DefaultProfile()
	p.Name = "test"
	p.InitTimeout = 5 * time.Second
	p.AllocTimeout = 5 * time.Second
	p.ResultPattern = `(?m)\}\s*$`
	p.FlushTrigger = ""
	p.WorkerArgs = append([]string{"-log", "debug", "-out", f.outputDir}, mockArgs...)
	return p
}

func (f suiteFixture) params(t *testing.T, mockArgs ...string) SuiteParams {
	exe, err := os.Executable()
	require.NoError(t, err)
	return SuiteParams{
		CasesDir:   f.casesDir,
		ImagesDir:  f.imagesDir,
		RunnerPath: exe,
		ServiceDir: f.serviceDir,
		Profile:    testProfile(f, mockArgs...),
		WorkerEnv:  []string{mockWorkerVar + "=1"},
	}
}

func (f suiteFixture) sessionParams(t *testing.T, mockArgs ...string) SessionParams {
	p := f.params(t, mockArgs...)
	return SessionParams{
		RunnerPath:      p.RunnerPath,
		ServiceDir:      p.ServiceDir,
		Profile:         p.Profile,
		WorkerEnv:       p.WorkerEnv,
		ShutdownTimeout: 5 * time.Second,
	}
}

func makePNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// resultsByName indexes the leaf results, which are named after the test cases.
func resultsByName(results ctest.Results) map[string]ctest.TestResult {
	ret := make(map[string]ctest.TestResult)
	for _, r := range results.Tests {
		if len(r.TestID) != 0 {
			ret[r.TestID.Name()] = r
		}
	}
	for _, r := range results.Skipped {
		ret[r.TestID.Name()] = r
	}
	return ret
}
