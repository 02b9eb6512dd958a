package fixtures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imagealter/worker-test-harness/framework/helpers"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

const (
	ExpectedExtension = ".out"
	GotExtension      = ".got"

	// SourceFileParam is the case property naming the input image.
	SourceFileParam = "file"
)

var definitionExtensions = []string{".json", ".yaml", ".yml"} //nolint:gochecknoglobals

// TestCase is one transform to run. It is not modified after loading.
type TestCase struct {
	// Name is the definition file's base name without extension.
	Name string

	// DefinitionPath is the absolute path of the definition file.
	DefinitionPath string

	// SourceFile is the input image path as written in the definition, relative to the images root.
	SourceFile string

	// Params are the definition's other properties as compact JSON.
	Params map[string]json.RawMessage

	// LoadError is set if the definition could not be read or is invalid. Only Name and
	// DefinitionPath are meaningful then.
	LoadError error
}

// ExpectedPath is where the golden output for this case lives.
func (tc TestCase) ExpectedPath() string {
	return siblingPath(tc.DefinitionPath, ExpectedExtension)
}

// GotPath is where actual output is saved when the case fails.
func (tc TestCase) GotPath() string {
	return siblingPath(tc.DefinitionPath, GotExtension)
}

// SourcePath returns the absolute path of the input image.
func (tc TestCase) SourcePath(imagesRoot string) (string, error) {
	return filepath.Abs(filepath.Join(imagesRoot, filepath.FromSlash(tc.SourceFile)))
}

func caseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func siblingPath(path, extension string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + extension
}

// IsDefinitionFile returns true if the file name has one of the extensions used for case definitions.
func IsDefinitionFile(name string) bool {
	return helpers.SliceContains(strings.ToLower(filepath.Ext(name)), definitionExtensions)
}

// LoadTestCases reads every case definition in casesDir, in lexical order of file name. Other files,
// such as fixtures and saved output, are ignored.
//
// A definition that can't be loaded is still returned, with LoadError set, so that it fails as a
// case of its own. Two definitions with the same base name are an error for the whole directory,
// since they would share fixture files.
func LoadTestCases(casesDir string) ([]TestCase, error) {
	entries, err := os.ReadDir(casesDir)
	if err != nil {
		return nil, fmt.Errorf("can't read test cases: %w", err)
	}
	var ret []TestCase
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		path := filepath.Join(casesDir, entry.Name())
		tc, err := LoadTestCase(path)
		if err != nil {
			tc = TestCase{Name: caseName(path), DefinitionPath: path, LoadError: err}
		}
		if previous, ok := seen[tc.Name]; ok {
			return nil, fmt.Errorf("test case %q is defined twice (%s and %s)", tc.Name, previous, entry.Name())
		}
		seen[tc.Name] = entry.Name()
		ret = append(ret, tc)
	}
	return ret, nil
}

// LoadTestCase reads a single case definition file.
func LoadTestCase(path string) (TestCase, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return TestCase{}, err
	}
	data, err := os.ReadFile(absPath) //nolint:gosec
	if err != nil {
		return TestCase{}, fmt.Errorf("can't read test case: %w", err)
	}
	var props map[string]json.RawMessage
	if err := helpers.ParseJSONOrYAML(data, &props); err != nil || props == nil {
		return TestCase{}, fmt.Errorf("test case %s is not a JSON or YAML object", filepath.Base(path))
	}

	file := ldvalue.Parse(props[SourceFileParam])
	if !file.IsString() || file.StringValue() == "" {
		return TestCase{}, fmt.Errorf("test case %s must have a non-empty string property %q, got %s",
			filepath.Base(path), SourceFileParam, file.JSONString())
	}

	tc := TestCase{
		Name:           caseName(absPath),
		DefinitionPath: absPath,
		SourceFile:     file.StringValue(),
		Params:         make(map[string]json.RawMessage, len(props)-1),
	}
	for name, value := range props {
		if name == SourceFileParam {
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, value); err != nil {
			return TestCase{}, fmt.Errorf("test case %s: property %q: %w", filepath.Base(path), name, err)
		}
		tc.Params[name] = compact.Bytes()
	}
	return tc, nil
}
