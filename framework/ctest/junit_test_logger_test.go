package ctest

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/imagealter/worker-test-harness/workerinfo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJUnitReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")
	info := workerinfo.FromBanner("/sdk/bin/ServiceRunner", "/src/build/ImageAlter", "default", "ready\n")
	var filters RegexFilters
	require.NoError(t, filters.MustNotMatch.Set("rotate"))
	logger := NewJUnitTestLogger(path, func() workerinfo.WorkerInfo { return info }, filters)

	results := Run(TestConfiguration{TestLogger: logger}, func(t *T) {
		t.Run("resize_small", func(t *T) {
			t.Debug("transcript line")
			t.Note("4x3 -> 2x2")
		})
		t.Run("grayscale", func(t *T) {
			t.Debug("transcript line")
			t.Errorf("output does not match")
		})
		t.Run("crop", func(t *T) { t.SkipWithReason("worker is no longer running") })
	})
	require.NoError(t, logger.EndLog(results))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc jUnitXMLDocument
	require.NoError(t, xml.Unmarshal(data, &doc))

	require.Len(t, doc.Suites, 1)
	suite := doc.Suites[0]
	assert.Equal(t, "ImageAlter transform tests", suite.Name)
	assert.Equal(t, 3, suite.Tests)
	assert.Equal(t, 1, suite.Failures)

	properties := make(map[string]string)
	for _, p := range suite.Properties {
		properties[p.Name] = p.Value
	}
	assert.JSONEq(t, string(info.JSON()), properties["tests.worker.info"])
	assert.Equal(t, `"rotate"`, properties["tests.filter.mustNotMatch"])

	require.Len(t, suite.TestCases, 3)
	passed, failed, skipped := suite.TestCases[0], suite.TestCases[1], suite.TestCases[2]

	assert.Equal(t, "resize_small", passed.Name)
	assert.Equal(t, "4x3 -> 2x2", passed.SystemOut)
	assert.Nil(t, passed.Failure)
	assert.Nil(t, passed.SkipMessage)

	assert.Equal(t, "grayscale", failed.Name)
	require.NotNil(t, failed.Failure)
	assert.Contains(t, failed.Failure.Message, "output does not match")
	assert.Contains(t, failed.Failure.Contents, "transcript line")

	assert.Equal(t, "crop", skipped.Name)
	require.NotNil(t, skipped.SkipMessage)
	assert.Equal(t, "worker is no longer running", skipped.SkipMessage.Message)
}

func TestJUnitReportGroupsNestedTestsBySuite(t *testing.T) {
	logger := NewJUnitTestLogger(filepath.Join(t.TempDir(), "junit.xml"), nil, RegexFilters{})
	_ = Run(TestConfiguration{TestLogger: logger}, func(t *T) {
		t.Run("resize", func(t *T) {
			t.Run("small", func(*T) {})
			t.Run("large", func(*T) {})
		})
		t.Run("grayscale", func(*T) {})
	})

	doc := logger.buildDocument()
	var names []string
	for _, s := range doc.Suites {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"worker transform tests", "worker transform tests: resize"}, names)
	assert.Equal(t, 2, doc.Suites[0].Tests) // the "resize" group and grayscale
	assert.Equal(t, 2, doc.Suites[1].Tests)
}
