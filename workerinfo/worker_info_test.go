package workerinfo

import (
	"encoding/json"
	"testing"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
	"github.com/stretchr/testify/assert"
)

func TestFromBannerDropsBlankLines(t *testing.T) {
	info := FromBanner("/sdk/bin/ServiceRunner", "/src/build/ImageAlter", "default",
		"loading ImageAlter\r\n\n  \nservice initialized\n")
	assert.Equal(t, []string{"loading ImageAlter", "service initialized"}, info.Banner)
	assert.Equal(t, "ImageAlter", info.Name())
}

func TestNameWithoutServiceDir(t *testing.T) {
	assert.Equal(t, "worker", Empty().Name())
}

func TestJSON(t *testing.T) {
	info := WorkerInfo{
		RunnerPath:  "/sdk/bin/ServiceRunner",
		ServiceDir:  "/src/build/ImageAlter",
		ProfileName: "default",
		Banner:      []string{"service initialized"},
	}
	m.In(t).Assert(json.RawMessage(info.JSON()), m.JSONStrEqual(
		`{"runner":"/sdk/bin/ServiceRunner","service":"/src/build/ImageAlter","profile":"default",`+
			`"banner":["service initialized"]}`))
}
