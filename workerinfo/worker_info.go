// Package workerinfo describes the worker process that a test run is talking to.
package workerinfo

import (
	"strings"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// WorkerInfo is what the harness knows about the worker once the handshake has completed.
type WorkerInfo struct {
	// RunnerPath is the executable that was spawned, such as ".../bin/ServiceRunner".
	RunnerPath string

	// ServiceDir is the built service directory passed to the runner.
	ServiceDir string

	// ProfileName identifies the protocol profile in use; "default" if none was loaded.
	ProfileName string

	// Banner is the output the worker produced before it was ready, with blank lines removed.
	Banner []string
}

// Empty returns a WorkerInfo for a run where the worker was never started.
func Empty() WorkerInfo {
	return WorkerInfo{}
}

// FromBanner builds a WorkerInfo from raw handshake output.
func FromBanner(runnerPath, serviceDir, profileName string, raw string) WorkerInfo {
	info := WorkerInfo{RunnerPath: runnerPath, ServiceDir: serviceDir, ProfileName: profileName}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			info.Banner = append(info.Banner, line)
		}
	}
	return info
}

// Name is a short label for reports.
func (w WorkerInfo) Name() string {
	if w.ServiceDir == "" {
		return "worker"
	}
	parts := strings.Split(strings.TrimRight(strings.ReplaceAll(w.ServiceDir, `\`, "/"), "/"), "/")
	return parts[len(parts)-1]
}

// JSON serializes the info for the JUnit report properties.
func (w WorkerInfo) JSON() []byte {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name("runner").String(w.RunnerPath)
	obj.Name("service").String(w.ServiceDir)
	obj.Name("profile").String(w.ProfileName)
	arr := obj.Name("banner").Array()
	for _, line := range w.Banner {
		arr.String(line)
	}
	arr.End()
	obj.End()
	return writer.Bytes()
}
