package worker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/imagealter/worker-test-harness/framework/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn(filepath.Join(t.TempDir(), "no-such-runner"), nil)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSpawnDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := Spawn(dir, nil)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, dir, spawnErr.Path)
	assert.Contains(t, err.Error(), "directory")
}

func TestSpawnNonExecutableFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no executable bit on Windows")
	}
	path := filepath.Join(t.TempDir(), "ServiceRunner")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o600))
	_, err := Spawn(path, nil)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Contains(t, err.Error(), "not executable")
}

func TestSpawnRejectsBadOption(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	_, err = Spawn(exe, nil, ProcessChunkSize(0))
	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}

func TestWriteLineAndReadResponse(t *testing.T) {
	p := spawnHelper(t, "echo")

	banner := ReadUntil(p, 5*time.Second, ReadPattern(regexp.MustCompile(`ready\n`)))
	require.True(t, banner.Matched, banner.Status())

	require.NoError(t, p.WriteLine("allocate"))
	result := ReadUntil(p, 5*time.Second, ReadPattern(regexp.MustCompile(`echo: allocate\n`)))
	assert.True(t, result.Matched, result.Status())
	assert.Equal(t, "echo: allocate\n", result.String())
	assert.True(t, p.Alive())
	assert.NotZero(t, p.Pid())
}

func TestOutputMergesStdoutAndStderr(t *testing.T) {
	p := spawnHelper(t, "stderr")
	result := ReadUntil(p, 5*time.Second)
	require.True(t, result.Closed, result.Status())
	assert.Contains(t, result.String(), "to stdout\n")
	assert.Contains(t, result.String(), "to stderr\n")
}

func TestChannelClosedWhenWorkerExits(t *testing.T) {
	p := spawnHelper(t, "exit")

	result := ReadUntil(p, 5*time.Second)
	assert.True(t, result.Closed, result.Status())
	assert.Equal(t, "bye\n", result.String())

	require.Eventually(t, func() bool { return !p.Alive() }, 5*time.Second, 10*time.Millisecond)
	assert.Error(t, p.ExitError())

	err := p.WriteLine("inv transform '{}'")
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestChunkSizeLimitsReads(t *testing.T) {
	p := spawnHelper(t, "long-line", ProcessChunkSize(4))
	all := helpers.RequireValue(t, p.Chunks(), 5*time.Second)
	assert.Equal(t, "abcd", string(all))
	for chunk := range p.Chunks() {
		assert.LessOrEqual(t, len(chunk), 4)
		all = append(all, chunk...)
	}
	assert.Equal(t, "abcdefghij", string(all))
}

func TestProcessDirSetsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	p := spawnHelper(t, "pwd", ProcessDir(dir))
	result := ReadUntil(p, 5*time.Second)
	require.True(t, result.Closed, result.Status())

	expected, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	actual, err := filepath.EvalSymlinks(strings.TrimSpace(result.String()))
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestTranscriptReceivesAllOutput(t *testing.T) {
	var transcript bytes.Buffer
	p := spawnHelper(t, "exit", ProcessTranscript(&transcript))
	result := ReadUntil(p, 5*time.Second)
	require.True(t, result.Closed)
	assert.Equal(t, "bye\n", transcript.String())
}

func TestCloseKillsWorkerThatIgnoresInput(t *testing.T) {
	p := spawnHelper(t, "hang", ProcessShutdownTimeout(100*time.Millisecond))
	ReadUntil(p, 5*time.Second, ReadPattern(regexp.MustCompile(`listening`)))

	start := time.Now()
	require.NoError(t, p.Close())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, p.Alive())

	// the output stream is closed too, so readers cannot block forever
	_, ok := <-p.Chunks()
	assert.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := spawnHelper(t, "echo")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.Alive())
	assert.True(t, errors.Is(p.WriteLine("allocate"), ErrChannelClosed))
}
