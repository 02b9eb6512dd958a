package mockworker

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imagealter/worker-test-harness/workerdef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	source string
	outDir string
}

func newSession(t *testing.T, sourceName string, content []byte) session {
	dir := t.TempDir()
	source := filepath.Join(dir, sourceName)
	require.NoError(t, os.WriteFile(source, content, 0o600))
	return session{source: source, outDir: filepath.Join(dir)}
}

func (s session) transformCommand(t *testing.T) string {
	cmd, err := workerdef.EncodeTransform(workerdef.TransformRequest{
		File:   workerdef.FileURIFromPath(s.source, workerdef.URIStyleDoubleSlash),
		Params: map[string]json.RawMessage{"width": json.RawMessage(`100`)},
	}, "")
	require.NoError(t, err)
	return cmd
}

func (s session) run(t *testing.T, options Options, input string) ([]string, error) {
	options.OutputDir = s.outDir
	var out bytes.Buffer
	err := NewWorker(options, nil).Serve(strings.NewReader(input), &out)
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n"), err
}

func TestEchoMode(t *testing.T) {
	s := newSession(t, "cat.png", []byte("not really a png"))
	lines, err := s.run(t, Options{}, workerdef.EncodeAllocate()+s.transformCommand(t))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "ImageAlter: service initialized", lines[0])
	assert.Equal(t, "allocated", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "allocated:{"), lines[2])

	resp, err := workerdef.DecodeResponse(lines[2])
	require.NoError(t, err)
	path, err := resp.LocalPath()
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "not really a png", string(data))
}

func TestCorruptMode(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	lines, err := s.run(t, Options{Mode: ModeCorrupt}, "allocate\n"+s.transformCommand(t))
	require.NoError(t, err)
	resp, err := workerdef.DecodeResponse(lines[len(lines)-1])
	require.NoError(t, err)
	path, _ := resp.LocalPath()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 'c' ^ 0xff}, data)
}

func TestCrashMode(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	input := "allocate\n" + s.transformCommand(t) + s.transformCommand(t)
	lines, err := s.run(t, Options{Mode: ModeCrash, CrashAfter: 1}, input)
	assert.ErrorIs(t, err, ErrCrashed)
	assert.Len(t, lines, 3) // banner, ack, one result
}

func TestErrorMode(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	lines, err := s.run(t, Options{Mode: ModeError}, "allocate\n"+s.transformCommand(t))
	require.NoError(t, err)
	_, err = workerdef.DecodeResponse(lines[len(lines)-1])
	var workerErr *workerdef.WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "bp.transformFailed", workerErr.Code)
}

func TestSilentMode(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	lines, err := s.run(t, Options{Mode: ModeSilent}, "allocate\n"+s.transformCommand(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"ImageAlter: service initialized", "allocated"}, lines)
}

func TestTransformBeforeAllocate(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	lines, err := s.run(t, Options{}, s.transformCommand(t))
	require.NoError(t, err)
	assert.Contains(t, lines[len(lines)-1], "bp.noInstance")
}

func TestMissingSourceFile(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	require.NoError(t, os.Remove(s.source))
	lines, err := s.run(t, Options{}, "allocate\n"+s.transformCommand(t))
	require.NoError(t, err)
	_, err = workerdef.DecodeResponse(lines[len(lines)-1])
	var workerErr *workerdef.WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "bp.fileAccessError", workerErr.Code)
}

func TestSingleQuoteInFileName(t *testing.T) {
	s := newSession(t, "o'brien.png", []byte("abc"))
	lines, err := s.run(t, Options{}, "allocate\n"+s.transformCommand(t))
	require.NoError(t, err)
	_, err = workerdef.DecodeResponse(lines[len(lines)-1])
	assert.NoError(t, err)
}

func TestFlushTriggerHoldsResults(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	lines, err := s.run(t, Options{FlushTrigger: "show"}, "allocate\n"+s.transformCommand(t))
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	lines, err = s.run(t, Options{FlushTrigger: "show"}, "allocate\n"+s.transformCommand(t)+"show\n")
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestEchoCommands(t *testing.T) {
	s := newSession(t, "cat.png", []byte("abc"))
	lines, err := s.run(t, Options{EchoCommands: true}, "allocate\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"ImageAlter: service initialized", "> allocate", "allocated"}, lines)
}

func TestMainArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, Main([]string{"-mode", "sideways"}, strings.NewReader(""), &stdout, &stderr))
	assert.Equal(t, 1, Main([]string{filepath.Join(t.TempDir(), "missing")}, strings.NewReader(""), &stdout, &stderr))

	stdout.Reset()
	code := Main([]string{"-log", "debug", "-out", t.TempDir(), t.TempDir()}, strings.NewReader("allocate\n"), &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, "ImageAlter: service initialized\nallocated\n", stdout.String())
}
