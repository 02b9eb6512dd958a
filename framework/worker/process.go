package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/imagealter/worker-test-harness/framework"
	"github.com/imagealter/worker-test-harness/framework/helpers"
)

const (
	// DefaultChunkSize is the most bytes a single read from the worker's output will return.
	DefaultChunkSize = 1024

	// DefaultShutdownTimeout is how long Close waits for the worker to exit on its own after its
	// input is closed.
	DefaultShutdownTimeout = 2 * time.Second
)

// Process is a running worker subprocess with a line-oriented input and a raw output stream.
// Standard output and standard error are merged into one stream, in the order they were written.
//
// A Process is not safe for concurrent readers: only one ReadUntil call should consume Chunks at
// a time.
type Process struct {
	path            string
	cmd             *exec.Cmd
	stdin           io.WriteCloser
	output          *os.File
	chunks          chan []byte
	exited          chan struct{}
	closing         chan struct{}
	exitErr         error
	logger          framework.Logger
	shutdownTimeout time.Duration
	writeLock       sync.Mutex
	closeOnce       sync.Once
	closeErr        error
}

type processConfig struct {
	env             []string
	dir             string
	logger          framework.Logger
	chunkSize       int
	shutdownTimeout time.Duration
	transcript      io.Writer
}

// ProcessOption is the interface for optional configuration parameters to Spawn.
type ProcessOption helpers.ConfigOption[processConfig]

// ProcessEnv adds environment variables, in "NAME=value" form, to those inherited from this process.
func ProcessEnv(vars ...string) ProcessOption {
	return helpers.ConfigOptionFunc[processConfig](func(c *processConfig) error {
		for _, v := range vars {
			if !strings.Contains(v, "=") {
				return fmt.Errorf("environment variable %q is not in NAME=value form", v)
			}
		}
		c.env = append(c.env, vars...)
		return nil
	})
}

// ProcessDir sets the working directory of the worker.
func ProcessDir(dir string) ProcessOption {
	return helpers.ConfigOptionFunc[processConfig](func(c *processConfig) error {
		c.dir = dir
		return nil
	})
}

// ProcessLogger sets where lifecycle messages (start, exit, kill) are logged.
func ProcessLogger(logger framework.Logger) ProcessOption {
	return helpers.ConfigOptionFunc[processConfig](func(c *processConfig) error {
		c.logger = logger
		return nil
	})
}

// ProcessChunkSize sets the maximum size of each chunk delivered by Chunks.
func ProcessChunkSize(size int) ProcessOption {
	return helpers.ConfigOptionFunc[processConfig](func(c *processConfig) error {
		if size <= 0 {
			return fmt.Errorf("invalid chunk size %d", size)
		}
		c.chunkSize = size
		return nil
	})
}

// ProcessShutdownTimeout sets how long Close waits before killing the worker.
func ProcessShutdownTimeout(timeout time.Duration) ProcessOption {
	return helpers.ConfigOptionFunc[processConfig](func(c *processConfig) error {
		c.shutdownTimeout = timeout
		return nil
	})
}

// ProcessTranscript copies all worker output to w as it arrives, before it is delivered to readers.
func ProcessTranscript(w io.Writer) ProcessOption {
	return helpers.ConfigOptionFunc[processConfig](func(c *processConfig) error {
		c.transcript = w
		return nil
	})
}

// Spawn starts the worker. The executable is checked first so that a bad path produces a clear
// *SpawnError rather than a generic exec failure.
func Spawn(executablePath string, args []string, options ...ProcessOption) (*Process, error) {
	config := processConfig{
		logger:          framework.NullLogger(),
		chunkSize:       DefaultChunkSize,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	if err := helpers.ApplyOptions(&config, options...); err != nil {
		return nil, &SpawnError{Path: executablePath, Err: err}
	}
	if err := CheckExecutable(executablePath); err != nil {
		return nil, err
	}

	cmd := exec.Command(executablePath, args...) //nolint:gosec
	cmd.Dir = config.dir
	if len(config.env) != 0 {
		cmd.Env = append(os.Environ(), config.env...)
	}

	outputReader, outputWriter, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Path: executablePath, Err: err}
	}
	cmd.Stdout = outputWriter
	cmd.Stderr = outputWriter
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = outputReader.Close()
		_ = outputWriter.Close()
		return nil, &SpawnError{Path: executablePath, Err: err}
	}
	if err := cmd.Start(); err != nil {
		_ = outputReader.Close()
		_ = outputWriter.Close()
		return nil, &SpawnError{Path: executablePath, Err: err}
	}
	// the child has its own copy now; ours must be closed or we would never see EOF
	_ = outputWriter.Close()

	p := &Process{
		path:            executablePath,
		cmd:             cmd,
		stdin:           stdin,
		output:          outputReader,
		chunks:          make(chan []byte),
		exited:          make(chan struct{}),
		closing:         make(chan struct{}),
		logger:          config.logger,
		shutdownTimeout: config.shutdownTimeout,
	}
	p.logger.Printf("Started worker %s (pid %d) with args %v", executablePath, p.Pid(), args)

	go p.pumpOutput(config.chunkSize, config.transcript)
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *Process) pumpOutput(chunkSize int, transcript io.Writer) {
	defer close(p.chunks)
	buf := make([]byte, chunkSize)
	for {
		n, err := p.output.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if transcript != nil {
				_, _ = transcript.Write(chunk)
			}
			select {
			case p.chunks <- chunk:
			case <-p.closing:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Chunks returns the worker's output as it arrives. The channel is closed when the output reaches
// end-of-file, which normally means the worker has exited, or when Close is called.
func (p *Process) Chunks() <-chan []byte {
	return p.chunks
}

// WriteLine sends one line of input to the worker, adding the trailing newline if it is missing.
func (p *Process) WriteLine(text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	if !p.Alive() {
		return fmt.Errorf("%w: worker exited before input could be written (%s)", ErrChannelClosed, p.exitDescription())
	}
	if _, err := io.WriteString(p.stdin, text); err != nil {
		return fmt.Errorf("%w: %s", ErrChannelClosed, err)
	}
	return nil
}

// Alive returns true if the worker has not yet exited.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Pid returns the operating system process ID of the worker.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// ExitError returns the result of waiting for the worker, or nil if it is still running or exited
// with status 0.
func (p *Process) ExitError() error {
	select {
	case <-p.exited:
		return p.exitErr
	default:
		return nil
	}
}

func (p *Process) exitDescription() string {
	var exitErr *exec.ExitError
	switch err := p.ExitError(); {
	case err == nil:
		return "exit status 0"
	case errors.As(err, &exitErr):
		return exitErr.ProcessState.String()
	default:
		return err.Error()
	}
}

// Close shuts the worker down: its input is closed, and if it has not exited within the shutdown
// timeout it is killed. Close always reaps the process and may be called any number of times.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		timer := time.NewTimer(p.shutdownTimeout)
		defer timer.Stop()
		select {
		case <-p.exited:
		case <-timer.C:
			p.logger.Printf("Worker (pid %d) did not exit within %s; killing it", p.Pid(), p.shutdownTimeout)
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.closeErr = fmt.Errorf("could not kill worker: %w", err)
			}
			<-p.exited
		}
		p.logger.Printf("Worker (pid %d) finished: %s", p.Pid(), p.exitDescription())
		close(p.closing)
		_ = p.output.Close()
	})
	return p.closeErr
}

// CheckExecutable verifies that path names an executable regular file.
func CheckExecutable(path string) error {
	if path == "" {
		return &SpawnError{Path: path, Err: errors.New("no executable path was configured")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &SpawnError{Path: path, Err: err}
	}
	if info.IsDir() {
		return &SpawnError{Path: path, Err: errors.New("path is a directory")}
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return &SpawnError{Path: path, Err: errors.New("file is not executable")}
	}
	return nil
}
