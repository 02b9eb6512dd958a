package mockworker

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/imagealter/worker-test-harness/framework"
	"github.com/imagealter/worker-test-harness/workerdef"
)

// ExitCodeCrashed is the exit status of a mock worker that simulated a crash.
const ExitCodeCrashed = 70

// Main runs a mock worker as a program. It accepts the same command line as the real runner,
// "[-log level] serviceDir", plus flags that select the mock's behavior. The return value is the
// process exit status.
func Main(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mockworker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	logLevel := fs.String("log", "info", "log level; \"debug\" logs each command to stderr")
	mode := fs.String("mode", string(ModeEcho), "echo, corrupt, crash, silent, or error")
	outputDir := fs.String("out", "", "directory for output images (default: a new temporary directory)")
	banner := fs.String("banner", "", "startup banner")
	allocAck := fs.String("ack", "", "response to allocate")
	echo := fs.Bool("echo", false, "repeat each command before responding")
	crashAfter := fs.Int("crash-after", 0, "successful transforms before crashing, in crash mode")
	flushTrigger := fs.String("flush-trigger", "", "hold results until this command is received")
	uriStyle := fs.String("uri-style", string(workerdef.URIStyleDoubleSlash), "double-slash or triple-slash")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "usage: mockworker [flags] [serviceDir]")
		return 2
	}
	if fs.NArg() == 1 {
		if info, err := os.Stat(fs.Arg(0)); err != nil || !info.IsDir() {
			fmt.Fprintf(stderr, "can't find service directory: %s\n", fs.Arg(0))
			return 1
		}
	}

	switch Mode(*mode) {
	case ModeEcho, ModeCorrupt, ModeCrash, ModeSilent, ModeError:
	default:
		fmt.Fprintf(stderr, "unknown mode %q\n", *mode)
		return 2
	}

	debugLogger := framework.NullLogger()
	if *logLevel == "debug" {
		debugLogger = log.New(stderr, "[mockworker] ", 0)
	}
	w := NewWorker(Options{
		Mode:         Mode(*mode),
		OutputDir:    *outputDir,
		Banner:       *banner,
		AllocAck:     *allocAck,
		EchoCommands: *echo,
		CrashAfter:   *crashAfter,
		FlushTrigger: *flushTrigger,
		URIStyle:     workerdef.URIStyle(*uriStyle),
	}, debugLogger)

	err := w.Serve(stdin, stdout)
	switch {
	case errors.Is(err, ErrCrashed):
		fmt.Fprintln(stderr, "mock worker: simulated crash")
		return ExitCodeCrashed
	case err != nil:
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
