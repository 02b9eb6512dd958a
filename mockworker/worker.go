// Package mockworker is a stand-in for the image transform worker. It speaks the same line protocol
// as the real ServiceRunner, but its "transform" just copies the input image, optionally damaged,
// so that the harness can be tested without the real service.
package mockworker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/imagealter/worker-test-harness/fixtures"
	"github.com/imagealter/worker-test-harness/framework"
	"github.com/imagealter/worker-test-harness/workerdef"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// Mode selects how the mock responds to transform requests.
type Mode string

const (
	// ModeEcho writes the input image unchanged as the output.
	ModeEcho Mode = "echo"
	// ModeCorrupt writes the input image with its last byte changed.
	ModeCorrupt Mode = "corrupt"
	// ModeCrash exits without responding, after CrashAfter successful transforms.
	ModeCrash Mode = "crash"
	// ModeSilent reads transform requests but never responds.
	ModeSilent Mode = "silent"
	// ModeError responds to every transform with a transform error.
	ModeError Mode = "error"
)

// ErrCrashed is returned by Serve when the worker simulated a crash.
var ErrCrashed = errors.New("mock worker crashed")

// Options configures a Worker.
type Options struct {
	Mode Mode

	// OutputDir is where output images are written. Defaults to a new temporary directory.
	OutputDir string

	// Banner is printed at startup, and AllocAck in response to "allocate".
	Banner   string
	AllocAck string

	// EchoCommands makes the mock repeat each input line, as an interactive console would.
	EchoCommands bool

	// CrashAfter is how many transforms succeed before a ModeCrash worker exits.
	CrashAfter int

	// FlushTrigger, if set, holds back each transform result until this command is received.
	FlushTrigger string

	URIStyle workerdef.URIStyle
}

// Worker is a mock worker. Serve can only be called once.
type Worker struct {
	options     Options
	out         io.Writer
	allocated   bool
	transforms  int
	pending     []string
	debugLogger framework.Logger
	lock        sync.Mutex
}

func NewWorker(options Options, debugLogger framework.Logger) *Worker {
	if options.Mode == "" {
		options.Mode = ModeEcho
	}
	if options.Banner == "" {
		options.Banner = "ImageAlter: service initialized"
	}
	if options.AllocAck == "" {
		options.AllocAck = "allocated"
	}
	if options.URIStyle == "" {
		options.URIStyle = workerdef.URIStyleDoubleSlash
	}
	if debugLogger == nil {
		debugLogger = framework.NullLogger()
	}
	return &Worker{options: options, debugLogger: debugLogger}
}

// Serve prints the banner and then handles commands from in until it reaches end-of-file.
func (w *Worker) Serve(in io.Reader, out io.Writer) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.out = out

	if w.options.OutputDir == "" {
		dir, err := os.MkdirTemp("", "mockworker")
		if err != nil {
			return err
		}
		w.options.OutputDir = dir
	}
	w.println(w.options.Banner)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		w.debugLogger.Printf("received: %s", line)
		if w.options.EchoCommands {
			w.println("> " + line)
		}
		if err := w.handleCommand(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (w *Worker) handleCommand(line string) error {
	command := strings.TrimSpace(line)
	switch {
	case command == "":
	case command == workerdef.CommandAllocate:
		w.allocated = true
		w.println(w.options.AllocAck)
	case w.options.FlushTrigger != "" && command == w.options.FlushTrigger:
		for _, p := range w.pending {
			w.println(p)
		}
		w.pending = nil
	case strings.HasPrefix(command, workerdef.CommandInvoke+" "):
		return w.handleInvoke(strings.TrimPrefix(command, workerdef.CommandInvoke+" "))
	default:
		w.println("unrecognized command: " + command)
	}
	return nil
}

func (w *Worker) handleInvoke(rest string) error {
	function, arg, _ := strings.Cut(rest, " ")
	if function != workerdef.FunctionTransform {
		w.respond(errorResult("bp.internalError", "unknown function invoked"))
		return nil
	}
	if !w.allocated {
		w.respond(errorResult("bp.noInstance", "no instance allocated"))
		return nil
	}
	if len(arg) < 2 || arg[0] != '\'' || arg[len(arg)-1] != '\'' {
		w.respond(errorResult("bp.invalidArguments", "argument must be quoted"))
		return nil
	}
	args := ldvalue.Parse([]byte(strings.ReplaceAll(arg[1:len(arg)-1], `\'`, "'")))
	if args.Type() != ldvalue.ObjectType {
		w.respond(errorResult("bp.invalidArguments", "argument is not a JSON object"))
		return nil
	}

	switch w.options.Mode {
	case ModeSilent:
		return nil
	case ModeCrash:
		if w.transforms >= w.options.CrashAfter {
			return ErrCrashed
		}
	case ModeError:
		w.respond(errorResult("bp.transformFailed", "simulated failure"))
		return nil
	}

	path, err := workerdef.PathFromFileURI(args.GetByKey(workerdef.ParamFile).StringValue())
	if err != nil {
		w.respond(errorResult("bp.fileAccessError", "invalid file URI"))
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		w.respond(errorResult("bp.fileAccessError", err.Error()))
		return nil
	}
	info := fixtures.DescribeImage(data)
	if w.options.Mode == ModeCorrupt && len(data) > 0 {
		data = append([]byte(nil), data...)
		data[len(data)-1] ^= 0xff
	}

	w.transforms++
	outPath := filepath.Join(w.options.OutputDir, fmt.Sprintf("out-%d%s", w.transforms, filepath.Ext(path)))
	if err := os.WriteFile(outPath, data, 0o644); err != nil { //nolint:gosec
		w.respond(errorResult("bp.transformFailed", err.Error()))
		return nil
	}

	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name(workerdef.ParamFile).String(workerdef.FileURIFromPath(outPath, w.options.URIStyle))
	if info.Width.IsDefined() {
		obj.Name("orig_width").Int(info.Width.Value())
		obj.Name("orig_height").Int(info.Height.Value())
		obj.Name("width").Int(info.Width.Value())
		obj.Name("height").Int(info.Height.Value())
	}
	obj.End()
	w.respond(w.options.AllocAck + ":" + string(writer.Bytes()))
	return nil
}

func errorResult(code, message string) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name("error").String(code)
	obj.Name("verboseError").String(message)
	obj.End()
	return string(writer.Bytes())
}

func (w *Worker) respond(result string) {
	if w.options.FlushTrigger != "" {
		w.pending = append(w.pending, result)
		return
	}
	w.println(result)
}

func (w *Worker) println(s string) {
	_, _ = fmt.Fprintln(w.out, s)
}
