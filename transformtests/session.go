package transformtests

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/imagealter/worker-test-harness/framework"
	"github.com/imagealter/worker-test-harness/framework/helpers"
	"github.com/imagealter/worker-test-harness/framework/worker"
	"github.com/imagealter/worker-test-harness/workerdef"
	"github.com/imagealter/worker-test-harness/workerinfo"

	"golang.org/x/exp/slices"
)

// SessionState is where a Session is in the worker lifecycle.
type SessionState string

const (
	StateSpawned            SessionState = "spawned"
	StateAwaitingInitBanner SessionState = "awaiting init banner"
	StateAllocating         SessionState = "allocating"
	StateAwaitingAllocAck   SessionState = "awaiting allocation"
	StateReady              SessionState = "ready"
	StateAwaitingResult     SessionState = "awaiting result"
	// StateFaulted means the worker is gone. Nothing more can be sent to it.
	StateFaulted SessionState = "faulted"
	StateClosed  SessionState = "closed"
)

// SessionParams configures StartSession.
type SessionParams struct {
	RunnerPath string
	// ServiceDir is passed to the runner as its last argument, if not empty.
	ServiceDir string
	// WorkDir is the worker's working directory; empty means the harness's own.
	WorkDir    string
	Profile    workerdef.Profile
	// WorkerEnv holds extra "NAME=value" variables for the worker.
	WorkerEnv []string
	// Transcript receives every line of worker output and every command sent to it.
	Transcript framework.Logger
	// DebugLogger receives process lifecycle messages.
	DebugLogger     framework.Logger
	ShutdownTimeout time.Duration
}

// Session is one running worker that has completed its handshake. It is driven by one goroutine
// at a time: each request is sent and its response read before the next request.
type Session struct {
	params     SessionParams
	process    *worker.Process
	transcript framework.Logger
	output     *framework.LineWriter
	filter     *worker.FilteredWriter
	state      SessionState
	info       workerinfo.WorkerInfo
	resultRx   *regexp.Regexp
}

// StartSession spawns the worker and performs the handshake: it waits for the startup banner,
// sends "allocate", and waits for the acknowledgement. If any step fails, the worker is shut down
// and the error is returned; a missing executable is a *worker.SpawnError and anything else is a
// *HandshakeError.
func StartSession(params SessionParams) (*Session, error) {
	profile := params.Profile
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if params.Transcript == nil {
		params.Transcript = framework.NullLogger()
	}
	if params.DebugLogger == nil {
		params.DebugLogger = framework.NullLogger()
	}

	s := &Session{
		params:     params,
		transcript: params.Transcript,
		output:     framework.NewLineWriter(params.Transcript, "<< "),
		resultRx:   profile.ResultRegex(),
	}
	s.filter = worker.NewFilteredWriter(s.output, profile.QuietRegexes()...)

	args := helpers.CopyOf(profile.WorkerArgs)
	if params.ServiceDir != "" {
		args = append(args, params.ServiceDir)
	}
	options := []worker.ProcessOption{
		worker.ProcessEnv(params.WorkerEnv...),
		worker.ProcessDir(params.WorkDir),
		worker.ProcessLogger(params.DebugLogger),
		worker.ProcessChunkSize(profile.ChunkSize),
		worker.ProcessTranscript(s.filter),
	}
	if params.ShutdownTimeout > 0 {
		options = append(options, worker.ProcessShutdownTimeout(params.ShutdownTimeout))
	}
	process, err := worker.Spawn(params.RunnerPath, args, options...)
	if err != nil {
		return nil, err
	}
	s.process = process
	s.state = StateSpawned

	if err := s.handshake(); err != nil {
		s.state = StateFaulted
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) handshake() error {
	profile := s.params.Profile

	s.state = StateAwaitingInitBanner
	banner := worker.ReadUntil(s.process, profile.InitTimeout, worker.ReadPattern(profile.InitRegex()))
	if err := checkHandshakeRead("waiting for the startup banner", profile.InitPattern, banner); err != nil {
		return err
	}

	s.state = StateAllocating
	if err := s.send(workerdef.EncodeAllocate()); err != nil {
		return &HandshakeError{Stage: "allocating", Status: "not started", Output: banner.String(), Err: err}
	}

	s.state = StateAwaitingAllocAck
	ack := worker.ReadUntil(s.process, profile.AllocTimeout, worker.ReadPattern(profile.AllocRegex()))
	if err := checkHandshakeRead("waiting for allocation", profile.AllocPattern, ack); err != nil {
		return err
	}

	s.info = workerinfo.FromBanner(s.params.RunnerPath, s.params.ServiceDir, profile.Name, banner.String())
	s.state = StateReady
	return nil
}

// An empty pattern accepts whatever the worker said before going quiet, even nothing.
func checkHandshakeRead(stage, pattern string, result worker.ReadResult) error {
	switch {
	case result.Closed:
		return &HandshakeError{Stage: stage, Status: result.Status(), Output: result.String(), Err: worker.ErrChannelClosed}
	case pattern == "" && result.Quiescent:
		return nil
	case result.Matched:
		return nil
	default:
		return &HandshakeError{
			Stage:  stage,
			Status: result.Status(),
			Output: result.String(),
			Err:    fmt.Errorf("expected output matching %q within %s", pattern, result.Elapsed.Round(time.Millisecond)),
		}
	}
}

func (s *Session) send(command string) error {
	for _, line := range strings.Split(strings.TrimSuffix(command, "\n"), "\n") {
		s.transcript.Printf(">> %s", line)
		if err := s.process.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// Info describes the worker, as learned during the handshake.
func (s *Session) Info() workerinfo.WorkerInfo {
	return s.info
}

// Transform sends one request and waits for its result.
//
// If the worker's output ends while waiting, the session becomes StateFaulted. A result that
// was complete before that happened is still returned; otherwise the error wraps
// worker.ErrChannelClosed. A result that cannot be decoded is a *workerdef.ProtocolParseError, and
// an error reported by the worker is a *workerdef.WorkerError; neither affects the session.
func (s *Session) Transform(req workerdef.TransformRequest) (workerdef.TransformResponse, error) {
	switch s.state {
	case StateReady:
	case StateClosed:
		return workerdef.TransformResponse{}, ErrSessionClosed
	case StateFaulted:
		return workerdef.TransformResponse{}, fmt.Errorf("%w: worker is no longer running", worker.ErrChannelClosed)
	default:
		return workerdef.TransformResponse{}, fmt.Errorf("session is not ready (state: %s)", s.state)
	}

	profile := s.params.Profile
	command, err := workerdef.EncodeTransform(req, profile.FlushTrigger)
	if err != nil {
		return workerdef.TransformResponse{}, err
	}

	s.state = StateAwaitingResult
	if err := s.send(command); err != nil {
		s.state = StateFaulted
		return workerdef.TransformResponse{}, err
	}

	readOptions := []worker.ReadOption{worker.ReadPattern(s.resultRx)}
	if profile.ResultDeadline.IsDefined() {
		readOptions = append(readOptions, worker.ReadDeadline(profile.ResultDeadline.Value()))
	}
	result := worker.ReadUntil(s.process, profile.ResultTimeout, readOptions...)
	s.transcript.Printf("read %d bytes in %s (%s)", len(result.Data), result.Elapsed.Round(time.Millisecond), result.Status())

	resp, decodeErr := workerdef.DecodeResponse(stripEchoedCommand(result.String(), command))
	if result.Closed {
		s.state = StateFaulted
		s.flushTranscript()
		if decodeErr != nil {
			return workerdef.TransformResponse{}, fmt.Errorf("%w: worker output ended while waiting for a result",
				worker.ErrChannelClosed)
		}
		return resp, nil
	}
	s.state = StateReady
	if decodeErr != nil && result.TimedOut {
		return resp, fmt.Errorf("%w (no complete result within %s)", decodeErr, result.Elapsed.Round(time.Millisecond))
	}
	return resp, decodeErr
}

// Some runners echo their input. The echoed request contains the request's own JSON object, so
// those lines are removed before looking for the result object.
func stripEchoedCommand(output, command string) string {
	var sent []string
	for _, line := range strings.Split(command, "\n") {
		if strings.Contains(line, "{") {
			sent = append(sent, line)
		}
	}
	if len(sent) == 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !slices.ContainsFunc(sent, func(c string) bool { return strings.Contains(line, c) }) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Close shuts the worker down. It is safe to call more than once.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	err := s.process.Close()
	s.flushTranscript()
	return err
}

func (s *Session) flushTranscript() {
	_ = s.filter.Flush()
	s.output.Flush()
}
