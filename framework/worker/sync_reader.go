package worker

import (
	"bytes"
	"regexp"
	"time"

	"github.com/imagealter/worker-test-harness/framework"
	"github.com/imagealter/worker-test-harness/framework/helpers"
)

// ChunkSource is anything that delivers output in chunks, such as a Process.
type ChunkSource interface {
	Chunks() <-chan []byte
}

// ChunkChannel adapts a bare channel to ChunkSource.
type ChunkChannel <-chan []byte

func (c ChunkChannel) Chunks() <-chan []byte { return c }

// ReadResult is the outcome of ReadUntil. Exactly one of Matched, Quiescent, Closed, and TimedOut
// is set. None of them is an error in itself; callers decide what each one means for them.
type ReadResult struct {
	// Data is everything that was received, in order.
	Data []byte

	// Matched means the pattern matched the accumulated output.
	Matched bool

	// Quiescent means no pattern was given and the source stayed silent for a full poll interval.
	Quiescent bool

	// Closed means the source reached end-of-file.
	Closed bool

	// TimedOut means a pattern was given but did not match before a poll interval passed with no
	// data, or the overall deadline expired.
	TimedOut bool

	// Elapsed is how long the read took.
	Elapsed time.Duration
}

func (r ReadResult) String() string {
	return string(r.Data)
}

// Status describes how the read ended, for log messages.
func (r ReadResult) Status() string {
	switch {
	case r.Matched:
		return "matched"
	case r.Quiescent:
		return "quiescent"
	case r.Closed:
		return "closed"
	default:
		return "timed out"
	}
}

type readConfig struct {
	pattern  *regexp.Regexp
	deadline time.Duration
	logger   framework.Logger
}

// ReadOption is the interface for optional configuration parameters to ReadUntil.
type ReadOption helpers.ConfigOption[readConfig]

// ReadPattern makes ReadUntil return as soon as the accumulated output matches the pattern. A nil
// pattern is the same as not using this option.
func ReadPattern(pattern *regexp.Regexp) ReadOption {
	return helpers.ConfigOptionFunc[readConfig](func(c *readConfig) error {
		c.pattern = pattern
		return nil
	})
}

// ReadDeadline limits the total time ReadUntil can take, however often data keeps arriving. Zero
// means no limit.
func ReadDeadline(d time.Duration) ReadOption {
	return helpers.ConfigOptionFunc[readConfig](func(c *readConfig) error {
		c.deadline = d
		return nil
	})
}

// ReadLogger logs each chunk as it is received.
func ReadLogger(logger framework.Logger) ReadOption {
	return helpers.ConfigOptionFunc[readConfig](func(c *readConfig) error {
		c.logger = logger
		return nil
	})
}

// ReadUntil accumulates chunks from source. Each wait for the next chunk lasts at most pollTimeout.
//
// With a pattern, the whole accumulated buffer is matched after every chunk and the read ends on
// the first match; a poll that expires with no data ends it with TimedOut. Without a pattern, the
// read ends when a poll expires with no data, so a worker that responds in several bursts is read
// completely as long as no gap between bursts is as long as pollTimeout.
func ReadUntil(source ChunkSource, pollTimeout time.Duration, options ...ReadOption) ReadResult {
	config := readConfig{logger: framework.NullLogger()}
	_ = helpers.ApplyOptions(&config, options...)

	start := time.Now()
	var buf bytes.Buffer
	var result ReadResult
	chunks := source.Chunks()

	for {
		wait := pollTimeout
		cappedByDeadline := false
		if config.deadline > 0 {
			remaining := config.deadline - time.Since(start)
			if remaining <= 0 {
				result.TimedOut = true
				break
			}
			if remaining < wait {
				wait, cappedByDeadline = remaining, true
			}
		}

		chunk, closed := helpers.TryReceiveOrClosed(chunks, wait)
		if closed {
			result.Closed = true
			break
		}
		if !chunk.IsDefined() {
			if config.pattern == nil && !cappedByDeadline {
				result.Quiescent = true
			} else {
				result.TimedOut = true
			}
			break
		}
		buf.Write(chunk.Value())
		config.logger.Printf("<< %q", chunk.Value())
		if config.pattern != nil && config.pattern.Match(buf.Bytes()) {
			result.Matched = true
			break
		}
	}

	result.Data = buf.Bytes()
	result.Elapsed = time.Since(start)
	return result
}
