package framework

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal logging interface used throughout the harness. *log.Logger satisfies it.
type Logger interface {
	Println(args ...interface{})
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Println(args ...interface{})                {}
func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger records all output from a test scope so that it can be shown later, for instance
// only if the test case failed. See ctest.(*T).DebugLogger() for how parent and child scopes share it.
type CapturingLogger struct {
	output   []CapturedMessage
	children []*CapturingLogger
	lock     sync.Mutex
}

func (l *CapturingLogger) Println(args ...interface{}) {
	m := strings.TrimRight(fmt.Sprintln(args...), "\r\n")
	l.append(CapturedMessage{Time: time.Now(), Message: m})
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.append(CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
}

// A message sent to a logger that currently has children goes to the children instead, so the
// output of a worker that is shared by many test cases ends up in whichever case is running.
func (l *CapturingLogger) append(m CapturedMessage) {
	l.lock.Lock()
	if len(l.children) == 0 {
		l.output = append(l.output, m)
		l.lock.Unlock()
		return
	}
	children := append([]*CapturingLogger(nil), l.children...)
	l.lock.Unlock()
	for _, c := range children {
		c.append(m)
	}
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append(CapturedOutput(nil), l.output...)
}

func (l *CapturingLogger) AddChildLogger(child *CapturingLogger) {
	l.lock.Lock()
	l.children = append(l.children, child)
	l.lock.Unlock()
}

func (l *CapturingLogger) RemoveChildLogger(child *CapturingLogger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			return
		}
	}
}

func (output CapturedOutput) ToString(prefix string) string {
	lines := make([]string, 0, len(output))
	for _, m := range output {
		lines = append(lines, fmt.Sprintf("%s[%s] %s", prefix, m.Time.Format(timestampFormat), m.Message))
	}
	return strings.Join(lines, "\n")
}

type prefixedLogger struct {
	base   Logger
	prefix string
}

// LoggerWithPrefix returns a Logger that prepends prefix to every message.
func LoggerWithPrefix(baseLogger Logger, prefix string) Logger {
	return prefixedLogger{baseLogger, prefix}
}

func (p prefixedLogger) Println(args ...interface{}) {
	p.base.Println(append([]interface{}{p.prefix}, args...)...)
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.base.Printf(p.prefix+message, args...)
}

// LineWriter adapts a Logger to io.Writer. Each complete line written becomes one log message;
// an incomplete trailing line is held until the next newline or Flush.
type LineWriter struct {
	logger  Logger
	prefix  string
	pending bytes.Buffer
	lock    sync.Mutex
}

func NewLineWriter(logger Logger, prefix string) *LineWriter {
	return &LineWriter{logger: logger, prefix: prefix}
}

func (w *LineWriter) Write(data []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pending.Write(data)
	for {
		line, err := w.pending.ReadString('\n')
		if err != nil {
			// no newline yet; put the partial line back
			w.pending.Reset()
			w.pending.WriteString(line)
			return len(data), nil
		}
		w.logger.Printf("%s%s", w.prefix, strings.TrimRight(line, "\r\n"))
	}
}

// Flush logs any incomplete line that is still buffered.
func (w *LineWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.pending.Len() > 0 {
		w.logger.Printf("%s%s", w.prefix, w.pending.String())
		w.pending.Reset()
	}
}
