package worker

import (
	"bytes"
	"io"
	"regexp"
	"sync"
)

// FilteredWriter copies output to another writer a line at a time, dropping lines that match any
// of the exclusion patterns. It is meant for transcripts, where the worker's periodic log noise
// would otherwise drown out the protocol exchange. An incomplete last line is held until its
// newline arrives or Flush is called.
type FilteredWriter struct {
	writer       io.Writer
	excludeRegex []*regexp.Regexp
	pending      []byte
	lock         sync.Mutex
}

func NewFilteredWriter(writer io.Writer, excludeRegex ...*regexp.Regexp) *FilteredWriter {
	return &FilteredWriter{writer: writer, excludeRegex: excludeRegex}
}

func (f *FilteredWriter) Write(data []byte) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.pending = append(f.pending, data...)
	for {
		i := bytes.IndexByte(f.pending, '\n')
		if i < 0 {
			return len(data), nil
		}
		line := f.pending[:i+1]
		if err := f.writeLine(line); err != nil {
			return len(data), err
		}
		f.pending = append(f.pending[:0], f.pending[i+1:]...)
	}
}

// Flush writes any incomplete line that is still buffered, unless it is excluded.
func (f *FilteredWriter) Flush() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.pending) == 0 {
		return nil
	}
	err := f.writeLine(f.pending)
	f.pending = nil
	return err
}

func (f *FilteredWriter) writeLine(line []byte) error {
	content := bytes.TrimRight(line, "\r\n")
	for _, r := range f.excludeRegex {
		if r.Match(content) {
			return nil
		}
	}
	_, err := f.writer.Write(line)
	return err
}
