// Package diag provides the engine's two output sinks: an error/diagnostic
// sink (defaults to stderr) and a progress sink (defaults to a no-op).
// Every sink is a value owned by one engine.Engine and passed down,
// never a package var, so two engine instances never share counters or
// writers.
package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/standardbeagle/sgrep/internal/errkinds"
)

// Sink accumulates error/diagnostic lines for one engine instance. Safe for
// concurrent use only insofar as the engine itself promises
// single-threaded evaluation; the mutex exists so a caller may safely
// redirect the writer between scans.
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	encWarn int
	parseErrs int
}

// NewSink returns a Sink writing to w. A nil w discards everything.
func NewSink(w io.Writer) *Sink { return &Sink{w: w} }

// SetWriter redirects output; nil disables it.
func (s *Sink) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Errorf reports a fatal-to-the-operation error; the caller includes
// file name and offset when known.
func (s *Sink) Errorf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	fmt.Fprintf(s.w, format+"\n", args...)
}

// WarnEncoding reports a non-fatal encoding warning and bumps the
// encoding-warning counter; scanning continues regardless.
func (s *Sink) WarnEncoding(format string, args ...interface{}) {
	s.mu.Lock()
	s.encWarn++
	w := s.w
	s.mu.Unlock()
	if w != nil {
		fmt.Fprintf(w, "warning: "+format+"\n", args...)
	}
}

// WarnEncodingAt is WarnEncoding for a diagnostic tied to a byte offset
// in a named file: the warning is constructed as an
// errkinds.EncodingError so the file and offset survive into the
// reported line. Counted, never fatal.
func (s *Sink) WarnEncodingAt(file string, offset int, format string, args ...interface{}) {
	s.mu.Lock()
	s.encWarn++
	w := s.w
	s.mu.Unlock()
	if w != nil {
		// EncodingError.Error() already reads "encoding warning at byte N";
		// no extra prefix needed.
		err := errkinds.NewEncodingError(file, offset, fmt.Sprintf(format, args...))
		fmt.Fprintln(w, err.Error())
	}
}

// CountParseError increments the end-of-stream parse-error counter used by
// the scanner's failure-containment contract: a nonzero
// count at end-of-stream is reported, but scanning itself never aborts.
func (s *Sink) CountParseError() {
	s.mu.Lock()
	s.parseErrs++
	s.mu.Unlock()
}

// EncodingWarnings returns the number of non-fatal encoding warnings
// accumulated so far.
func (s *Sink) EncodingWarnings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encWarn
}

// ParseErrorCount returns the number of scanner-level parse errors
// accumulated so far.
func (s *Sink) ParseErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parseErrs
}

// ProgressFunc is the progress-callback signature:
// (files_done, files_total, bytes_done, bytes_total).
type ProgressFunc func(filesDone, filesTotal int, bytesDone, bytesTotal int64)

// NoProgress is the default progress sink: it observes nothing and never
// blocks.
func NoProgress(int, int, int64, int64) {}
