// Package diag provides the append-only diagnostic log stream every
// task reports its state transitions and failures to.
package diag

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/wifista/pkg/framework"
)

// Level is the severity of an Entry.
type Level int8

// Levels
const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Entry is a single line of the diagnostic stream.
type Entry struct {
	Seq     uint64
	Time    time.Time
	Source  string
	Level   Level
	Message string
}

// String formats the entry as a console line.
func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s [%s] %s", e.Time.Format("15:04:05.000"), e.Level, e.Source, e.Message)
}

// Sink receives appended entries. Append is called in sequence order
// and must not block.
type Sink interface {
	Append(Entry)
}

// SinkFunc is the func form of Sink.
type SinkFunc func(Entry)

// Append implements Sink.
func (f SinkFunc) Append(e Entry) {
	f(e)
}

// Stream is the append-only diagnostic log.
type Stream struct {
	clock fx.TimeSource
	sinks []Sink
	seq   uint64
	lock  sync.Mutex
}

// NewStream creates a Stream stamping entries with clock.
func NewStream(clock fx.TimeSource, sinks ...Sink) *Stream {
	if clock == nil {
		clock = fx.WallClock{}
	}
	return &Stream{clock: clock, sinks: sinks}
}

// AddSink attaches another sink. Entries appended earlier are not
// replayed.
func (s *Stream) AddSink(sink Sink) {
	s.lock.Lock()
	s.sinks = append(s.sinks, sink)
	s.lock.Unlock()
}

// Append adds an entry and fans it out to all sinks.
func (s *Stream) Append(source string, level Level, msg string) Entry {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.seq++
	e := Entry{
		Seq:     s.seq,
		Time:    s.clock.Now(),
		Source:  source,
		Level:   level,
		Message: msg,
	}
	for _, sink := range s.sinks {
		sink.Append(e)
	}
	return e
}

// Logger returns the Logger for source.
func (s *Stream) Logger(source string) *Logger {
	return &Logger{stream: s, source: source}
}

// Logger appends entries of a single source. A nil Logger discards.
type Logger struct {
	stream *Stream
	source string
}

// Source returns the source name.
func (l *Logger) Source() string {
	if l == nil {
		return ""
	}
	return l.source
}

// Infof appends an informational entry.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warningf appends a warning entry.
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.logf(LevelWarning, format, args...)
}

// Errorf appends an error entry.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if l == nil || l.stream == nil {
		return
	}
	l.stream.Append(l.source, level, fmt.Sprintf(format, args...))
}

// GlogSink writes entries to glog.
type GlogSink struct{}

// Append implements Sink.
func (GlogSink) Append(e Entry) {
	switch e.Level {
	case LevelError:
		glog.Errorf("[%s] %s", e.Source, e.Message)
	case LevelWarning:
		glog.Warningf("[%s] %s", e.Source, e.Message)
	default:
		glog.Infof("[%s] %s", e.Source, e.Message)
	}
}

// Recorder keeps the most recent entries in memory.
type Recorder struct {
	// Limit caps the number of kept entries, 0 means unlimited.
	Limit int

	entries []Entry
	lock    sync.Mutex
}

// Append implements Sink.
func (r *Recorder) Append(e Entry) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.entries = append(r.entries, e)
	if r.Limit > 0 && len(r.entries) > r.Limit {
		r.entries = append(r.entries[:0:0], r.entries[len(r.entries)-r.Limit:]...)
	}
}

// Entries returns the kept entries, optionally filtered by source.
func (r *Recorder) Entries(sources ...string) []Entry {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(sources) == 0 {
		return append([]Entry(nil), r.entries...)
	}
	var res []Entry
	for _, e := range r.entries {
		for _, src := range sources {
			if e.Source == src {
				res = append(res, e)
				break
			}
		}
	}
	return res
}

// Messages returns the messages of the kept entries of source.
func (r *Recorder) Messages(source string) []string {
	entries := r.Entries(source)
	msgs := make([]string, len(entries))
	for n, e := range entries {
		msgs[n] = e.Message
	}
	return msgs
}
