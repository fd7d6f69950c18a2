// Package logging provides the non-blocking structured log sink used
// by both the server and the client. Each record is handed off to a
// dedicated writer goroutine over a buffered channel; a protocol loop
// never blocks on a slow log backend, and a full buffer drops the
// record rather than stalling, counted so the drop is observable.
package logging

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"
)

// Level mirrors charmbracelet/log's level type so callers of this
// package don't need to import it directly.
type Level = log.Level

const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

type record struct {
	level Level
	msg   string
	kv    []interface{}
}

// Sink is a fire-and-forget structured logger. Construct one per
// process component with New and call Emit from any goroutine.
type Sink struct {
	logger *log.Logger
	ch     chan record

	dropped   uint64
	closeOnce sync.Once
	done      chan struct{}
}

// New builds a Sink with the given component prefix (e.g. "server",
// "client") and minimum level, draining records on its own goroutine.
// Every record carries a run id unique to this sink, so the log
// streams of several processes in one test scenario can be told apart
// after the fact.
func New(prefix string, level Level) *Sink {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
	})
	l.SetLevel(level)
	l = l.With("run", xid.New().String())

	s := &Sink{
		logger: l,
		ch:     make(chan record, 256),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.ch {
		switch rec.level {
		case LevelDebug:
			s.logger.Debug(rec.msg, rec.kv...)
		case LevelWarn:
			s.logger.Warn(rec.msg, rec.kv...)
		case LevelError:
			s.logger.Error(rec.msg, rec.kv...)
		default:
			s.logger.Info(rec.msg, rec.kv...)
		}
	}
}

// Emit attempts a non-blocking send of a log record. If the writer
// goroutine is backed up, the record is dropped and the drop counter
// incremented instead of blocking the caller.
func (s *Sink) Emit(level Level, msg string, kv ...interface{}) {
	select {
	case s.ch <- record{level: level, msg: msg, kv: kv}:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

func (s *Sink) Debug(msg string, kv ...interface{}) { s.Emit(LevelDebug, msg, kv...) }
func (s *Sink) Info(msg string, kv ...interface{})  { s.Emit(LevelInfo, msg, kv...) }
func (s *Sink) Warn(msg string, kv ...interface{})  { s.Emit(LevelWarn, msg, kv...) }
func (s *Sink) Error(msg string, kv ...interface{}) { s.Emit(LevelError, msg, kv...) }

// Dropped returns the number of records dropped so far because the
// writer goroutine could not keep up.
func (s *Sink) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Close stops accepting new records and waits for the writer goroutine
// to drain what's already queued.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
	<-s.done
}

// ParseLevel converts a config string ("debug", "info", "warn",
// "error") into a Level, defaulting to LevelInfo on anything else.
func ParseLevel(s string) Level {
	return log.ParseLevel(s)
}
