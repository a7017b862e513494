package swlogging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

var Format = logging.MustStringFormatter(`%{time:15:04:05.000} %{shortfunc} ▶ %{level} %{id:03x} %{message}`)

// Logger wraps a go-logging module logger and counts what was logged per level.
type Logger struct {
	DebugCount  int
	InfoCount   int
	NoticeCount int
	WarnCount   int
	ErrorCount  int
	Backends    []Backend
	MemBuffers  []MemBuffer

	logger *logging.Logger
	name   string
	level  logging.Level
	files  []*os.File
	mu     sync.Mutex
}

type Backend struct {
	backend logging.LeveledBackend
	name    string
}

type MemBuffer struct {
	Buff *logging.MemoryBackend
	Name string
}

// New creates a logger for the named module that writes to standard error.
func New(name string) *Logger {
	return newLogger(name, os.Stderr, "Standard Error")
}

// Discard creates a logger whose only backend drops everything. Memory
// targets can still be attached to it.
func Discard(name string) *Logger {
	return newLogger(name, io.Discard, "Discard")
}

func newLogger(name string, w io.Writer, backendName string) *Logger {
	l := &Logger{
		name:  name,
		level: logging.DEBUG,
	}

	l.logger = logging.MustGetLogger(name)
	l.logger.ExtraCalldepth = 1

	backend := logging.NewLogBackend(w, "", 0)
	backendFormatter := logging.NewBackendFormatter(backend, Format)
	leveledBackend := logging.AddModuleLevel(backendFormatter)
	l.Backends = append(l.Backends, Backend{
		backend: leveledBackend,
		name:    backendName,
	})
	l.rebuild()

	return l
}

// NewLogTarget adds an output. With file set, target is a path (opened for
// appending) or an io.Writer. Otherwise target is an io.Writer or a chan bool,
// the latter selecting an in-memory ring buffer readable through
// GetMemLogContents.
func (l *Logger) NewLogTarget(name string, target interface{}, file bool) error {
	var backend logging.Backend

	switch v := target.(type) {
	case string:
		if !file {
			return fmt.Errorf("log target %s: path given for a non-file target", name)
		}
		f, err := os.OpenFile(v, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("log target %s: %w", name, err)
		}
		l.files = append(l.files, f)
		backend = logging.NewLogBackend(f, "", 0)
	case io.Writer:
		backend = logging.NewLogBackend(v, "", 0)
	case chan bool:
		if file {
			return fmt.Errorf("log target %s: memory buffers cannot be files", name)
		}
		buff := MemBuffer{
			Name: name,
			Buff: logging.NewMemoryBackend(2 << 16),
		}
		backend = buff.Buff
		l.MemBuffers = append(l.MemBuffers, buff)
	default:
		return fmt.Errorf("log target %s: unknown target type %T", name, target)
	}

	backendFormatter := logging.NewBackendFormatter(backend, Format)
	leveledBackend := logging.AddModuleLevel(backendFormatter)
	leveledBackend.SetLevel(l.level, "")

	l.Backends = append(l.Backends, Backend{
		backend: leveledBackend,
		name:    name,
	})
	l.rebuild()

	return nil
}

func (l *Logger) rebuild() {
	backends := make([]logging.Backend, 0, len(l.Backends))
	for _, backend := range l.Backends {
		backends = append(backends, backend.backend)
	}
	l.logger.SetBackend(logging.MultiLogger(backends...))
}

func (l *Logger) GetMemLogContents(name string) (MemBuffer, error) {
	for _, backend := range l.MemBuffers {
		if backend.Name == name {
			return backend, nil
		}
	}

	return MemBuffer{}, fmt.Errorf("could not find mem log for %s", name)
}

// MemLogMessages returns the plain messages held by a memory target, oldest first.
func (l *Logger) MemLogMessages(name string) ([]string, error) {
	buff, err := l.GetMemLogContents(name)
	if err != nil {
		return nil, err
	}

	messages := make([]string, 0)
	for node := buff.Buff.Head(); node != nil; node = node.Next() {
		messages = append(messages, node.Record.Message())
	}
	return messages, nil
}

func (l *Logger) GetLoggerName() string {
	return l.name
}

func (l *Logger) SetLogLevel(level logging.Level) {
	l.level = level
	for _, backend := range l.Backends {
		backend.backend.SetLevel(level, "")
	}
	l.rebuild()
}

// ParseLevel accepts the go-logging level names in any case, plus "warn".
func ParseLevel(level string) (logging.Level, error) {
	if strings.EqualFold(level, "warn") {
		return logging.WARNING, nil
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return logging.ERROR, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

// Close releases any files opened by NewLogTarget.
func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

func (l *Logger) count(counter *int) {
	l.mu.Lock()
	*counter += 1
	l.mu.Unlock()
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
	l.count(&l.DebugCount)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
	l.count(&l.InfoCount)
}

func (l *Logger) Noticef(format string, args ...interface{}) {
	l.logger.Noticef(format, args...)
	l.count(&l.NoticeCount)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warningf(format, args...)
	l.count(&l.WarnCount)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
	l.count(&l.ErrorCount)
}
