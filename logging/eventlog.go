// Package logging writes the linear event log of a run: bracketed event lines and the
// captured output they refer to, mirrored to the console, plus per-record sinks.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
)

const (
	RunDirectoryPrefix = "testrun-"
	EventLogFilename   = "subtest.log"
	SummaryFilename    = "summary.log"
)

// RecordSink consumes outcome records as they are produced
type RecordSink interface {
	Consume(rec *types.OutcomeRecord, runID string) error
	Complete(runID string) error
}

// EventLog is the single linear log of a directory run. Writes are serialised; the
// engine is sequential but hooks and the console tee share it.
type EventLog struct {
	baseDir string
	logDir  string
	runID   string
	console io.Writer
	log     log.Logger

	mu      sync.Mutex
	events  *AsyncFile
	writers map[string]*AsyncFile
	sinks   []RecordSink
}

// NewEventLog creates <baseDir>/testrun-<runID>/ and opens the event log inside it.
// console may be nil to disable mirroring. logger receives write failures of the
// background files.
func NewEventLog(baseDir, runID string, console io.Writer, logger log.Logger) (*EventLog, error) {
	if runID == "" {
		return nil, errors.New("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, errors.New("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", logDir, err)
	}
	events, err := NewAsyncFile(filepath.Join(logDir, EventLogFilename), logger)
	if err != nil {
		return nil, err
	}

	l := &EventLog{
		baseDir: baseDir,
		logDir:  logDir,
		runID:   runID,
		console: console,
		log:     logger,
		events:  events,
		writers: make(map[string]*AsyncFile),
	}
	l.sinks = append(l.sinks, &JSONRecordSink{logger: l})
	return l, nil
}

// RunID returns the identifier of the run being logged
func (l *EventLog) RunID() string {
	return l.runID
}

// LogDir returns the run directory
func (l *EventLog) LogDir() string {
	return l.logDir
}

// EventLogFile returns the path of the linear event log
func (l *EventLog) EventLogFile() string {
	return filepath.Join(l.logDir, EventLogFilename)
}

// SummaryFile returns the path of the summary written by LogSummary
func (l *EventLog) SummaryFile() string {
	return filepath.Join(l.logDir, SummaryFilename)
}

func (l *EventLog) write(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.events != nil {
		_, _ = l.events.Write([]byte(s))
	}
	if l.console != nil {
		_, _ = io.WriteString(l.console, s)
	}
}

// Event writes a single bracketed line, e.g. Event("Executing program %s", cmd)
func (l *EventLog) Event(format string, args ...any) {
	l.write("[" + fmt.Sprintf(format, args...) + "]\n")
}

// Line writes text verbatim followed by a newline
func (l *EventLog) Line(text string) {
	l.write(text + "\n")
}

// Output writes captured program output after trimming it
func (l *EventLog) Output(output []byte) {
	text := TrimOutput(output)
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	l.write(text)
}

func (l *EventLog) asyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.writers[path]; ok {
		return w, nil
	}
	w, err := NewAsyncFile(path, l.log)
	if err != nil {
		return nil, err
	}
	l.writers[path] = w
	return w, nil
}

// Record feeds an outcome record to every sink
func (l *EventLog) Record(rec *types.OutcomeRecord) error {
	l.mu.Lock()
	sinks := append([]RecordSink{}, l.sinks...)
	l.mu.Unlock()
	for _, s := range sinks {
		if err := s.Consume(rec, l.runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// LogSummary writes the end-of-run summary file
func (l *EventLog) LogSummary(summary string) error {
	w, err := l.asyncWriter(l.SummaryFile())
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(summary))
	return err
}

// Close completes every sink and flushes all files
func (l *EventLog) Close() error {
	var errs []error
	for _, s := range l.sinks {
		if err := s.Complete(l.runID); err != nil {
			errs = append(errs, fmt.Errorf("error completing sink: %w", err))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.writers = make(map[string]*AsyncFile)
	if l.events != nil {
		if err := l.events.Close(); err != nil {
			errs = append(errs, err)
		}
		l.events = nil
	}
	return errors.Join(errs...)
}
