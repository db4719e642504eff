package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// EventType represents the type of event
type EventType string

const (
	EventExtract EventType = "extract"
	EventIndex   EventType = "index"
	EventArtist  EventType = "artist"
	EventSkip    EventType = "skip"
	EventFilter  EventType = "filter"
	EventFailure EventType = "failure"
	EventRun     EventType = "run"
	EventError   EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a config string onto an EventLevel, defaulting to info.
func ParseLevel(s string) EventLevel {
	if _, ok := levelPriority[EventLevel(s)]; ok {
		return EventLevel(s)
	}
	return LevelInfo
}

// Event is one line of the JSONL event log
type Event struct {
	Timestamp    time.Time         `json:"ts"`
	Level        EventLevel        `json:"level"`
	Event        EventType         `json:"event"`
	RunID        string            `json:"run_id,omitempty"`
	Entity       string            `json:"entity,omitempty"`
	EntityID     string            `json:"entity_id,omitempty"`
	SrcPath      string            `json:"src_path,omitempty"`
	DestPath     string            `json:"dest_path,omitempty"`
	Action       string            `json:"action,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Records      int               `json:"records,omitempty"`
	BytesWritten int64             `json:"bytes_written,omitempty"`
	Duration     int64             `json:"duration_ms,omitempty"`
	Error        string            `json:"error,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil *EventLogger is valid
// and discards everything.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
	runID    string
}

// NewEventLogger creates events-<timestamp>.jsonl in outputDir.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := fmt.Sprintf("events-%s.jsonl", time.Now().Format("20060102-150405"))
	path := filepath.Join(outputDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// SetRunID stamps subsequent events with runID.
func (l *EventLogger) SetRunID(runID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.runID = runID
	l.mu.Unlock()
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}
	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

func levelFor(err error, ok EventLevel) (EventLevel, string) {
	if err != nil {
		return LevelError, err.Error()
	}
	return ok, ""
}

// LogExtract logs one archive extraction
func (l *EventLogger) LogExtract(archive, target string, bytesWritten int64, skipped bool, d time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	action := "extracted"
	if skipped {
		action = "skipped"
	}
	return l.Log(&Event{
		Level:        level,
		Event:        EventExtract,
		SrcPath:      archive,
		DestPath:     target,
		Action:       action,
		BytesWritten: bytesWritten,
		Duration:     d.Milliseconds(),
		Error:        errMsg,
	})
}

// LogIndex logs one entity index build
func (l *EventLogger) LogIndex(entity, source string, records, malformed, duplicates int, skipped bool, d time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	action := "built"
	if skipped {
		action = "skipped"
	}
	return l.Log(&Event{
		Level:    level,
		Event:    EventIndex,
		Entity:   entity,
		SrcPath:  source,
		Action:   action,
		Records:  records,
		Duration: d.Milliseconds(),
		Error:    errMsg,
		Extra: map[string]string{
			"malformed":  strconv.Itoa(malformed),
			"duplicates": strconv.Itoa(duplicates),
		},
	})
}

// LogArtist logs a completed artist
func (l *EventLogger) LogArtist(artistID, destPath string, albums int, d time.Duration) error {
	return l.Log(&Event{
		Level:    LevelDebug,
		Event:    EventArtist,
		Entity:   "artist",
		EntityID: artistID,
		DestPath: destPath,
		Action:   "completed",
		Records:  albums,
		Duration: d.Milliseconds(),
	})
}

// LogSkip logs an artist skipped because the ledger already has it
func (l *EventLogger) LogSkip(artistID, reason string) error {
	return l.Log(&Event{
		Level:    LevelDebug,
		Event:    EventSkip,
		Entity:   "artist",
		EntityID: artistID,
		Reason:   reason,
	})
}

// LogFilter logs an entity dropped by a type filter
func (l *EventLogger) LogFilter(entity, id, reason string) error {
	return l.Log(&Event{
		Level:    LevelDebug,
		Event:    EventFilter,
		Entity:   entity,
		EntityID: id,
		Reason:   reason,
	})
}

// LogFailure logs an entity-scoped failure that did not stop the run
func (l *EventLogger) LogFailure(entity, id string, err error) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventFailure,
		Entity:   entity,
		EntityID: id,
		Error:    err.Error(),
	})
}

// LogRun logs the end of a stage with its counters
func (l *EventLogger) LogRun(stage, status string, counters map[string]int, d time.Duration) error {
	extra := make(map[string]string, len(counters))
	for k, v := range counters {
		extra[k] = strconv.Itoa(v)
	}
	level := LevelInfo
	if status != "completed" {
		level = LevelWarning
	}
	return l.Log(&Event{
		Level:    level,
		Event:    EventRun,
		Action:   stage,
		Reason:   status,
		Duration: d.Milliseconds(),
		Extra:    extra,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		SrcPath: srcPath,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
