package statesync

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/rybkr/logarc/internal/errs"
)

// streamEntry is the on-disk record shape: an "event" field holding the
// JSON-serialized Event, one per line, matching the stream-append structure
// the workspace-sync engine already used for its Redis Stream entries.
type streamEntry struct {
	Event Event `json:"event"`
}

// EventLog is an append-only, line-delimited JSON record of every event
// published through a Hub, used to replay history to clients that connect
// (or reconnect) after the events occurred.
type EventLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenEventLog opens (creating if necessary) the log file at path for
// appending and later replay.
func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "open event log", err)
	}
	return &EventLog{path: path, file: f}, nil
}

func (l *EventLog) Append(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(streamEntry{Event: event})
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal event", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return errs.Wrap(errs.IoError, "append event", err)
	}
	return nil
}

// ReadAll replays the full durable history in append order.
func (l *EventLog) ReadAll() ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, 0); err != nil {
		return nil, errs.Wrap(errs.IoError, "seek event log", err)
	}
	defer func() { _, _ = l.file.Seek(0, 2) }()

	var events []Event
	scanner := bufio.NewScanner(l.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		var entry streamEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip a malformed line rather than fail the whole replay
		}
		events = append(events, entry.Event)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.IoError, "scan event log", err)
	}
	return events, nil
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return errs.Wrap(errs.IoError, "close event log", err)
	}
	return nil
}
