package statesync

import (
	"encoding/json"
	"testing"
	"time"
)

// NewRedisPublisher requires a live Redis connection (Ping on construction),
// so — matching how this codebase's L2 cache tier leaves its Redis-backed
// path untested without a running server — these tests cover only the
// connection-independent logic: config defaults and the JSON wire format
// Publish/Subscribe round-trip through.

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 500ms", cfg.RetryDelay)
	}
	if cfg.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want 10", cfg.PoolSize)
	}
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	events := []Event{
		{Type: WorkspaceCreated, WorkspaceID: "ws1", Timestamp: time.Now()},
		{Type: StatusChanged, WorkspaceID: "ws1", Status: "processing", Timestamp: time.Now()},
		{Type: ProgressUpdate, WorkspaceID: "ws1", Progress: 0.42, Timestamp: time.Now()},
		{Type: TaskCompleted, WorkspaceID: "ws1", TaskID: "task-7", Timestamp: time.Now()},
		{Type: Error, WorkspaceID: "ws1", ErrorMessage: "disk full", Timestamp: time.Now()},
		{Type: WorkspaceDeleted, WorkspaceID: "ws1", Timestamp: time.Now()},
	}

	for _, want := range events {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", want.Type, err)
		}

		var asMap map[string]any
		if err := json.Unmarshal(data, &asMap); err != nil {
			t.Fatalf("Unmarshal to map: %v", err)
		}
		if _, ok := asMap["workspace_id"]; !ok {
			t.Errorf("%v: serialized event missing workspace_id field", want.Type)
		}

		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%v): %v", want.Type, err)
		}
		if got.Type != want.Type || got.WorkspaceID != want.WorkspaceID {
			t.Errorf("round trip %v = %+v, want %+v", want.Type, got, want)
		}
	}
}

func TestStreamEntry_WrapsEventUnderEventField(t *testing.T) {
	entry := streamEntry{Event: Event{Type: WorkspaceCreated, WorkspaceID: "ws1", Timestamp: time.Now()}}
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &asMap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := asMap["event"]; !ok {
		t.Fatal("stream entry must carry the event under an \"event\" field")
	}
}
