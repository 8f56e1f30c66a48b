// Package statesync pushes workspace lifecycle events to connected clients
// over WebSocket and, when given an EventLog, durably records them so a
// reconnecting client (or a client that was never connected) can replay
// the history it missed.
//
// A Hub fans events out the way RepoSession fanned out repository deltas:
// one shared non-blocking broadcast channel, per-connection write mutex,
// ping/pong keepalive, graceful close-frame-then-force-close shutdown. It
// generalizes from a single repository's update stream to many workspaces,
// each client subscribing to the workspace ids it cares about.
package statesync

import "time"

// EventType names the kind of workspace lifecycle event. The set is closed:
// callers switch on it exhaustively rather than pattern-matching strings.
type EventType int

const (
	WorkspaceCreated EventType = iota
	StatusChanged
	ProgressUpdate
	TaskCompleted
	Error
	WorkspaceDeleted
)

func (t EventType) String() string {
	switch t {
	case WorkspaceCreated:
		return "workspace_created"
	case StatusChanged:
		return "status_changed"
	case ProgressUpdate:
		return "progress_update"
	case TaskCompleted:
		return "task_completed"
	case Error:
		return "error"
	case WorkspaceDeleted:
		return "workspace_deleted"
	default:
		return "unknown"
	}
}

// Event is a single workspace lifecycle occurrence. Fields not relevant to
// the event's Type are left zero; WorkspaceID is always set.
type Event struct {
	Type        EventType `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	Timestamp   time.Time `json:"timestamp"`

	// StatusChanged
	Status string `json:"status,omitempty"`

	// ProgressUpdate
	Progress float64 `json:"progress,omitempty"`

	// TaskCompleted
	TaskID string `json:"task_id,omitempty"`

	// Error
	ErrorMessage string `json:"error_message,omitempty"`
}

// Config sets the connection limit, the per-message read limit, the
// broadcast buffer and whether clients start unauthenticated. The hub does
// not read PingInterval, ConnectionTimeout, RetryAttempts or RetryDelay:
// keepalive uses the fixed pingPeriod and pongWait constants. Defaults
// mirror the values the original workspace-sync engine shipped with.
type Config struct {
	MaxConnections       int
	PingInterval         time.Duration
	ConnectionTimeout    time.Duration
	MaxMessageBytes      int64
	RequireAuthentication bool
	BroadcastBufferSize  int

	RetryAttempts int
	RetryDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConnections:        1000,
		PingInterval:          30 * time.Second,
		ConnectionTimeout:     60 * time.Second,
		MaxMessageBytes:       10 << 20,
		RequireAuthentication: false,
		BroadcastBufferSize:   256,
		RetryAttempts:         3,
		RetryDelay:            500 * time.Millisecond,
	}
}

// AuthValidator validates a client-supplied token and returns the user id it
// resolves to. The default validator accepts any non-empty token.
type AuthValidator interface {
	Validate(token string) (userID string, ok bool)
}

type defaultAuthValidator struct{}

func (defaultAuthValidator) Validate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	return token, true
}
