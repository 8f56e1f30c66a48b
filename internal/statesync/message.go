package statesync

// clientMessage is the envelope for messages a client sends over the
// WebSocket connection: subscription management and authentication. Exactly
// one of the typed fields is populated, selected by Type.
type clientMessage struct {
	Type string `json:"type"`

	// auth
	Token string `json:"token,omitempty"`

	// subscribe / unsubscribe
	WorkspaceIDs []string `json:"workspace_ids,omitempty"`
}

const (
	msgAuth        = "auth"
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
)

// serverMessage mirrors clientMessage for the handful of control replies the
// hub sends back (auth acknowledgement, pong). Lifecycle events are sent as
// bare Event values, not wrapped in this envelope.
type serverMessage struct {
	Type    string `json:"type"`
	Success bool   `json:"success,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	msgAuthAck = "auth_ack"
	msgPong    = "pong"
)
