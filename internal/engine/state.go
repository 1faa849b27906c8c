package engine

// State tracks the service lifecycle. Transitions only move forward:
// Uninitialized → Connecting → SchemaReady → Serving, with Failed as the
// terminal state for unrecoverable startup errors.
type State int32

const (
	// StateUninitialized is the zero state before Start is called.
	StateUninitialized State = iota
	// StateConnecting means the backend connection is being established.
	StateConnecting
	// StateSchemaReady means the collection exists with a verified schema.
	StateSchemaReady
	// StateServing means the full data path is available.
	StateServing
	// StateFailed is terminal: startup failed and the process should exit.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateSchemaReady:
		return "schema_ready"
	case StateServing:
		return "serving"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
