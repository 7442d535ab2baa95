// Package ctxkey defines typed keys for context.Value, avoiding bare
// string keys (staticcheck SA1029).
package ctxkey

// Key is the type of every context key used by the gate.
type Key string

const (
	// DecisionID is the key for the per-request decision identifier.
	// The pipeline does not put the decision identifier into the
	// context, so no code reads this key.
	DecisionID Key = "ctx_decision_id"

	// ClientRequestID identifies one inbound HTTP request end to end.
	ClientRequestID Key = "ctx_client_request_id"
)
