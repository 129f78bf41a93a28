// Package provider defines the oracle interface and types. The oracle is
// the external LLM the agent consults for planning, action selection,
// validation and synthesis; the agent itself performs no reasoning.
package provider

import "context"

// Provider defines the interface for oracle backends.
type Provider interface {
	// Name returns the backend name.
	Name() string

	// Models returns the list of models the backend reports as available.
	Models() []string

	// Chat sends a single completion request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HealthCheckable is implemented by backends that support liveness probes.
type HealthCheckable interface {
	Ping(ctx context.Context) error
}
