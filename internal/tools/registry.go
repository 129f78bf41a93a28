package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"medrun/internal/provider"
)

// Registry manages the collection of tools and dispatches oracle action
// decisions to them. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
// Returns ErrToolAlreadyExists if a tool with the same name is already registered.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return NewInvalidArgsError("registry", "tool cannot be nil", nil)
	}

	name := tool.Name()
	if name == "" {
		return NewInvalidArgsError("registry", "tool name cannot be empty", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return NewToolAlreadyExistsError(name)
	}

	r.tools[name] = tool
	return nil
}

// MustRegister adds a tool to the registry and panics on error.
// Useful for registering built-in tools during initialization.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	return result
}

// Names returns the names of all registered tools, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.tools))
	for name := range r.tools {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Dispatch validates the arguments against the tool's declared schema and
// executes it. Arguments not present in the schema are dropped before the
// call; the oracle occasionally invents parameter names and a hallucinated
// field must never reach a tool.
//
// Returns ErrToolNotFound if the tool is not registered and a wrapped
// ExecutionError if the tool itself fails. An empty result is returned
// as-is: absence of data is a valid answer.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return Result{}, NewToolNotFoundError(name)
	}

	filtered := FilterArgs(tool.Parameters(), args)

	result, err := tool.Execute(ctx, filtered)
	if err != nil {
		return Result{}, NewExecutionError(name, err)
	}
	return result, nil
}

// Unregister removes a tool from the registry.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return NewToolNotFoundError(name)
	}

	delete(r.tools, name)
	return nil
}

// ToProviderTools converts all registered tools to provider.Tool format
// for native tool binding.
func (r *Registry) ToProviderTools() ([]provider.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]provider.Tool, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]

		paramsJSON, err := json.Marshal(tool.Parameters())
		if err != nil {
			return nil, NewInvalidArgsError(tool.Name(), "failed to marshal parameters", err)
		}

		result = append(result, provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  paramsJSON,
			},
		})
	}

	return result, nil
}

// Describe renders the tool catalog as text for prompted-JSON models that
// cannot receive native tool definitions.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []byte
	for _, name := range names {
		tool := r.tools[name]
		params, _ := json.Marshal(tool.Parameters())
		out = append(out, []byte("- "+name+": "+tool.Description()+"\n  parameters: ")...)
		out = append(out, params...)
		out = append(out, '\n')
	}
	return string(out)
}

// FilterArgs keeps only arguments declared in the schema's properties.
// A schema without properties passes everything through.
func FilterArgs(schema map[string]any, args map[string]any) map[string]any {
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return args
	}

	filtered := make(map[string]any, len(args))
	for k, v := range args {
		if _, declared := props[k]; declared {
			filtered[k] = v
		}
	}
	return filtered
}
