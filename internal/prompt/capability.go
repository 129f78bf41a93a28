package prompt

import "strings"

// ToolStrategy selects how tool selections are requested from a model.
type ToolStrategy string

const (
	// StrategyNative binds tool schemas through the provider API and
	// reads tool calls from the response.
	StrategyNative ToolStrategy = "native"

	// StrategyPromptedJSON describes the tools in the prompt text and
	// parses a JSON reply. Used for models without reliable native
	// tool calling.
	StrategyPromptedJSON ToolStrategy = "prompted_json"
)

// Capability describes what a model can be trusted to do.
type Capability struct {
	Tools ToolStrategy `mapstructure:"tools"`

	// OptimizeArgs enables the argument refinement pass. Disabled for
	// small models where the extra round trip mostly degrades arguments.
	OptimizeArgs bool `mapstructure:"optimize_args"`
}

// defaultCapabilities maps known model families to their capabilities.
// Lookup is by longest matching prefix, so version-tagged names resolve
// to their family entry.
var defaultCapabilities = map[string]Capability{
	"gpt-oss":  {Tools: StrategyNative, OptimizeArgs: true},
	"gpt-4":    {Tools: StrategyNative, OptimizeArgs: true},
	"gpt-4o":   {Tools: StrategyNative, OptimizeArgs: true},
	"llama3":   {Tools: StrategyNative, OptimizeArgs: true},
	"qwen3-vl": {Tools: StrategyPromptedJSON, OptimizeArgs: false},
	"qwen":     {Tools: StrategyPromptedJSON, OptimizeArgs: false},
	"gemma":    {Tools: StrategyPromptedJSON, OptimizeArgs: false},
	"mistral":  {Tools: StrategyNative, OptimizeArgs: true},
	"deepseek": {Tools: StrategyPromptedJSON, OptimizeArgs: false},
	"phi":      {Tools: StrategyPromptedJSON, OptimizeArgs: false},
}

// Capabilities resolves model names to capabilities, with user overrides
// taking precedence over the built-in table.
type Capabilities struct {
	overrides map[string]Capability
}

// NewCapabilities creates a resolver with optional overrides from config.
func NewCapabilities(overrides map[string]Capability) *Capabilities {
	return &Capabilities{overrides: overrides}
}

// Lookup resolves a model name. Unknown models get the conservative
// prompted-JSON strategy: a model that silently ignores native tool
// schemas is worse than one asked for JSON outright.
func (c *Capabilities) Lookup(model string) Capability {
	name := strings.ToLower(model)
	if i := strings.IndexByte(name, ':'); i > 0 {
		// strip ollama-style size tags like ":20b"
		if cap, ok := c.match(name); ok {
			return cap
		}
		name = name[:i]
	}
	if cap, ok := c.match(name); ok {
		return cap
	}
	return Capability{Tools: StrategyPromptedJSON, OptimizeArgs: false}
}

func (c *Capabilities) match(name string) (Capability, bool) {
	if c.overrides != nil {
		if cap, ok := c.overrides[name]; ok {
			return cap, true
		}
		if cap, ok := longestPrefix(c.overrides, name); ok {
			return cap, true
		}
	}
	if cap, ok := defaultCapabilities[name]; ok {
		return cap, true
	}
	return longestPrefix(defaultCapabilities, name)
}

func longestPrefix(table map[string]Capability, name string) (Capability, bool) {
	var best string
	for prefix := range table {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Capability{}, false
	}
	return table[best], true
}
