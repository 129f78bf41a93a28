package cli

import (
	"fmt"

	"medrun/internal/agent"
	"medrun/internal/analysis"
	"medrun/internal/config"
	"medrun/internal/contextmgr"
	"medrun/internal/prompt"
	"medrun/internal/provider"
	_ "medrun/internal/provider/ollama"
	_ "medrun/internal/provider/openai"
	"medrun/internal/recordstore"
	"medrun/internal/sandbox"
	"medrun/internal/sandbox/primitives"
	"medrun/internal/storage"
	"medrun/internal/tools"
	analysistools "medrun/internal/tools/analysis"
	"medrun/internal/tools/clinical"
	"medrun/pkg/logger"
)

// Runtime bundles the assembled application: the record store, the tool
// registry, the orchestrator, and the optional audit log.
type Runtime struct {
	Config       *config.Config
	Store        *recordstore.Store
	Registry     *tools.Registry
	Orchestrator *agent.Orchestrator
	Audit        *storage.AuditLog

	db *storage.DB
}

// buildRuntime wires every component from configuration.
func buildRuntime(cfg *config.Config) (*Runtime, error) {
	store, err := recordstore.NewStore(cfg.Records.Dir, logger.Component("recordstore"))
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	registry := tools.NewRegistry()
	clinical.Register(registry, store)

	executor := sandbox.NewExecutor(sandbox.Config{Timeout: cfg.Sandbox.Timeout}, logger.Component("sandbox"))
	registry.MustRegister(analysistools.NewCodeTool(executor, store))

	if cfg.Analysis.Endpoint != "" {
		client := analysis.NewClient(analysis.Config{
			Endpoint: cfg.Analysis.Endpoint,
			Timeout:  cfg.Analysis.Timeout,
		})
		registry.MustRegister(analysistools.NewDocumentTool(client, store))
	}

	backend, err := provider.New(cfg.Provider.Backend, providerOpts(cfg))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build provider: %w", err)
	}
	oracle := provider.NewRetrier(backend, logger.Component("provider"))

	caps := prompt.NewCapabilities(capabilityOverrides(cfg))

	orch := agent.NewOrchestrator(agent.Config{
		Model:                cfg.Provider.Model,
		Temperature:          cfg.Provider.Temperature,
		MaxSteps:             cfg.Agent.MaxSteps,
		MaxStepsPerTask:      cfg.Agent.MaxStepsPerTask,
		MaxConsecutiveErrors: cfg.Agent.MaxConsecutiveErrors,
		TaskTimeout:          cfg.Agent.TaskTimeout,
		DiscoveryLimit:       cfg.Agent.DiscoveryLimit,
		MaxActionsPerCall:    cfg.Agent.MaxActionsPerCall,
	}, oracle, registry, contextmgr.NewManager(contextmgr.Config{
		MaxContextTokens: cfg.Context.MaxTokens,
		OutputTokens:     cfg.Context.OutputTokens,
	}), caps)
	orch.SetPrimitiveNames(primitives.Build(store, nil).Names())

	rt := &Runtime{
		Config:       cfg,
		Store:        store,
		Registry:     registry,
		Orchestrator: orch,
	}

	if cfg.Storage.Path != "" {
		db, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		rt.db = db
		rt.Audit = storage.NewAuditLog(db)
		orch.SetAudit(rt.Audit)
	}

	return rt, nil
}

func providerOpts(cfg *config.Config) map[string]any {
	switch cfg.Provider.Backend {
	case "openai":
		return map[string]any{
			"base_url": cfg.OpenAI.Endpoint,
			"api_key":  cfg.OpenAI.APIKey,
			"model":    cfg.Provider.Model,
		}
	default:
		return map[string]any{
			"endpoint": cfg.Ollama.Endpoint,
			"model":    cfg.Provider.Model,
			"timeout":  cfg.Ollama.Timeout,
		}
	}
}

func capabilityOverrides(cfg *config.Config) map[string]prompt.Capability {
	if len(cfg.Models) == 0 {
		return nil
	}
	overrides := make(map[string]prompt.Capability, len(cfg.Models))
	for name, m := range cfg.Models {
		overrides[name] = prompt.Capability{
			Tools:        prompt.ToolStrategy(m.Tools),
			OptimizeArgs: m.OptimizeArgs,
		}
	}
	return overrides
}

// Close releases the runtime's resources.
func (rt *Runtime) Close() {
	if rt.Audit != nil {
		rt.Audit.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.Store != nil {
		rt.Store.Close()
	}
}
