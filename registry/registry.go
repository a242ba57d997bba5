// Package registry maintains the catalog of agent definitions and their
// cached runtime instances. Registration persists the definition and eagerly
// activates the agent; resolution serves the cached instance or lazily
// instantiates one from the definition store.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

// ModelFactory builds the chat model for a definition, typically keyed off
// LLMProvider and LLMModel.
type ModelFactory func(def *core.AgentDefinition) (model.Model, error)

// Options configure optional registry collaborators.
type Options struct {
	Tools      *tool.Registry
	Executions core.ExecutionStore
	Logger     *logging.RelayLogger
}

// Registry is the thread-safe agent catalog. The instance cache is guarded
// by a single mutex; instantiation happens outside the lock so a slow
// activation cannot stall unrelated resolutions.
type Registry struct {
	mu           sync.RWMutex
	cache        map[string]*agent.DynamicAgent
	definitions  core.DefinitionStore
	modelFactory ModelFactory
	tools        *tool.Registry
	executions   core.ExecutionStore
	logger       *logging.RelayLogger
}

// New creates a registry backed by the given definition store and model
// factory.
func New(definitions core.DefinitionStore, modelFactory ModelFactory, optFns ...func(o *Options)) *Registry {
	opts := Options{
		Tools:  tool.NewRegistry(),
		Logger: logging.NewNopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		cache:        make(map[string]*agent.DynamicAgent),
		definitions:  definitions,
		modelFactory: modelFactory,
		tools:        opts.Tools,
		executions:   opts.Executions,
		logger:       opts.Logger.WithComponent("registry"),
	}
}

// Tools exposes the capability registry so callers can publish tools before
// registering definitions that bind them.
func (r *Registry) Tools() *tool.Registry { return r.tools }

// Register validates and persists a definition, then eagerly instantiates
// and caches its runtime agent. A name already present in the cache or the
// store fails with DuplicateAgentError; a tool binding that cannot be
// resolved fails the whole activation with ToolLoadError and nothing is
// cached or persisted.
func (r *Registry) Register(ctx context.Context, def *core.AgentDefinition) (*agent.DynamicAgent, error) {
	r.mu.RLock()
	_, cached := r.cache[def.Name]
	r.mu.RUnlock()
	if cached {
		return nil, &core.DuplicateAgentError{Name: def.Name}
	}

	def.Normalize()
	if err := def.Validate(); err != nil {
		return nil, err
	}

	// Instantiate before persisting so a failed activation leaves no
	// partial registration behind.
	ag, err := r.instantiate(ctx, def)
	if err != nil {
		return nil, err
	}

	if err := r.definitions.Save(ctx, def); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[def.Name] = ag
	r.mu.Unlock()

	r.logger.Info("agent registered", "agent", def.Name, "fallback", def.FallbackAgent)

	return ag, nil
}

// Resolve returns the runtime agent for name, serving the cached instance
// when present and otherwise loading the definition and instantiating one.
// Two consecutive resolutions return the identical instance until ClearCache.
func (r *Registry) Resolve(ctx context.Context, name string) (*agent.DynamicAgent, error) {
	r.mu.RLock()
	ag, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return ag, nil
	}

	def, err := r.definitions.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	ag, err = r.instantiate(ctx, def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// Another goroutine may have instantiated concurrently; keep the first.
	if existing, ok := r.cache[name]; ok {
		ag = existing
	} else {
		r.cache[name] = ag
	}
	r.mu.Unlock()

	return ag, nil
}

// ResolveHandler scans active definitions in registration order and returns
// the first agent whose CanHandle predicate accepts the conversation. This
// is first-match, not best-match. A nil agent with nil error means no agent
// volunteered.
func (r *Registry) ResolveHandler(ctx context.Context, conv *core.Conversation) (*agent.DynamicAgent, error) {
	defs, err := r.definitions.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		ag, err := r.Resolve(ctx, def.Name)
		if err != nil {
			r.logger.Warn("skipping unresolvable agent", "agent", def.Name, "error", err)
			continue
		}
		if ag.CanHandle(conv, 0) {
			return ag, nil
		}
	}

	return nil, nil
}

// Seed bulk-registers definitions, typically from configuration at startup.
// It stops at the first failure.
func (r *Registry) Seed(ctx context.Context, defs ...*core.AgentDefinition) error {
	for _, def := range defs {
		if _, err := r.Register(ctx, def); err != nil {
			return fmt.Errorf("seed agent %q: %w", def.Name, err)
		}
	}
	return nil
}

// Deactivate removes the agent from the instance cache and marks its
// definition inactive. The definition stays resolvable for provenance.
func (r *Registry) Deactivate(ctx context.Context, name string) error {
	if err := r.definitions.Deactivate(ctx, name); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()

	return nil
}

// ClearCache drops all cached runtime instances. Subsequent resolutions
// re-instantiate from the definition store.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]*agent.DynamicAgent)
	r.mu.Unlock()
}

// instantiate builds a runtime agent: resolves every declared tool binding
// (all-or-nothing), constructs the chat model and compiles the schema
// contracts.
func (r *Registry) instantiate(ctx context.Context, def *core.AgentDefinition) (*agent.DynamicAgent, error) {
	bindings := make([]core.ToolBinding, 0, len(def.Tools)+len(def.Functions))
	bindings = append(bindings, def.Tools...)
	bindings = append(bindings, def.Functions...)

	tools := make([]tool.Tool, 0, len(bindings))
	for _, binding := range bindings {
		t, ok := r.tools.Get(binding.Name)
		if !ok {
			return nil, &core.ToolLoadError{
				Agent: def.Name,
				Tool:  binding.Name,
				Err:   fmt.Errorf("tool %q not registered", binding.Name),
			}
		}
		tools = append(tools, t)
	}

	chatModel, err := r.modelFactory(def)
	if err != nil {
		return nil, fmt.Errorf("build model for agent %q: %w", def.Name, err)
	}

	return agent.New(def, chatModel, func(o *agent.Options) {
		o.Tools = tools
		o.Executions = r.executions
		o.Resolver = r
		o.Logger = r.logger
	})
}

var _ agent.Resolver = (*Registry)(nil)
