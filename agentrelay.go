// Package agentrelay provides a high-level façade over the agent registry,
// orchestrator, memory subsystem and trigger monitor, enabling rapid
// construction of delegating multi-agent responders. Most applications
// interact with this package by:
//  1. Creating an AgentRelay via New() (optionally overriding the in-memory stores)
//  2. Publishing tools and registering agent definitions
//  3. Handling inbound messages via Handle and submitting platform events via Submit
//
// The façade delegates routing to router.Orchestrator while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply the SQLite store and
// a structured logger.
package agentrelay

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/model/anthropic"
	"github.com/hupe1980/agentrelay/model/openai"
	"github.com/hupe1980/agentrelay/registry"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/store"
	"github.com/hupe1980/agentrelay/trigger"
)

// Options configures the AgentRelay instance.
type Options struct {
	// Config supplies startup defaults and seed agents. Defaults to
	// config.Default() if nil.
	Config *config.Config

	// DefaultAgent handles messages no registered agent volunteers for.
	DefaultAgent string

	// ModelFactory builds the chat model per definition. Defaults to a
	// provider switch over the official OpenAI and Anthropic clients.
	ModelFactory registry.ModelFactory

	// Stores (default to in-memory implementations if not provided).
	Definitions core.DefinitionStore
	Executions  core.ExecutionStore
	LongTerm    core.LongTermStore

	// Logger (defaults to a silent logger if nil).
	Logger *logging.RelayLogger
}

// AgentRelay is the high-level façade aggregating the registry, memory
// store, orchestrator and trigger monitor.
type AgentRelay struct {
	opts     Options
	registry *registry.Registry
	memory   *memory.Store
	router   *router.Orchestrator
	monitor  *trigger.Monitor
	events   *trigger.Store
}

// New creates a new AgentRelay with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*AgentRelay, error) {
	opts := Options{
		Config:      config.Default(),
		Definitions: store.NewDefinitionStore(),
		Executions:  store.NewExecutionStore(),
		LongTerm:    store.NewLongTermStore(),
		Logger:      logging.NewNopLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ModelFactory == nil {
		opts.ModelFactory = DefaultModelFactory
	}

	reg := registry.New(opts.Definitions, opts.ModelFactory, func(o *registry.Options) {
		o.Executions = opts.Executions
		o.Logger = opts.Logger
	})

	mem := memory.NewStore("relay", func(o *memory.Options) {
		o.ShortTermCap = opts.Config.Memory.ShortTermCap
		o.ConsolidateWindow = opts.Config.Memory.ConsolidateWindow
		o.RetainCount = opts.Config.Memory.RetainCount
		o.LongTerm = opts.LongTerm
		o.Logger = opts.Logger
	})

	events := trigger.NewStore()
	monitor := trigger.NewMonitor(events, func(o *trigger.MonitorOptions) {
		o.Workers = opts.Config.Trigger.Workers
		o.QueueSize = opts.Config.Trigger.QueueSize
		o.Logger = opts.Logger
	})

	orch := router.New(reg, mem, func(o *router.Options) {
		o.DefaultAgent = opts.DefaultAgent
		o.Logger = opts.Logger
	})

	relay := &AgentRelay{
		opts:     opts,
		registry: reg,
		memory:   mem,
		router:   orch,
		monitor:  monitor,
		events:   events,
	}

	if len(opts.Config.Agents) > 0 {
		if err := reg.Seed(context.Background(), opts.Config.SeedDefinitions()...); err != nil {
			monitor.Close()
			return nil, err
		}
	}

	return relay, nil
}

// DefaultModelFactory builds a chat model from the definition's provider and
// model id using the official SDK clients.
func DefaultModelFactory(def *core.AgentDefinition) (model.Model, error) {
	switch def.LLMProvider {
	case "openai", "":
		return openai.NewModel(func(o *openai.Options) {
			if def.LLMModel != "" {
				o.Model = def.LLMModel
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if def.LLMModel != "" {
				o.Model = anthropicsdk.Model(def.LLMModel)
			}
		}), nil
	case "mock":
		return model.NewMockModel(def.LLMModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", def.LLMProvider)
	}
}

// Registry exposes the agent registry for registration and resolution.
func (r *AgentRelay) Registry() *registry.Registry { return r.registry }

// Memory exposes the tiered memory store.
func (r *AgentRelay) Memory() *memory.Store { return r.memory }

// Events exposes the trigger event store for status queries.
func (r *AgentRelay) Events() *trigger.Store { return r.events }

// RegisterAgent validates, persists and activates an agent definition.
func (r *AgentRelay) RegisterAgent(ctx context.Context, def *core.AgentDefinition) (*agent.DynamicAgent, error) {
	return r.registry.Register(ctx, def)
}

// Handle routes one inbound message and returns the response text.
func (r *AgentRelay) Handle(ctx context.Context, message string, user router.UserInfo, platform string) (string, error) {
	return r.router.Handle(ctx, message, user, platform)
}

// RegisterTrigger binds a handler to a trigger type.
func (r *AgentRelay) RegisterTrigger(triggerType string, handler trigger.Handler) {
	r.monitor.RegisterTrigger(triggerType, handler)
}

// Submit enqueues a platform event for background processing.
func (r *AgentRelay) Submit(event *trigger.Event) error {
	return r.monitor.Submit(event)
}

// Close drains the trigger worker pool.
func (r *AgentRelay) Close() {
	r.monitor.Close()
}
