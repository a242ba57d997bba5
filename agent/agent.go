package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/schema"
	"github.com/hupe1980/agentrelay/tool"
)

// Resolver resolves a fallback agent by name. Implemented by the registry;
// declared here so the agent runtime does not depend on it directly.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*DynamicAgent, error)
}

// Result is the outcome of one delegation protocol run: the final text and
// the execution row of the hop that produced it.
type Result struct {
	Text      string
	Execution *core.AgentExecution
}

// Options configure a DynamicAgent beyond its definition.
type Options struct {
	Tools      []tool.Tool
	Executions core.ExecutionStore
	Resolver   Resolver
	Logger     *logging.RelayLogger
}

// DynamicAgent is a runtime agent instantiated from an AgentDefinition.
// It is immutable after construction and safe for concurrent use.
type DynamicAgent struct {
	def        *core.AgentDefinition
	chatModel  model.Model
	inputVal   *schema.Validator
	outputVal  *schema.Validator
	tools      map[string]tool.Tool
	executions core.ExecutionStore
	resolver   Resolver
	logger     *logging.RelayLogger
}

// New instantiates a runtime agent from a normalized definition. Both schema
// documents are compiled eagerly so a malformed contract fails activation
// instead of the first request.
func New(def *core.AgentDefinition, chatModel model.Model, optFns ...func(o *Options)) (*DynamicAgent, error) {
	opts := Options{
		Logger: logging.NewNopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	inputVal, err := schema.Compile(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("agent %q input schema: %w", def.Name, err)
	}
	outputVal, err := schema.Compile(def.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("agent %q output schema: %w", def.Name, err)
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	return &DynamicAgent{
		def:        def,
		chatModel:  chatModel,
		inputVal:   inputVal,
		outputVal:  outputVal,
		tools:      tools,
		executions: opts.Executions,
		resolver:   opts.Resolver,
		logger:     opts.Logger.WithComponent("agent." + def.Name),
	}, nil
}

// Definition returns the agent's immutable definition.
func (a *DynamicAgent) Definition() *core.AgentDefinition { return a.def }

// Tools returns the tools bound to this agent at activation.
func (a *DynamicAgent) Tools() []tool.Tool {
	out := make([]tool.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t)
	}
	return out
}

// InvokeTool invokes a bound tool by name with validated arguments.
func (a *DynamicAgent) InvokeTool(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := a.tools[name]
	if !ok {
		return nil, tool.NewToolError(name, "not bound to agent "+a.def.Name, "NOT_BOUND")
	}
	return t.Call(ctx, args)
}

// CanHandle reports whether this agent accepts the conversation's latest
// turn. An agent with no input schema accepts anything; otherwise the turn
// must validate structurally. An agent already at its depth bound never
// volunteers for more work.
func (a *DynamicAgent) CanHandle(conv *core.Conversation, chainDepth int) bool {
	if chainDepth >= a.def.MaxChainDepth {
		return false
	}
	latest, ok := conv.Latest()
	if !ok {
		return false
	}
	if a.inputVal == nil {
		return true
	}

	// A JSON payload is validated as-is; plain text is validated as a string
	// instance so a {"type":"string"} contract accepts free-form turns.
	var value any
	if err := json.Unmarshal([]byte(latest.Content), &value); err != nil {
		value = latest.Content
	}

	return a.inputVal.Validate(value) == nil
}

// Process runs the delegation protocol for the conversation's latest turn.
//
// It records an AgentExecution row, renders the prompt, calls the chat model
// under the definition's timeout, validates the output and, when validation
// fails, recursively delegates to the configured fallback agent as long as
// the chain depth stays strictly below max_chain_depth. Model transport and
// provider errors abort immediately without fallback.
func (a *DynamicAgent) Process(
	ctx context.Context,
	conv *core.Conversation,
	chainDepth int,
	parentExecutionID string,
) (*Result, error) {
	latest, ok := conv.Latest()
	if !ok {
		return nil, errors.New("conversation has no messages")
	}

	exec := core.NewExecution(a.def.ID, a.def.Name, conv.ID, chainDepth, parentExecutionID)
	exec.InputData = map[string]any{"message": latest.Content}
	a.createExecution(ctx, exec)

	result, err := a.processRecorded(ctx, conv, latest.Content, exec, chainDepth)
	a.updateExecution(ctx, exec)

	return result, err
}

func (a *DynamicAgent) processRecorded(
	ctx context.Context,
	conv *core.Conversation,
	input string,
	exec *core.AgentExecution,
	chainDepth int,
) (*Result, error) {
	system, err := util.RenderTemplate(a.def.SystemPrompt, a.promptState(input))
	if err != nil {
		exec.Fail(err, "prompt_error")
		return nil, fmt.Errorf("render prompt for %q: %w", a.def.Name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.def.LLMParams.Timeout)
	defer cancel()

	resp, err := a.chatModel.Chat(callCtx, model.Request{
		System:  system,
		History: conv.History(a.def.LLMParams.ContextWindow),
		User:    input,
		Params: model.Params{
			Temperature: a.def.LLMParams.Temperature,
			TopP:        a.def.LLMParams.TopP,
			MaxTokens:   a.def.LLMParams.MaxTokens,
			Timeout:     a.def.LLMParams.Timeout,
		},
	})
	if err != nil {
		exec.Fail(err, errorType(err))
		a.logger.LogModelCall(a.chatModel.Info().Name, 0, 0, err)
		return nil, err
	}

	exec.PromptTokens = resp.Usage.PromptTokens
	exec.CompletionTokens = resp.Usage.CompletionTokens
	a.logger.LogModelCall(a.chatModel.Info().Name, resp.Usage.TotalTokens, 0, nil)

	if verr := a.validateOutput(resp.Text); verr != nil {
		return a.fallback(ctx, conv, exec, chainDepth, verr)
	}

	exec.Succeed(map[string]any{"response": resp.Text})

	return &Result{Text: resp.Text, Execution: exec}, nil
}

// fallback delegates to the configured fallback agent when output validation
// fails. The depth comparison is strict so a definition with
// max_chain_depth=1 never delegates.
func (a *DynamicAgent) fallback(
	ctx context.Context,
	conv *core.Conversation,
	exec *core.AgentExecution,
	chainDepth int,
	verr error,
) (*Result, error) {
	if a.def.FallbackAgent != "" && chainDepth+1 < a.def.MaxChainDepth && a.resolver != nil {
		fb, err := a.resolver.Resolve(ctx, a.def.FallbackAgent)
		if err == nil {
			a.logger.LogDelegation(a.def.Name, a.def.FallbackAgent, chainDepth+1)
			exec.MarkDelegated(a.def.FallbackAgent)

			res, ferr := fb.Process(ctx, conv, chainDepth+1, exec.ID)
			if ferr != nil {
				exec.Fail(ferr, "fallback_failed")
				return nil, ferr
			}
			// The usable result came from the fallback; this hop finalizes
			// as success with the delegated output.
			exec.Succeed(map[string]any{"response": res.Text})

			return res, nil
		}
		a.logger.Warn("fallback agent unavailable", "fallback", a.def.FallbackAgent, "error", err)
	}

	exhausted := &core.ValidationExhaustedError{
		Agent:       a.def.Name,
		Depth:       chainDepth,
		ExecutionID: exec.ID,
	}
	exec.Fail(exhausted, "validation_exhausted")
	exec.ErrorMessage = verr.Error()

	return nil, exhausted
}

func (a *DynamicAgent) validateOutput(text string) error {
	if a.outputVal == nil {
		return nil
	}
	return a.outputVal.ValidateJSON([]byte(text))
}

// promptState builds the template variables available to system prompts.
// Tool names are sorted so rendered prompts are stable across calls.
func (a *DynamicAgent) promptState(input string) map[string]any {
	toolNames := make([]string, 0, len(a.tools))
	for name := range a.tools {
		toolNames = append(toolNames, name)
	}
	sort.Strings(toolNames)
	return map[string]any{
		"agent_name":  a.def.Name,
		"description": a.def.Description,
		"input":       input,
		"tools":       toolNames,
	}
}

func (a *DynamicAgent) createExecution(ctx context.Context, exec *core.AgentExecution) {
	if a.executions == nil {
		return
	}
	if err := a.executions.Create(ctx, exec); err != nil {
		a.logger.Warn("failed to create execution row", "execution_id", exec.ID, "error", err)
	}
}

func (a *DynamicAgent) updateExecution(ctx context.Context, exec *core.AgentExecution) {
	if a.executions == nil {
		return
	}
	if err := a.executions.Update(ctx, exec); err != nil {
		a.logger.Warn("failed to update execution row", "execution_id", exec.ID, "error", err)
	}
}

func errorType(err error) string {
	var te *model.TransportError
	if errors.As(err, &te) {
		return "transport_error"
	}
	var me *model.ModelError
	if errors.As(err, &me) {
		return "model_error"
	}
	return "internal_error"
}
