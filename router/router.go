// Package router implements the orchestrator: the single entry point that
// front-ends call with an inbound message. It routes explicitly addressed
// messages (@name) straight to the named agent, scans registered agents for
// a volunteer otherwise, and falls back to a designated default agent, with
// memory context injection and post-response memory writes on the way.
package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/registry"
)

// addressMarker prefixes explicitly addressed messages: "@billing balance?".
const addressMarker = "@"

// UserInfo identifies the sender of an inbound message.
type UserInfo struct {
	ID   string
	Name string
}

// Options configure an Orchestrator.
type Options struct {
	DefaultAgent string
	MemoryLimit  int
	SessionTTL   time.Duration
	Logger       *logging.RelayLogger
}

// Orchestrator routes inbound messages to agents. Safe for concurrent use.
type Orchestrator struct {
	registry     *registry.Registry
	memory       *memory.Store
	sessions     *sessionMap
	defaultAgent string
	memoryLimit  int
	logger       *logging.RelayLogger
}

// New creates an orchestrator over the given registry and memory store.
func New(reg *registry.Registry, mem *memory.Store, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MemoryLimit: 5,
		SessionTTL:  DefaultSessionTTL,
		Logger:      logging.NewNopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		registry:     reg,
		memory:       mem,
		sessions:     newSessionMap(opts.SessionTTL),
		defaultAgent: opts.DefaultAgent,
		memoryLimit:  opts.MemoryLimit,
		logger:       opts.Logger.WithComponent("router"),
	}
}

// Handle processes one inbound message and returns the response text. The
// caller receives either a response or a typed error, never a partial
// execution tree.
func (o *Orchestrator) Handle(ctx context.Context, message string, user UserInfo, platform string) (string, error) {
	o.sessions.sweep()

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("empty message")
	}

	// Handle is serialized per session so concurrent messages from the same
	// user cannot interleave appends to the shared conversation.
	sess := o.sessions.get(user.ID, platform)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	conv := sess.conversation

	var (
		target       *agent.DynamicAgent
		forward      string
		contextBlock string
		err          error
	)

	if name, rest, ok := parseAddress(message); ok {
		target, err = o.registry.Resolve(ctx, name)
		if err != nil {
			return "", err
		}
		forward = rest
	} else {
		forward = message
		contextBlock = o.memory.FormatContext(ctx, message, o.memoryLimit)

		probe := core.NewConversation().Append(core.RoleUser, message)
		target, err = o.registry.ResolveHandler(ctx, probe)
		if err != nil {
			return "", err
		}
		if target == nil {
			if o.defaultAgent == "" {
				return "", errors.New("no agent can handle this message and no default agent is configured")
			}
			target, err = o.registry.Resolve(ctx, o.defaultAgent)
			if err != nil {
				return "", err
			}
		}
	}

	conv.Append(core.RoleUser, forward)

	// Memory context is injected into the processed copy only, so context
	// blocks never accumulate in the session history.
	procConv := conv
	if contextBlock != "" {
		msgs := make([]core.Message, 0, len(conv.Messages)+1)
		msgs = append(msgs, conv.Messages[:len(conv.Messages)-1]...)
		msgs = append(msgs, core.NewMessage(core.RoleSystem, contextBlock))
		msgs = append(msgs, conv.Messages[len(conv.Messages)-1])
		procConv = &core.Conversation{ID: conv.ID, Messages: msgs}
	}

	res, err := target.Process(ctx, procConv, 0, "")
	if err != nil {
		return "", err
	}

	conv.Append(core.RoleAssistant, res.Text)
	o.recordExchange(ctx, forward, res.Text, user, platform, conv.ID, target.Definition().Name)

	return res.Text, nil
}

// SetWorkflow marks the user as being inside an administrative workflow.
// The marker expires with the session.
func (o *Orchestrator) SetWorkflow(userID, platform, workflow string) {
	sess := o.sessions.get(userID, platform)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.workflow = workflow
}

// Workflow returns the user's current workflow marker, if any.
func (o *Orchestrator) Workflow(userID, platform string) (string, bool) {
	sess := o.sessions.get(userID, platform)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.workflow, sess.workflow != ""
}

// ClearWorkflow removes the user's workflow marker.
func (o *Orchestrator) ClearWorkflow(userID, platform string) {
	sess := o.sessions.get(userID, platform)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.workflow = ""
}

// recordExchange writes the incoming and outgoing turns to memory,
// tagged with platform and conversation identifiers. Best-effort: failures
// are already logged inside the memory store.
func (o *Orchestrator) recordExchange(ctx context.Context, incoming, outgoing string, user UserInfo, platform, conversationID, agentName string) {
	tags := map[string]string{
		"platform":        platform,
		"conversation_id": conversationID,
		"user_id":         user.ID,
		"agent":           agentName,
	}

	in := copyTags(tags)
	in["direction"] = "incoming"
	o.memory.AddMemory(ctx, incoming, core.MemoryConversation, in, 0.5)

	out := copyTags(tags)
	out["direction"] = "outgoing"
	o.memory.AddMemory(ctx, outgoing, core.MemoryConversation, out, 0.5)
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// parseAddress splits an explicitly addressed message into the agent name
// and the forwarded remainder, stripping the marker and the single space
// after the name: "@billing what is my balance" -> ("billing", "what is my
// balance").
func parseAddress(message string) (name, rest string, ok bool) {
	if !strings.HasPrefix(message, addressMarker) {
		return "", "", false
	}

	body := message[len(addressMarker):]
	if body == "" {
		return "", "", false
	}

	if idx := strings.IndexByte(body, ' '); idx >= 0 {
		return body[:idx], strings.TrimPrefix(body[idx:], " "), true
	}

	return body, "", true
}
