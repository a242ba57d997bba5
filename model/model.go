package model

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// Params carries the per-call model parameters. Timeout is applied by the
// caller via context deadline; it is included here so adapters can surface
// it to providers that accept an explicit request timeout.
type Params struct {
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int64         `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// Request is a single chat turn: system prompt, prior conversation history
// and the current user turn.
type Request struct {
	System  string         `json:"system"`
	History []core.Message `json:"history,omitempty"`
	User    string         `json:"user"`
	Params  Params         `json:"params"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed model output for one chat turn.
type Response struct {
	Text  string     `json:"text"`
	Usage TokenUsage `json:"usage"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface the delegation engine needs to drive text
// generation. Failures surface as *TransportError (network / connectivity)
// or *ModelError (provider-reported) so callers can distinguish the two.
type Model interface {
	Chat(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// TransportError indicates the provider could not be reached or the
// connection failed before a model-level answer was produced.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ModelError indicates the provider answered with a model-level failure
// (invalid request, content refusal, quota, etc.).
type ModelError struct {
	Provider string
	Code     string
	Message  string
}

func (e *ModelError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s model error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s model error: %s", e.Provider, e.Message)
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are keyed by the user turn; unknown turns get a generic echo.
type MockModel struct {
	info      Info
	responses map[string]string
	err       error
	calls     int
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a user turn.
func (m *MockModel) AddResponse(userTurn, response string) { m.responses[userTurn] = response }

// FailWith makes every subsequent Chat call return err.
func (m *MockModel) FailWith(err error) { m.err = err }

// Calls returns how many Chat invocations the mock has served.
func (m *MockModel) Calls() int { return m.calls }

// Chat implements Model.
func (m *MockModel) Chat(ctx context.Context, req Request) (*Response, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	select {
	case <-ctx.Done():
		return nil, &TransportError{Provider: "mock", Err: ctx.Err()}
	default:
	}
	text, ok := m.responses[req.User]
	if !ok {
		text = fmt.Sprintf("Mock response to: %s", req.User)
	}
	return &Response{
		Text: text,
		Usage: TokenUsage{
			PromptTokens:     len(req.System) + len(req.User),
			CompletionTokens: len(text),
			TotalTokens:      len(req.System) + len(req.User) + len(text),
		},
	}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
