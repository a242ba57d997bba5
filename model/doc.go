// Package model defines the chat-model abstraction used by dynamic agents,
// with adapters for OpenAI and Anthropic plus reliability decorators for
// rate limiting and circuit breaking.
package model
