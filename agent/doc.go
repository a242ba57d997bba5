// Package agent implements the dynamic, definition-driven agent runtime:
// each agent is instantiated from a stored AgentDefinition, renders its own
// system prompt, calls its configured chat model, validates the output
// against the definition's schema contract and, on failure, delegates down a
// bounded fallback chain while recording an execution provenance tree.
package agent
