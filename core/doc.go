// Package core provides the foundational domain types, interfaces and error
// taxonomy used by AgentRelay. It defines the core abstractions for:
//
//   - AgentDefinition (declarative agent catalog entries)
//   - AgentExecution (provenance records for every delegation attempt)
//   - Conversation / Message (ordered conversational turns)
//   - MemoryEntry (timestamped, typed, importance-scored memory items)
//   - Pluggable stores for definitions, executions and long-term memory
//
// The package intentionally keeps implementation concerns (persistence,
// routing, concrete agents) out of scope, exposing small interfaces to
// enable custom backends and extensions.
package core
