// Package core provides the foundational domain types and interfaces shared by
// the searchagent packages. It defines:
//
//   - Messages (user, assistant, tool) and the tool calls assistants request
//   - Conversations (the persisted, ordered message history behind a checkpoint id)
//   - AgentEvents (the incremental units streamed to callers during a turn)
//   - The ConversationStore contract and the ordering invariant every store enforces
//
// Implementation concerns (persistence backends, model providers, the engine
// state machine) live in their own packages and depend on core, never the
// other way around.
package core
