// Package conversation houses concrete implementations of core.ConversationStore.
// The interface itself lives in core so that the engine never depends on a
// concrete backend.
//
// InMemoryStore is the default. Durable backends live in sub-packages
// (sqlite, redis); only the wiring layer decides which one to instantiate.
package conversation
