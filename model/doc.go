// Package model defines the provider-agnostic abstractions for talking to
// language models.
//
// Streaming and non-streaming generation share a single interface: partial
// responses carry text deltas and exactly one final response carries the
// complete assistant message with its tool calls. Providers (OpenAI,
// Anthropic) live in sub-packages so the engine stays decoupled from vendor
// SDKs. MockModel is a scripted implementation for tests.
package model
