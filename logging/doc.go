// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. StructuredLogger adds scoping helpers (component,
// conversation) and domain helpers for model and tool calls.
package logging
