// Package testutil contains helpers shared by tests: a fluent builder for
// conversation histories and a testify mock of core.ConversationStore. They
// are not intended for production usage.
package testutil
