package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/model"
	"github.com/hupe1980/searchagent/tool"
)

// CallbackType defines the lifecycle points where callbacks run.
type CallbackType string

const (
	// CallbackBeforeModel runs before every model invocation.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel runs after the model produced a complete assistant message.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool runs once per tool call before the batch is dispatched.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool runs once per tool call, in call order, as results arrive.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError runs when a turn terminates with an error.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the information available at a callback point.
// Fields not relevant to the callback type are zero.
type CallbackContext struct {
	ConversationID string
	// Iteration is the number of completed tool cycles in the current turn.
	Iteration int

	Request  *model.Request
	Message  *core.Message
	ToolCall *core.ToolCall
	Result   *tool.Result
	Err      error
}

// Callback hooks into the turn lifecycle. Returning an error from any callback
// other than CallbackOnError terminates the turn.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, cbCtx)
}

// CallbackManager holds callbacks by type and runs them in registration order.
// It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// ExecuteCallbacks runs all callbacks registered for callbackType. The first
// error stops execution and is returned.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, cbCtx *CallbackContext) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, cbCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes a debug record for every callback point it is
// registered for.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logging.OrNoOp(logger)}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the callback point with whatever context is available.
func (c *LoggingCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	args := []any{"callback", string(c.callbackType), "conversation_id", cbCtx.ConversationID, "iteration", cbCtx.Iteration}
	if cbCtx.ToolCall != nil {
		args = append(args, "tool", cbCtx.ToolCall.Name, "call_id", cbCtx.ToolCall.ID)
	}
	if cbCtx.Message != nil {
		args = append(args, "tool_calls", len(cbCtx.Message.ToolCalls))
	}
	if cbCtx.Err != nil {
		args = append(args, "error", cbCtx.Err)
	}
	c.logger.Debug("engine.callback", args...)
	return nil
}
