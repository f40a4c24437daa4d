package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/logging"
)

// DefaultToolTimeout bounds a single tool call.
const DefaultToolTimeout = 30 * time.Second

// Result is the outcome of one tool call in a batch.
type Result struct {
	Call     core.ToolCall
	Content  string
	Err      error
	Skipped  bool // no tool registered under Call.Name
	Duration time.Duration
}

// Message converts the result into the tool message recorded in the
// conversation. Skipped calls produce no message.
func (r Result) Message() (core.Message, bool) {
	if r.Skipped {
		return core.Message{}, false
	}
	if r.Err != nil {
		return core.NewToolMessage(r.Call.ID, r.Call.Name, "error: "+r.Err.Error(), true), true
	}
	return core.NewToolMessage(r.Call.ID, r.Call.Name, r.Content, false), true
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxParallel bounds concurrent calls per batch. 0 or less means no limit.
	MaxParallel int
	// Timeout bounds each call. 0 or less disables the per call timeout.
	Timeout time.Duration
	Logger  logging.Logger
}

// Executor runs batches of tool calls against a Registry.
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
	logger   logging.Logger
}

// NewExecutor creates an executor dispatching to registry.
func NewExecutor(registry *Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Timeout: DefaultToolTimeout,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Executor{registry: registry, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Registry returns the registry the executor dispatches to.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute starts all calls and returns immediately with one channel per call,
// in call order. Each channel yields exactly one Result and is then closed.
// Calls run concurrently; a failing call never cancels its siblings.
func (e *Executor) Execute(ctx context.Context, calls []core.ToolCall) []<-chan Result {
	out := make([]<-chan Result, len(calls))
	chans := make([]chan Result, len(calls))
	for i := range calls {
		chans[i] = make(chan Result, 1)
		out[i] = chans[i]
	}
	if len(calls) == 0 {
		return out
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > len(calls) {
		maxPar = len(calls)
	}
	sem := make(chan struct{}, maxPar)

	go func() {
		for i, call := range calls {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				for j := i; j < len(calls); j++ {
					chans[j] <- Result{Call: calls[j], Err: ctx.Err()}
					close(chans[j])
				}
				return
			}

			go func(call core.ToolCall, ch chan<- Result) {
				defer func() { <-sem }()
				ch <- e.run(ctx, call)
				close(ch)
			}(call, chans[i])
		}
	}()

	return out
}

// ExecuteAll runs calls and waits for every result.
func (e *Executor) ExecuteAll(ctx context.Context, calls []core.ToolCall) []Result {
	chans := e.Execute(ctx, calls)
	results := make([]Result, len(chans))
	for i, ch := range chans {
		results[i] = <-ch
	}
	return results
}

func (e *Executor) run(ctx context.Context, call core.ToolCall) Result {
	start := time.Now()
	res := Result{Call: call}

	if _, ok := e.registry.Lookup(call.Name); !ok {
		e.logger.Warn("tool.call.unknown", "tool", call.Name, "call_id", call.ID)
		res.Skipped = true
		return res
	}

	callCtx := ContextWithLogger(ctx, e.logger)
	cancel := func() {}
	if e.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(callCtx, e.opts.Timeout)
	}
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() { // panic safety
			if r := recover(); r != nil {
				e.logger.Error("tool.call.panic", "tool", call.Name, "call_id", call.ID, "recover", r)
				done <- outcome{err: &ToolError{Tool: call.Name, Message: "panic recovered", Code: CodeUnavailable, Details: panicErr{val: r, stack: debug.Stack()}}}
			}
		}()
		content, err := e.registry.Invoke(callCtx, call.Name, call.Arguments)
		done <- outcome{content: content, err: err}
	}()

	// The call may ignore its context; the select bounds how long we wait.
	select {
	case o := <-done:
		res.Content, res.Err = o.content, o.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Err = NewToolError(call.Name, fmt.Sprintf("timed out after %s", e.opts.Timeout), CodeTimeout)
		} else {
			res.Err = ctx.Err()
		}
	}
	if ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		e.logger.Warn("tool.call.failed", "tool", call.Name, "call_id", call.ID, "code", ErrorCode(res.Err), "duration_ms", res.Duration.Milliseconds(), "error", res.Err.Error())
	} else {
		e.logger.Info("tool.call.completed", "tool", call.Name, "call_id", call.ID, "duration_ms", res.Duration.Milliseconds())
	}
	return res
}

type panicErr struct {
	val   any
	stack []byte
}

func (p panicErr) String() string { return fmt.Sprintf("%v\n%s", p.val, p.stack) }
