package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/searchagent/conversation"
	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/internal/util"
	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/model"
	"github.com/hupe1980/searchagent/tool"
)

const (
	// DefaultMaxIterations caps tool cycles per turn.
	DefaultMaxIterations = 8
	// DefaultModelTimeout bounds a single model invocation.
	DefaultModelTimeout = 60 * time.Second
	// DefaultEventBufferSize is the capacity of the event channel returned by Run.
	DefaultEventBufferSize = 64
)

// State is the position of a turn in the produce/route/invoke loop.
type State int

const (
	StateProducing State = iota
	StateRouting
	StateInvokingTools
	StateDone
)

func (s State) String() string {
	switch s {
	case StateProducing:
		return "PRODUCING"
	case StateRouting:
		return "ROUTING"
	case StateInvokingTools:
		return "INVOKING_TOOLS"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures an Engine.
type Options struct {
	// Instructions is the system prompt. It is rendered as a text/template on
	// every turn, so it may reference {{date}}.
	Instructions string

	// MaxIterations caps the INVOKING_TOOLS cycles of one turn. Zero or less
	// selects DefaultMaxIterations.
	MaxIterations int

	// ModelTimeout bounds each model invocation. Zero disables the timeout.
	ModelTimeout time.Duration

	// Stream requests incremental output from the model. Providers that do not
	// stream still produce one text_delta per message.
	Stream bool

	EventBufferSize int

	Callbacks *CallbackManager

	Logger logging.Logger
}

// Engine runs turns against a model, a conversation store and a tool executor.
// An Engine is safe for concurrent use; each Run call is an independent turn.
// Turns on the same conversation id must be serialized by the caller.
type Engine struct {
	model    model.Model
	store    core.ConversationStore
	executor *tool.Executor
	opts     Options
	logger   logging.Logger
}

// New creates an engine. A nil store selects an in-memory store and a nil
// executor selects one with no tools.
func New(m model.Model, store core.ConversationStore, executor *tool.Executor, optFns ...func(o *Options)) (*Engine, error) {
	if m == nil {
		return nil, errors.New("engine: model is required")
	}

	opts := Options{
		MaxIterations:   DefaultMaxIterations,
		ModelTimeout:    DefaultModelTimeout,
		Stream:          true,
		EventBufferSize: DefaultEventBufferSize,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	if store == nil {
		store = conversation.NewInMemoryStore()
	}
	if executor == nil {
		executor = tool.NewExecutor(tool.NewRegistry())
	}

	return &Engine{
		model:    m,
		store:    store,
		executor: executor,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}, nil
}

// Callbacks returns the engine's callback manager for registration.
func (e *Engine) Callbacks() *CallbackManager { return e.opts.Callbacks }

// Store returns the conversation store the engine persists to.
func (e *Engine) Store() core.ConversationStore { return e.store }

// Run starts a turn. An empty or unknown conversationID starts a fresh
// conversation; the id actually used is returned. Events are delivered on the
// returned channel, which is closed when the turn ends. If ctx is cancelled the
// channel is closed without an end_of_turn event.
func (e *Engine) Run(ctx context.Context, conversationID, userMessage string) (string, <-chan core.AgentEvent, error) {
	t, err := e.newTurn(ctx, conversationID, userMessage)
	if err != nil {
		return "", nil, err
	}

	go t.run(ctx)

	return t.conversationID, t.events, nil
}

// TurnResult is the collected outcome of RunSync.
type TurnResult struct {
	ConversationID string
	// Reply is the concatenated text of all text_delta events.
	Reply  string
	Events []core.AgentEvent
}

// RunSync runs a turn to completion. The returned error is the error that
// ended the turn, if any; the result is populated either way.
func (e *Engine) RunSync(ctx context.Context, conversationID, userMessage string) (*TurnResult, error) {
	t, err := e.newTurn(ctx, conversationID, userMessage)
	if err != nil {
		return nil, err
	}

	go t.run(ctx)

	res := &TurnResult{ConversationID: t.conversationID}
	var reply strings.Builder
	for ev := range t.events {
		res.Events = append(res.Events, ev)
		if ev.Type == core.EventTextDelta {
			reply.WriteString(ev.Content)
		}
	}
	res.Reply = reply.String()

	if t.err != nil {
		return res, t.err
	}
	if len(res.Events) == 0 || !res.Events[len(res.Events)-1].IsTerminal() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		return res, errors.New("engine: turn ended without end_of_turn")
	}

	return res, nil
}

func (e *Engine) newTurn(ctx context.Context, conversationID, userMessage string) (*turn, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := e.store.Load(ctx, conversationID)
	if err != nil {
		return nil, &EngineError{Kind: ErrorStoreUnavailable, Err: err}
	}

	instructions, err := util.RenderTemplate(e.opts.Instructions, map[string]any{
		"conversation_id": conv.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: render instructions: %w", err)
	}

	user := core.NewUserMessage(userMessage)
	history := make([]core.Message, 0, len(conv.Messages)+1)
	history = append(history, conv.Messages...)
	history = append(history, user)

	logger := e.logger
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		logger = sl.WithConversation(conv.ID)
	}

	return &turn{
		engine:         e,
		conversationID: conv.ID,
		instructions:   instructions,
		history:        history,
		staged:         []core.Message{user},
		limiter:        core.NewIterationLimiter(e.opts.MaxIterations),
		events:         make(chan core.AgentEvent, e.opts.EventBufferSize),
		logger:         logger,
	}, nil
}

// turn holds the mutable state of one Run.
type turn struct {
	engine         *Engine
	conversationID string
	instructions   string

	// history is the conversation as the model sees it, staged messages included.
	history []core.Message
	// staged messages are not yet committed to the store.
	staged []core.Message

	limiter *core.IterationLimiter
	events  chan core.AgentEvent
	logger  logging.Logger

	// err is the error that ended the turn. It is written before events is
	// closed.
	err error
}

func (t *turn) run(ctx context.Context) {
	defer close(t.events)

	start := time.Now()
	t.logger.Info("engine.turn.start", "conversation_id", t.conversationID, "history", len(t.history)-1)

	var last core.Message
	state := StateProducing

	for state != StateDone {
		t.logger.Debug("engine.state", "state", state.String(), "iteration", t.limiter.Count())

		switch state {
		case StateProducing:
			msg, err := t.produce(ctx)
			if err != nil {
				t.fail(ctx, err)
				return
			}
			last = msg
			t.history = append(t.history, msg)
			t.staged = append(t.staged, msg)
			if !msg.HasToolCalls() {
				if err := t.commit(ctx); err != nil {
					t.fail(ctx, err)
					return
				}
			}
			state = StateRouting

		case StateRouting:
			if !last.HasToolCalls() {
				state = StateDone
				continue
			}
			if err := t.limiter.Increment(); err != nil {
				t.truncate()
				if cerr := t.commit(ctx); cerr != nil {
					t.fail(ctx, cerr)
					return
				}
				t.fail(ctx, &EngineError{Kind: ErrorMaxIterationsExceeded, Err: err})
				return
			}
			state = StateInvokingTools

		case StateInvokingTools:
			if err := t.invokeTools(ctx, last.ToolCalls); err != nil {
				t.fail(ctx, err)
				return
			}
			if err := t.commit(ctx); err != nil {
				t.fail(ctx, err)
				return
			}
			state = StateProducing
		}
	}

	if err := t.emit(ctx, core.NewEndOfTurnEvent()); err != nil {
		return
	}

	t.logger.Info("engine.turn.end",
		"conversation_id", t.conversationID,
		"iterations", t.limiter.Count(),
		"duration", time.Since(start),
	)
}

// produce runs one model invocation and returns the finished assistant
// message. Text increments are emitted as they arrive.
func (t *turn) produce(ctx context.Context) (core.Message, error) {
	e := t.engine

	req := model.Request{
		Instructions: t.instructions,
		Messages:     t.history,
		Tools:        e.executor.Registry().Definitions(),
		Stream:       e.opts.Stream,
	}

	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, &CallbackContext{
		ConversationID: t.conversationID,
		Iteration:      t.limiter.Count(),
		Request:        &req,
	}); err != nil {
		return core.Message{}, &EngineError{Kind: ErrorCallbackFailed, Err: err}
	}

	mctx, cancel := ctx, context.CancelFunc(func() {})
	if e.opts.ModelTimeout > 0 {
		mctx, cancel = context.WithTimeout(ctx, e.opts.ModelTimeout)
	}
	defer cancel()

	info := e.model.Info()
	start := time.Now()
	respCh, errCh := e.model.Generate(mctx, req)

	var (
		final    core.Message
		gotFinal bool
		streamed bool
		usage    *model.TokenUsage
	)
	for resp := range respCh {
		if resp.Partial {
			if resp.Delta == "" {
				continue
			}
			streamed = true
			if err := t.emit(ctx, core.NewTextDeltaEvent(resp.Delta)); err != nil {
				return core.Message{}, err
			}
			continue
		}
		final = resp.Message
		gotFinal = true
		usage = resp.Usage
	}

	err := <-errCh
	t.logModelCall(info.Name, time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return core.Message{}, ctx.Err()
		}
		return core.Message{}, model.NewModelError(info.Provider, err)
	}
	if ctx.Err() != nil {
		return core.Message{}, ctx.Err()
	}
	if !gotFinal {
		return core.Message{}, model.NewModelError(info.Provider, errors.New("model returned no message"))
	}

	if !streamed && final.Content != "" {
		if err := t.emit(ctx, core.NewTextDeltaEvent(final.Content)); err != nil {
			return core.Message{}, err
		}
	}

	final.Role = core.RoleAssistant
	if final.ID == "" {
		final.ID = core.NewID()
	}
	if final.CreatedAt.IsZero() {
		final.CreatedAt = time.Now().UTC()
	}

	t.logger.Debug("engine.model.done", "model", info.Name, "tool_calls", len(final.ToolCalls), "usage", usage)

	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, &CallbackContext{
		ConversationID: t.conversationID,
		Iteration:      t.limiter.Count(),
		Request:        &req,
		Message:        &final,
	}); err != nil {
		return core.Message{}, &EngineError{Kind: ErrorCallbackFailed, Err: err}
	}

	return final, nil
}

// invokeTools runs a batch. Calls execute concurrently; events and tool
// messages follow call order.
func (t *turn) invokeTools(ctx context.Context, calls []core.ToolCall) error {
	e := t.engine

	for i := range calls {
		if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, &CallbackContext{
			ConversationID: t.conversationID,
			Iteration:      t.limiter.Count(),
			ToolCall:       &calls[i],
		}); err != nil {
			return &EngineError{Kind: ErrorCallbackFailed, Err: err}
		}
	}

	results := e.executor.Execute(ctx, calls)

	for i, call := range calls {
		if err := t.emit(ctx, core.NewToolStartEvent(call)); err != nil {
			return err
		}

		var res tool.Result
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !res.Skipped {
			t.logToolCall(call.Name, res.Duration, res.Err)
		}

		if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, &CallbackContext{
			ConversationID: t.conversationID,
			Iteration:      t.limiter.Count(),
			ToolCall:       &calls[i],
			Result:         &res,
		}); err != nil {
			return &EngineError{Kind: ErrorCallbackFailed, Err: err}
		}

		if msg, ok := res.Message(); ok {
			t.history = append(t.history, msg)
			t.staged = append(t.staged, msg)
		}

		if err := t.emit(ctx, core.NewToolEndEvent(call)); err != nil {
			return err
		}
	}

	return nil
}

// truncate strips the tool calls from the pending assistant message so the
// committed history has no unanswered call.
func (t *turn) truncate() {
	for i := len(t.staged) - 1; i >= 0; i-- {
		if t.staged[i].Role == core.RoleAssistant {
			t.staged[i].ToolCalls = nil
			t.staged[i].Truncated = true
			break
		}
	}
	t.logger.Warn("engine.turn.truncated", "conversation_id", t.conversationID, "max_iterations", t.engine.opts.MaxIterations)
}

func (t *turn) commit(ctx context.Context) error {
	if len(t.staged) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.engine.store.Append(ctx, t.conversationID, t.staged...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &EngineError{Kind: ErrorStoreUnavailable, Err: err}
	}
	t.staged = nil

	return nil
}

// fail ends the turn with err. Cancellation ends it silently.
func (t *turn) fail(ctx context.Context, err error) {
	t.staged = nil

	if ctx.Err() != nil {
		t.err = ctx.Err()
		t.logger.Info("engine.turn.cancelled", "conversation_id", t.conversationID, "error", ctx.Err())
		return
	}

	t.err = err
	t.logger.Error("engine.turn.error", "conversation_id", t.conversationID, "code", ErrorCode(err), "error", err)

	_ = t.engine.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{
		ConversationID: t.conversationID,
		Iteration:      t.limiter.Count(),
		Err:            err,
	})

	if t.emit(ctx, core.NewErrorEvent(ErrorCode(err), publicMessage(err))) != nil {
		return
	}
	_ = t.emit(ctx, core.NewEndOfTurnEvent())
}

func (t *turn) logModelCall(name string, dur time.Duration, err error) {
	if sl, ok := t.logger.(*logging.StructuredLogger); ok {
		sl.LogModelCall(name, dur, err)
		return
	}
	t.logger.Debug("model.call", "model", name, "duration", dur, "error", err)
}

func (t *turn) logToolCall(name string, dur time.Duration, err error) {
	if sl, ok := t.logger.(*logging.StructuredLogger); ok {
		sl.LogToolCall(name, dur, err)
		return
	}
	t.logger.Debug("tool.call", "tool_name", name, "duration", dur, "error", err)
}

func (t *turn) emit(ctx context.Context, ev core.AgentEvent) error {
	select {
	case t.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
