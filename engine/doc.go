// Package engine runs conversational turns against a language model that may
// call tools mid-turn.
//
// A turn is a small state machine:
//
//	PRODUCING ──► ROUTING ──► DONE
//	    ▲            │
//	    │            ▼
//	    └──── INVOKING_TOOLS
//
// PRODUCING streams the model's reply as text_delta events. ROUTING inspects
// the finished assistant message: tool calls lead to INVOKING_TOOLS, anything
// else ends the turn. INVOKING_TOOLS runs the batch concurrently but emits
// tool_start/tool_end and records tool results strictly in call order, then
// loops back to PRODUCING.
//
// # Persistence
//
// Messages reach the ConversationStore in complete units only: a tool-free
// assistant message at the end of PRODUCING, or an assistant message together
// with all of its tool results at the end of INVOKING_TOOLS. The user message
// is committed with the first of these units. A cancelled turn commits
// nothing further, so history never contains a tool call without its result.
//
// # Termination
//
// Every turn that is not cancelled ends with exactly one end_of_turn event.
// Model failures, store failures and the iteration guard end the turn with an
// error event immediately before end_of_turn. Tool failures do not end the
// turn; they are recorded as error tool results the model can react to.
//
// # Usage
//
//	eng, err := engine.New(openai.NewModel(), store, tool.NewExecutor(registry))
//	if err != nil {
//	    return err
//	}
//
//	id, events, err := eng.Run(ctx, checkpointID, "What happened in Go 1.25?")
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    // forward ev to the client
//	}
package engine
