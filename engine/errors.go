package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/searchagent/model"
)

// ErrEmptyMessage is returned by Run when the user message is blank.
var ErrEmptyMessage = errors.New("engine: empty user message")

// ErrorKind classifies engine level failures.
type ErrorKind string

const (
	ErrorMaxIterationsExceeded ErrorKind = "MAX_ITERATIONS_EXCEEDED"
	ErrorStoreUnavailable      ErrorKind = "STORE_UNAVAILABLE"
	ErrorCallbackFailed        ErrorKind = "CALLBACK_FAILED"
)

// EngineError terminates a turn for reasons other than the model.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	switch e.Kind {
	case ErrorMaxIterationsExceeded:
		if e.Err != nil {
			return "engine: max iterations exceeded: " + e.Err.Error()
		}
		return "engine: max iterations exceeded"
	case ErrorStoreUnavailable:
		return fmt.Sprintf("engine: conversation store unavailable: %v", e.Err)
	default:
		return fmt.Sprintf("engine: %s: %v", e.Kind, e.Err)
	}
}

func (e *EngineError) Unwrap() error { return e.Err }

// ErrorCode maps a turn-terminating error to the code carried by the error
// event.
func ErrorCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return string(ee.Kind)
	}
	var me *model.ModelError
	if errors.As(err, &me) {
		return "MODEL_" + string(me.Kind)
	}
	return "INTERNAL"
}

// publicMessage is the text sent to clients for err. Provider error bodies
// stay in the logs.
func publicMessage(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		switch ee.Kind {
		case ErrorMaxIterationsExceeded:
			return "the assistant used too many tool calls and was stopped"
		case ErrorStoreUnavailable:
			return "conversation could not be saved"
		}
		return "internal error"
	}
	var me *model.ModelError
	if errors.As(err, &me) {
		if me.Kind == model.ErrorTimeout {
			return "the model did not respond in time"
		}
		return "the model is unavailable"
	}
	return "internal error"
}
