// Package sse encodes agent events as text/event-stream frames.
//
// Every frame is a single data line carrying a compact JSON object whose
// "type" field names the variant:
//
//	data: {"type":"checkpoint","checkpoint_id":"..."}
//	data: {"type":"content","content":"Hel"}
//	data: {"type":"tool_start","tool":"tavily_search_results_json","call_id":"c1","arguments":"{...}"}
//	data: {"type":"tool_end","tool":"tavily_search_results_json","call_id":"c1"}
//	data: {"type":"error","code":"MODEL_TIMEOUT","message":"..."}
//	data: {"type":"end"}
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hupe1980/searchagent/core"
)

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// Frame payload types.
const (
	TypeCheckpoint = "checkpoint"
	TypeContent    = "content"
	TypeToolStart  = "tool_start"
	TypeToolEnd    = "tool_end"
	TypeError      = "error"
	TypeEnd        = "end"
)

// ErrStreamingUnsupported is returned by NewWriter when the response writer
// cannot flush.
var ErrStreamingUnsupported = errors.New("sse: streaming unsupported")

// Payload is the JSON body of one frame.
type Payload struct {
	Type         string `json:"type"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
	Content      string `json:"content,omitempty"`
	Tool         string `json:"tool,omitempty"`
	CallID       string `json:"call_id,omitempty"`
	Arguments    string `json:"arguments,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

// PayloadFor maps an agent event to its frame payload.
func PayloadFor(ev core.AgentEvent) (Payload, error) {
	switch ev.Type {
	case core.EventTextDelta:
		return Payload{Type: TypeContent, Content: ev.Content}, nil
	case core.EventToolStart:
		return Payload{Type: TypeToolStart, Tool: ev.ToolName, CallID: ev.CallID, Arguments: ev.Arguments}, nil
	case core.EventToolEnd:
		return Payload{Type: TypeToolEnd, Tool: ev.ToolName, CallID: ev.CallID}, nil
	case core.EventError:
		return Payload{Type: TypeError, Code: ev.ErrorCode, Message: ev.ErrorMessage}, nil
	case core.EventEndOfTurn:
		return Payload{Type: TypeEnd}, nil
	default:
		return Payload{}, fmt.Errorf("sse: unknown event type %q", ev.Type)
	}
}

// Encode returns the wire frame for ev.
func Encode(ev core.AgentEvent) ([]byte, error) {
	p, err := PayloadFor(ev)
	if err != nil {
		return nil, err
	}
	return EncodePayload(p)
}

// EncodePayload returns the wire frame for p. Text is not HTML-escaped.
func EncodePayload(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("data: ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	// Encode terminated the JSON with one newline; the blank line ends the frame.
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// Writer writes frames to an HTTP response and flushes each one.
type Writer struct {
	bw      *bufio.Writer
	flusher http.Flusher
}

// NewWriter sets the event stream headers on w and returns a frame writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Writer{bw: bufio.NewWriterSize(w, 4096), flusher: flusher}, nil
}

// WriteCheckpoint announces the conversation id of the stream.
func (w *Writer) WriteCheckpoint(id string) error {
	return w.writePayload(Payload{Type: TypeCheckpoint, CheckpointID: id})
}

// WriteEvent writes and flushes one agent event.
func (w *Writer) WriteEvent(ev core.AgentEvent) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	return w.write(frame)
}

// KeepAlive writes a comment frame that clients ignore.
func (w *Writer) KeepAlive() error {
	return w.write([]byte(": keepalive\n\n"))
}

func (w *Writer) writePayload(p Payload) error {
	frame, err := EncodePayload(p)
	if err != nil {
		return err
	}
	return w.write(frame)
}

func (w *Writer) write(frame []byte) error {
	if _, err := w.bw.Write(frame); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
