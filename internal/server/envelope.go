package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/untoldecay/loom/internal/errs"
)

// Version of the server, stamped into every response envelope.
const Version = "0.3.0"

// Envelope is the standard tool response wrapper.
type Envelope struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Data     any            `json:"data"`
	Error    *EnvelopeError `json:"error"`
	Metadata Metadata       `json:"metadata"`
}

// EnvelopeError is the error half of the envelope.
type EnvelopeError struct {
	Code           errs.Code      `json:"code"`
	Details        string         `json:"details"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// Metadata stamps every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func newMetadata() Metadata {
	return Metadata{Timestamp: time.Now().UTC(), Version: Version}
}

// ok wraps a successful result in the envelope as a text tool result.
func ok(message string, data any) (*mcp.CallToolResult, error) {
	return marshalEnvelope(Envelope{
		Success:  true,
		Message:  message,
		Data:     data,
		Metadata: newMetadata(),
	})
}

// fail wraps a tagged error in the envelope. The error never propagates as a
// protocol failure; tools always answer with the envelope.
func fail(err error) (*mcp.CallToolResult, error) {
	env := Envelope{
		Success:  false,
		Metadata: newMetadata(),
		Error:    &EnvelopeError{Code: errs.CodeInternal},
	}
	if e := errs.As(err); e != nil {
		env.Message = e.Message
		env.Error.Code = e.Code
		env.Error.Details = e.Details
		if env.Error.Details == "" {
			env.Error.Details = e.Message
		}
		env.Error.AdditionalData = e.Extra
	} else {
		env.Message = err.Error()
		env.Error.Details = err.Error()
	}
	return marshalEnvelope(env)
}

// failValidation shortcuts argument errors before a service runs.
func failValidation(format string, args ...any) (*mcp.CallToolResult, error) {
	return fail(errs.Validation(format, args...))
}

func marshalEnvelope(env Envelope) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Error("failed to marshal response envelope", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}
