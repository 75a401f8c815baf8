// Package toolrun implements the tool registry and concurrent tool
// orchestrator from spec.md 4.6: a fixed-shape output envelope every
// tool call returns, and a goroutine-based executor that runs a batch
// of tool calls concurrently while preserving ordering and interrupt
// semantics.
package toolrun

import "encoding/json"

// OutputKind discriminates the ToolOutput sum type.
type OutputKind string

const (
	OutputSuccess  OutputKind = "success"
	OutputFailure  OutputKind = "failure"
	OutputCanceled OutputKind = "canceled"
)

// canceledErrorCode is the sentinel error code a Canceled output
// serializes under; on the way back in, an error with this code
// deserializes to Canceled rather than Failure.
const canceledErrorCode = "canceled"

// ToolError carries the failure detail for a Failure output.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ImageContent is vision-capable output content. It is never part of the
// JSON envelope sent to the model; callers that need to attach an image
// to a provider request read it off the envelope directly.
type ImageContent struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolOutput is the structured envelope every tool invocation returns,
// per spec.md 6: exactly one of the three shapes below. Canceled
// serializes onto the wire as a Failure with code "canceled" but
// round-trips back to a distinct Canceled value, so a caller that only
// inspects the JSON sees an ordinary error while in-process code can
// still distinguish "the model's tool call failed" from "the user
// interrupted it".
type ToolOutput struct {
	Kind            OutputKind
	Data            json.RawMessage
	Image           *ImageContent
	Err             *ToolError
	CanceledMessage string
}

func Success(data json.RawMessage) ToolOutput {
	return ToolOutput{Kind: OutputSuccess, Data: data}
}

func SuccessWithImage(data json.RawMessage, image ImageContent) ToolOutput {
	return ToolOutput{Kind: OutputSuccess, Data: data, Image: &image}
}

func Failure(code, message, details string) ToolOutput {
	return ToolOutput{Kind: OutputFailure, Err: &ToolError{Code: code, Message: message, Details: details}}
}

func Canceled(message string) ToolOutput {
	return ToolOutput{Kind: OutputCanceled, CanceledMessage: message}
}

func (o ToolOutput) IsOK() bool { return o.Kind == OutputSuccess }

// ErrorInfo returns the code/message/details of a Failure or Canceled
// output. ok is false for a Success output.
func (o ToolOutput) ErrorInfo() (code, message, details string, ok bool) {
	switch o.Kind {
	case OutputFailure:
		return o.Err.Code, o.Err.Message, o.Err.Details, true
	case OutputCanceled:
		return canceledErrorCode, o.CanceledMessage, "", true
	default:
		return "", "", "", false
	}
}

type wireToolOutput struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ToolError      `json:"error,omitempty"`
}

func (o ToolOutput) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutputSuccess:
		data := o.Data
		if data == nil {
			data = json.RawMessage("null")
		}
		return json.Marshal(wireToolOutput{OK: true, Data: data})
	case OutputCanceled:
		return json.Marshal(wireToolOutput{OK: false, Error: &ToolError{Code: canceledErrorCode, Message: o.CanceledMessage}})
	default: // OutputFailure and any zero-value envelope
		err := o.Err
		if err == nil {
			err = &ToolError{Code: "unknown", Message: "unknown error"}
		}
		return json.Marshal(wireToolOutput{OK: false, Error: err})
	}
}

func (o *ToolOutput) UnmarshalJSON(b []byte) error {
	var raw wireToolOutput
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.OK {
		data := raw.Data
		if data == nil {
			data = json.RawMessage("null")
		}
		*o = ToolOutput{Kind: OutputSuccess, Data: data}
		return nil
	}
	if raw.Error != nil {
		if raw.Error.Code == canceledErrorCode {
			*o = ToolOutput{Kind: OutputCanceled, CanceledMessage: raw.Error.Message}
			return nil
		}
		*o = ToolOutput{Kind: OutputFailure, Err: raw.Error}
		return nil
	}
	*o = ToolOutput{Kind: OutputFailure, Err: &ToolError{Code: "unknown", Message: "Unknown error"}}
	return nil
}

// ToJSONString renders the envelope for inclusion in a tool_result
// content block, falling back to a fixed error payload if marshaling
// somehow fails (it never should, since every field is plain JSON).
func (o ToolOutput) ToJSONString() string {
	b, err := json.Marshal(o)
	if err != nil {
		return `{"ok":false,"error":{"code":"serialize_error","message":"failed to serialize tool output"}}`
	}
	return string(b)
}
