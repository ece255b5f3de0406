// Package wire decodes the frames a job engine streams over a job channel
// and encodes the frames sent back to it.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

// Inbound frame types.
const (
	TypeStart           = "start"
	TypeProgress        = "progress"
	TypeOverwritePrompt = "overwrite_prompt"
	TypeComplete        = "complete"
	TypeError           = "error"
	TypeCancelled       = "cancelled"

	// TypeOverwriteResponse is the only outbound frame type.
	TypeOverwriteResponse = "overwrite_response"
)

// ErrMalformedFrame is returned for frames that are not JSON objects or lack a type.
var ErrMalformedFrame = errors.New("malformed frame")

// Message is a decoded inbound frame.
type Message interface {
	Type() string
	// Terminal reports whether the message ends the job.
	Terminal() bool
}

// Start announces scan totals.
type Start struct {
	TotalBytes int64
	TotalItems int64
}

// Progress reports transfer progress. Processed and Total are bytes.
type Progress struct {
	Processed                 int64
	Total                     int64
	ProcessedItems            int64
	TotalItems                int64
	CurrentFile               string
	CurrentFileBytesProcessed int64
	CurrentFileTotalSize      int64
	InstantaneousSpeed        float64
}

// OverwritePrompt asks for a decision about a naming conflict.
type OverwritePrompt struct {
	File     string
	ItemType string
	PromptID string
}

// Complete reports success with a kind-specific payload.
type Complete struct {
	Payload map[string]any
}

// Error reports an engine-side failure.
type Error struct {
	Message string
}

// Cancelled confirms the job was cancelled.
type Cancelled struct{}

// Disconnected is synthesized locally when the channel closes before any
// terminal message was processed.
type Disconnected struct {
	Err error
}

// Unknown preserves frames of a type this client does not understand.
type Unknown struct {
	Kind string
	Raw  map[string]any
}

func (Start) Type() string           { return TypeStart }
func (Progress) Type() string        { return TypeProgress }
func (OverwritePrompt) Type() string { return TypeOverwritePrompt }
func (Complete) Type() string        { return TypeComplete }
func (Error) Type() string           { return TypeError }
func (Cancelled) Type() string       { return TypeCancelled }
func (Disconnected) Type() string    { return "disconnected" }
func (u Unknown) Type() string       { return u.Kind }

func (Start) Terminal() bool           { return false }
func (Progress) Terminal() bool        { return false }
func (OverwritePrompt) Terminal() bool { return false }
func (Complete) Terminal() bool        { return true }
func (Error) Terminal() bool           { return true }
func (Cancelled) Terminal() bool       { return true }
func (Disconnected) Terminal() bool    { return true }
func (Unknown) Terminal() bool         { return false }

// Decode parses one inbound frame. Numeric fields are decoded leniently:
// engines send them as JSON numbers or numeric strings.
func Decode(data []byte) (Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	typ := cast.ToString(raw["type"])
	if typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch typ {
	case TypeStart:
		bytes := int64Field(raw, "totalBytes")
		if bytes == 0 {
			bytes = int64Field(raw, "totalSize")
		}
		return Start{
			TotalBytes: bytes,
			TotalItems: firstInt64(raw, "totalItems", "totalFiles"),
		}, nil
	case TypeProgress:
		return Progress{
			Processed:                 int64Field(raw, "processed"),
			Total:                     int64Field(raw, "total"),
			ProcessedItems:            firstInt64(raw, "processedItems", "processedFiles"),
			TotalItems:                firstInt64(raw, "totalItems", "totalFiles"),
			CurrentFile:               cast.ToString(raw["currentFile"]),
			CurrentFileBytesProcessed: int64Field(raw, "currentFileBytesProcessed"),
			CurrentFileTotalSize:      int64Field(raw, "currentFileTotalSize"),
			InstantaneousSpeed:        cast.ToFloat64(raw["instantaneousSpeed"]),
		}, nil
	case TypeOverwritePrompt:
		return OverwritePrompt{
			File:     cast.ToString(raw["file"]),
			ItemType: cast.ToString(raw["itemType"]),
			PromptID: cast.ToString(raw["promptId"]),
		}, nil
	case TypeComplete:
		payload := make(map[string]any, len(raw))
		for k, v := range raw {
			if k != "type" {
				payload[k] = v
			}
		}
		return Complete{Payload: payload}, nil
	case TypeError:
		return Error{Message: cast.ToString(raw["message"])}, nil
	case TypeCancelled:
		return Cancelled{}, nil
	default:
		return Unknown{Kind: typ, Raw: raw}, nil
	}
}

func int64Field(raw map[string]any, key string) int64 {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0
	}
	return cast.ToInt64(v)
}

func firstInt64(raw map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if v := int64Field(raw, k); v != 0 {
			return v
		}
	}
	return 0
}

// OverwriteResponse answers an overwrite prompt. ContentsPolicy is set only
// when a folder was overwritten and the user picked a rule for its contents.
type OverwriteResponse struct {
	Type           string `json:"type"`
	Decision       string `json:"decision"`
	PromptID       string `json:"promptId,omitempty"`
	ContentsPolicy string `json:"contentsPolicy,omitempty"`
}

// NewOverwriteResponse builds a response frame.
func NewOverwriteResponse(promptID, decision, contentsPolicy string) OverwriteResponse {
	return OverwriteResponse{
		Type:           TypeOverwriteResponse,
		Decision:       decision,
		PromptID:       promptID,
		ContentsPolicy: contentsPolicy,
	}
}

// Encode serializes an outbound frame.
func Encode(resp OverwriteResponse) ([]byte, error) {
	if resp.Type == "" {
		resp.Type = TypeOverwriteResponse
	}
	return json.Marshal(resp)
}
