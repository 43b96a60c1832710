// Package message decodes the stream-json event records emitted by the
// agent CLI. Each Record keeps the exact bytes it was decoded from, so
// re-encoding a record reproduces its input.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record types emitted by the agent CLI.
const (
	TypeSystem    = "system"
	TypeAssistant = "assistant"
	TypeUser      = "user"
	TypeResult    = "result"
)

// Subtypes with special meaning.
const (
	SubtypeInit    = "init"
	SubtypeSuccess = "success"
)

// Content block types inside an assistant message.
const (
	BlockText    = "text"
	BlockToolUse = "tool_use"
)

// Record is one streamed update from an agent run.
type Record struct {
	Type      string   `json:"type"`
	Subtype   string   `json:"subtype,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Model     string   `json:"model,omitempty"`
	Message   *Message `json:"message,omitempty"`

	// Terminal result fields.
	IsError           bool            `json:"is_error,omitempty"`
	DurationMS        float64         `json:"duration_ms,omitempty"`
	NumTurns          int             `json:"num_turns,omitempty"`
	TotalCostUSD      float64         `json:"total_cost_usd,omitempty"`
	Result            string          `json:"result,omitempty"`
	Errors            []string        `json:"errors,omitempty"`
	StructuredOutput  json.RawMessage `json:"structured_output,omitempty"`
	PermissionDenials json.RawMessage `json:"permission_denials,omitempty"`

	raw json.RawMessage
}

// Message is the chat message carried by assistant and user records.
type Message struct {
	ID      string  `json:"id,omitempty"`
	Role    string  `json:"role,omitempty"`
	Model   string  `json:"model,omitempty"`
	Content Content `json:"content,omitempty"`
}

// Content is a list of content blocks. A bare string is decoded as a
// single text block.
type Content []Block

// Block is a single content item.
type Block struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Parse decodes a single stream-json line.
func Parse(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	if r.Type == "" {
		return Record{}, fmt.Errorf("record has no type")
	}
	return r, nil
}

// UnmarshalJSON decodes the record and retains a copy of data. An
// object whose fields do not match the typed layout still decodes, with
// only its type, subtype and session id set, so no record is lost.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		h, herr := decodeHeader(data)
		if herr != nil || h.Type == "" {
			return err
		}
		p = plain(h)
	}
	*r = Record(p)
	r.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// decodeHeader reads the identifying fields of a record object, ignoring
// fields of unexpected type.
func decodeHeader(data []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Record{}, err
	}
	var r Record
	_ = json.Unmarshal(fields["type"], &r.Type)
	_ = json.Unmarshal(fields["subtype"], &r.Subtype)
	_ = json.Unmarshal(fields["session_id"], &r.SessionID)
	return r, nil
}

// MarshalJSON returns the bytes the record was decoded from. Records
// built in code are encoded from their fields.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	type plain Record
	return json.Marshal(plain(r))
}

// Raw returns the original encoding of the record, or nil for records
// built in code.
func (r Record) Raw() json.RawMessage {
	return r.raw
}

// Fields decodes the record into a generic key/value map.
func (r Record) Fields() (map[string]json.RawMessage, error) {
	data, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// IsInit reports whether r is the system init record.
func (r Record) IsInit() bool {
	return r.Type == TypeSystem && r.Subtype == SubtypeInit
}

// IsResult reports whether r is a terminal result record.
func (r Record) IsResult() bool {
	return r.Type == TypeResult
}

// Succeeded reports whether r is a result record with subtype success.
func (r Record) Succeeded() bool {
	return r.IsResult() && r.Subtype == SubtypeSuccess
}

// HasStructuredOutput reports whether the record carries a non-null
// structured output payload.
func (r Record) HasStructuredOutput() bool {
	out := bytes.TrimSpace(r.StructuredOutput)
	return len(out) > 0 && !bytes.Equal(out, []byte("null"))
}

// Blocks returns the content blocks of an assistant or user record.
func (r Record) Blocks() []Block {
	if r.Message == nil {
		return nil
	}
	return r.Message.Content
}

// UnmarshalJSON accepts either a block array or a plain string.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{{Type: BlockText, Text: s}}
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*c = blocks
	return nil
}
