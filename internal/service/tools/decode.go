// Package tools executes assistant tool calls: product recommendations and
// multimedia display requests.
package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrToolArgumentParse marks tool arguments that could not be decoded.
var ErrToolArgumentParse = errors.New("tool argument parse error")

// ToolArgumentParseError reports malformed arguments for one invocation.
type ToolArgumentParseError struct {
	Tool string
	Err  error
}

func (e *ToolArgumentParseError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolArgumentParseError) Unwrap() error { return e.Err }

// DecodeArguments decodes tool arguments into v. raw may be an already
// decoded object, JSON object bytes, or a string holding a JSON object
// (possibly itself JSON-quoted). Anything else fails with ErrToolArgumentParse.
func DecodeArguments(raw any, v any) error {
	switch r := raw.(type) {
	case map[string]any:
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrToolArgumentParse, err)
		}
		return decodeObject(data, v)
	case json.RawMessage:
		return decodeJSON(r, v, true)
	case []byte:
		return decodeJSON(r, v, true)
	case string:
		return decodeJSON([]byte(r), v, true)
	case nil:
		return fmt.Errorf("%w: missing arguments", ErrToolArgumentParse)
	default:
		return fmt.Errorf("%w: unsupported argument type %T", ErrToolArgumentParse, raw)
	}
}

// decodeJSON accepts an object, or when unwrap is set, a JSON string whose
// contents are an object.
func decodeJSON(data []byte, v any, unwrap bool) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return fmt.Errorf("%w: empty arguments", ErrToolArgumentParse)
	case data[0] == '{':
		return decodeObject(data, v)
	case data[0] == '"' && unwrap:
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("%w: %v", ErrToolArgumentParse, err)
		}
		return decodeJSON([]byte(inner), v, false)
	default:
		return fmt.Errorf("%w: arguments are not an object", ErrToolArgumentParse)
	}
}

// blankArguments reports whether raw carries no arguments at all: nil, an
// empty or whitespace-only string, or JSON null.
func blankArguments(raw any) bool {
	var data []byte
	switch r := raw.(type) {
	case nil:
		return true
	case string:
		data = []byte(r)
	case []byte:
		data = r
	case json.RawMessage:
		data = r
	default:
		return false
	}
	data = bytes.TrimSpace(data)
	return len(data) == 0 || string(data) == "null"
}

func decodeObject(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrToolArgumentParse, err)
	}
	return nil
}
