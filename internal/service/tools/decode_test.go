package tools

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		wantSKU string
		wantErr bool
	}{
		{"decoded object", map[string]any{"sku": "A"}, "A", false},
		{"raw json object", json.RawMessage(`{"sku":"A"}`), "A", false},
		{"byte object", []byte(` {"sku":"A"} `), "A", false},
		{"string object", `{"sku":"A"}`, "A", false},
		{"json-quoted string object", json.RawMessage(`"{\"sku\":\"A\"}"`), "A", false},
		{"nil", nil, "", true},
		{"empty string", "", "", true},
		{"malformed", `{"sku":`, "", true},
		{"array", `["A"]`, "", true},
		{"plain string", `"A"`, "", true},
		{"double-quoted nesting", json.RawMessage(`"\"{}\""`), "", true},
		{"number", 42, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args struct {
				SKU string `json:"sku"`
			}
			err := DecodeArguments(tt.raw, &args)
			if tt.wantErr {
				if !errors.Is(err, ErrToolArgumentParse) {
					t.Fatalf("expected ErrToolArgumentParse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if args.SKU != tt.wantSKU {
				t.Errorf("expected sku %q, got %q", tt.wantSKU, args.SKU)
			}
		})
	}
}

func TestToolArgumentParseError(t *testing.T) {
	var args struct{}
	inner := DecodeArguments("nope", &args)
	err := error(&ToolArgumentParseError{Tool: "show_3d", Err: inner})

	if !errors.Is(err, ErrToolArgumentParse) {
		t.Error("expected error to unwrap to ErrToolArgumentParse")
	}
	var perr *ToolArgumentParseError
	if !errors.As(err, &perr) || perr.Tool != "show_3d" {
		t.Errorf("expected typed error for show_3d, got %v", err)
	}
}
