package rpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	uerrors "github.com/vango-dev/uidl/internal/errors"
)

func TestParseInvocations(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		known func(string) bool
		want  []Invocation
	}{
		{
			name: "empty",
			raw:  `[]`,
			want: []Invocation{},
		},
		{
			name: "method call",
			raw:  `[["c1","com.example.Rpc","doThing",[1,"x"]]]`,
			want: []Invocation{
				&MethodCall{ConnectorID: "c1", Interface: "com.example.Rpc", Method: "doThing",
					Params: []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`"x"`)}},
			},
		},
		{
			name: "consecutive legacy changes merge",
			raw: `[["a","v","v",["x",["i",1]]],["a","v","v",["y",["s","z"]]],` +
				`["b","v","v",["w",["b",true]]]]`,
			want: []Invocation{
				&LegacyChange{ConnectorID: "a", Variables: map[string]any{"x": 1, "y": "z"}},
				&LegacyChange{ConnectorID: "b", Variables: map[string]any{"w": true}},
			},
		},
		{
			name: "later value wins",
			raw:  `[["a","v","v",["x",["i",1]]],["a","v","v",["x",["i",2]]]]`,
			want: []Invocation{
				&LegacyChange{ConnectorID: "a", Variables: map[string]any{"x": 2}},
			},
		},
		{
			name: "method call breaks the merge",
			raw: `[["a","v","v",["x",["i",1]]],["a","com.example.Rpc","m",[]],` +
				`["a","v","v",["y",["i",2]]]]`,
			want: []Invocation{
				&LegacyChange{ConnectorID: "a", Variables: map[string]any{"x": 1}},
				&MethodCall{ConnectorID: "a", Interface: "com.example.Rpc", Method: "m", Params: []json.RawMessage{}},
				&LegacyChange{ConnectorID: "a", Variables: map[string]any{"y": 2}},
			},
		},
		{
			name: "unknown connector call keeps the merge",
			raw: `[["a","v","v",["x",["i",1]]],["ghost","com.example.Rpc","m",[]],` +
				`["a","v","v",["y",["i",2]]]]`,
			known: func(id string) bool { return id != "ghost" },
			want: []Invocation{
				&LegacyChange{ConnectorID: "a", Variables: map[string]any{"x": 1, "y": 2}},
				&MethodCall{ConnectorID: "ghost", Interface: "com.example.Rpc", Method: "m", Params: []json.RawMessage{}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInvocations(json.RawMessage(tt.raw), tt.known)
			if err != nil {
				t.Fatalf("ParseInvocations() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseInvocations() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseInvocations_Errors(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`[["c1","i","m"]]`,
		`[[1,"i","m",[]]]`,
		`[["c1","i","m",{}]]`,
		`[["a","v","v",["x"]]]`,
		`[["a","v","v",[1,["i",1]]]]`,
		`[["a","v","v",["x",["q",1]]]]`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseInvocations(json.RawMessage(raw), nil)
			if !errors.Is(err, uerrors.New("U011")) {
				t.Errorf("ParseInvocations(%s) error = %v, want U011", raw, err)
			}
		})
	}
}

func TestLegacyChange_IsCloseOnly(t *testing.T) {
	tests := []struct {
		vars map[string]any
		want bool
	}{
		{map[string]any{"close": true}, true},
		{map[string]any{"close": false}, false},
		{map[string]any{"close": "true"}, false},
		{map[string]any{"close": true, "x": 1}, false},
		{map[string]any{}, false},
	}
	for _, tt := range tests {
		lc := &LegacyChange{ConnectorID: "w", Variables: tt.vars}
		if got := lc.IsCloseOnly(); got != tt.want {
			t.Errorf("IsCloseOnly(%v) = %t, want %t", tt.vars, got, tt.want)
		}
	}
}
