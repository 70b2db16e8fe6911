package rpc

import (
	"encoding/json"
	"fmt"

	uerrors "github.com/vango-dev/uidl/internal/errors"
)

// Legacy variable changes travel as an rpc entry with this interface and
// method and exactly two parameters: the variable name and a tagged value.
const (
	LegacyInterface = "v"
	LegacyMethod    = "v"
)

// DataRequestInterface is the interface of data fetch calls. They are
// dispatched even to disabled connectors.
const DataRequestInterface = "com.vaadin.shared.data.DataRequestRpc"

// Invocation is either a *LegacyChange or a *MethodCall.
type Invocation interface {
	// Target returns the id of the receiving connector.
	Target() string

	invocation()
}

// LegacyChange is a batch of variable changes for one connector.
type LegacyChange struct {
	ConnectorID string
	Variables   map[string]any
}

// Target implements Invocation.
func (l *LegacyChange) Target() string { return l.ConnectorID }
func (*LegacyChange) invocation()      {}

// IsCloseOnly reports whether the change is exactly {close: true}.
func (l *LegacyChange) IsCloseOnly() bool {
	if len(l.Variables) != 1 {
		return false
	}
	v, ok := l.Variables["close"].(bool)
	return ok && v
}

// MethodCall is a server RPC call. Params are left encoded for the
// receiving RPC manager.
type MethodCall struct {
	ConnectorID string
	Interface   string
	Method      string
	Params      []json.RawMessage
}

// Target implements Invocation.
func (m *MethodCall) Target() string { return m.ConnectorID }
func (*MethodCall) invocation()      {}

// ParseInvocations decodes the rpc array. A legacy change directly
// following a legacy change for the same connector is merged into it.
// Method calls for connectors that known rejects are kept so the caller
// can report them, but do not separate two legacy changes. A nil known
// accepts every connector.
func ParseInvocations(raw json.RawMessage, known func(id string) bool) ([]Invocation, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, malformedInvocation(-1, err)
	}

	out := make([]Invocation, 0, len(entries))
	var previous Invocation
	for i, entry := range entries {
		inv, err := parseInvocation(entry)
		if err != nil {
			return nil, malformedInvocation(i, err)
		}
		if lc, ok := inv.(*LegacyChange); ok {
			if prev, ok := previous.(*LegacyChange); ok && prev.ConnectorID == lc.ConnectorID {
				for k, v := range lc.Variables {
					prev.Variables[k] = v
				}
				continue
			}
		}
		out = append(out, inv)
		if _, ok := inv.(*MethodCall); ok && known != nil && !known(inv.Target()) {
			continue
		}
		previous = inv
	}
	return out, nil
}

func parseInvocation(raw json.RawMessage) (Invocation, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) < 4 {
		return nil, fmt.Errorf("expected 4 elements, got %d", len(parts))
	}
	var id, iface, method string
	for i, dst := range []*string{&id, &iface, &method} {
		if err := json.Unmarshal(parts[i], dst); err != nil {
			return nil, err
		}
	}
	var params []json.RawMessage
	if err := json.Unmarshal(parts[3], &params); err != nil {
		return nil, err
	}

	if iface != LegacyInterface || method != LegacyMethod {
		return &MethodCall{ConnectorID: id, Interface: iface, Method: method, Params: params}, nil
	}

	if len(params) != 2 {
		return nil, fmt.Errorf("legacy variable change expects 2 parameters, got %d", len(params))
	}
	var name string
	if err := json.Unmarshal(params[0], &name); err != nil {
		return nil, err
	}
	value, err := DecodeValue(params[1])
	if err != nil {
		return nil, err
	}
	return &LegacyChange{ConnectorID: id, Variables: map[string]any{name: value}}, nil
}

func malformedInvocation(index int, err error) error {
	e := uerrors.New("U011").Wrap(err)
	if index >= 0 {
		e.WithDetail(fmt.Sprintf("rpc entry %d", index))
	}
	return e
}
