package connector

import (
	"sort"
	"sync/atomic"
)

// clientRPCSeq orders client RPC calls across all connectors.
var clientRPCSeq atomic.Uint64

// ClientMethodInvocation is a queued server-to-client RPC call.
type ClientMethodInvocation struct {
	ConnectorID string
	Interface   string
	Method      string
	Params      []any

	// Seq is the issue order across all connectors.
	Seq uint64
}

// SortInvocations orders calls by issue sequence.
func SortInvocations(calls []ClientMethodInvocation) {
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].Seq < calls[j].Seq
	})
}

// Base is an embeddable connector implementation holding shared state,
// RPC managers and queued client calls.
//
// Embedding types get Connector, StateEncoder, RPCTarget and
// ClientRPCSource for free and only need to add behavior.
type Base struct {
	id      string
	typ     *Type
	enabled bool
	visible bool

	state   map[string]any
	rpc     map[string]RPCManager
	pending []ClientMethodInvocation

	tracker *Tracker
}

// NewBase returns an enabled, visible connector base.
func NewBase(id string, typ *Type) *Base {
	return &Base{
		id:      id,
		typ:     typ,
		enabled: true,
		visible: true,
		state:   make(map[string]any),
	}
}

// ConnectorID implements Connector.
func (b *Base) ConnectorID() string { return b.id }

// Type implements Connector.
func (b *Base) Type() *Type { return b.typ }

// Enabled implements Connector.
func (b *Base) Enabled() bool { return b.enabled }

// Visible implements Connector.
func (b *Base) Visible() bool { return b.visible }

func (b *Base) attach(t *Tracker) { b.tracker = t }

// Tracker returns the tracker the connector is registered with, if any.
func (b *Base) Tracker() *Tracker { return b.tracker }

// MarkAsDirty schedules the connector for the next response. It is a
// no-op for connectors that are not registered yet.
func (b *Base) MarkAsDirty() error {
	if b.tracker == nil {
		return nil
	}
	if _, ok := b.tracker.Connector(b.id); !ok {
		return nil
	}
	return b.tracker.MarkDirty(b.id)
}

// SetEnabled changes the connector's own enabled flag.
func (b *Base) SetEnabled(enabled bool) error {
	if b.enabled == enabled {
		return nil
	}
	b.enabled = enabled
	b.state["enabled"] = enabled
	return b.MarkAsDirty()
}

// SetVisible changes the connector's own visibility flag. The parent is
// marked dirty too since its visible children change.
func (b *Base) SetVisible(visible bool) error {
	if b.visible == visible {
		return nil
	}
	b.visible = visible
	if err := b.MarkAsDirty(); err != nil {
		return err
	}
	if b.tracker != nil {
		if parent := b.tracker.Parent(b.id); parent != "" {
			return b.tracker.MarkDirty(parent)
		}
	}
	return nil
}

// Set stores a shared state property and marks the connector dirty.
func (b *Base) Set(key string, value any) error {
	b.state[key] = value
	return b.MarkAsDirty()
}

// Get returns a shared state property.
func (b *Base) Get(key string) any {
	return b.state[key]
}

// EncodeState implements StateEncoder.
func (b *Base) EncodeState() (map[string]any, error) {
	out := make(map[string]any, len(b.state))
	for k, v := range b.state {
		out[k] = v
	}
	return out, nil
}

// RegisterRPC binds a server RPC manager to an interface name.
func (b *Base) RegisterRPC(iface string, m RPCManager) {
	if b.rpc == nil {
		b.rpc = make(map[string]RPCManager)
	}
	b.rpc[iface] = m
}

// RPCManager implements RPCTarget.
func (b *Base) RPCManager(iface string) (RPCManager, bool) {
	m, ok := b.rpc[iface]
	return m, ok
}

// CallClient queues a client RPC call for the next response.
func (b *Base) CallClient(iface, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	b.pending = append(b.pending, ClientMethodInvocation{
		ConnectorID: b.id,
		Interface:   iface,
		Method:      method,
		Params:      params,
		Seq:         clientRPCSeq.Add(1),
	})
	return b.MarkAsDirty()
}

// PendingRPCCalls implements ClientRPCSource.
func (b *Base) PendingRPCCalls() []ClientMethodInvocation {
	return b.pending
}

// RetrievePendingRPCCalls implements ClientRPCSource.
func (b *Base) RetrievePendingRPCCalls() []ClientMethodInvocation {
	calls := b.pending
	b.pending = nil
	return calls
}
