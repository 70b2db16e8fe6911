package uidl

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	uerrors "github.com/vango-dev/uidl/internal/errors"
	"github.com/vango-dev/uidl/pkg/connector"
	"github.com/vango-dev/uidl/pkg/session"
)

// writeContext carries one response assembly. Side effects on the UI are
// staged here and applied by commit once the whole response is written.
type writeContext struct {
	ui         *session.UI
	tracker    *connector.Tracker
	connectors []connector.Connector
	repaintAll bool
	async      bool

	diffStates map[string]map[string]json.RawMessage
	newTypes   []*connector.Type
	rpcSources []connector.ClientRPCSource
	timeout    int
}

func connectorError(id, code string, err error) error {
	return connector.NewError(id, "write response", uerrors.New(code).Wrap(err))
}

// legacyChanges paints every legacy connector into a change entry of the
// form ["change", {"format":"uidl","pid":id}, tree].
func (wc *writeContext) legacyChanges() ([]any, error) {
	changes := []any{}
	for _, c := range wc.connectors {
		painter, ok := c.(connector.Painter)
		if !ok {
			continue
		}
		id := c.ConnectorID()
		target := connector.NewPaintTarget()
		target.StartTag("change")
		target.AddAttribute("format", "uidl")
		target.AddAttribute("pid", id)
		if err := painter.Paint(target); err != nil {
			return nil, connectorError(id, "U023", err)
		}
		if err := target.EndTag("change"); err != nil {
			return nil, connectorError(id, "U023", err)
		}
		if err := target.Close(); err != nil {
			return nil, connectorError(id, "U023", err)
		}
		raw, err := json.Marshal(target)
		if err != nil {
			return nil, connectorError(id, "U023", err)
		}
		changes = append(changes, json.RawMessage(raw))
	}
	return changes, nil
}

// sharedState returns, per connector, the state properties that differ
// from what the client has. Uninitialized connectors get their full state
// and connectors without changes are left out.
func (wc *writeContext) sharedState() (object, error) {
	states := object{}
	for _, c := range wc.connectors {
		enc, ok := c.(connector.StateEncoder)
		if !ok {
			continue
		}
		id := c.ConnectorID()
		state, err := enc.EncodeState()
		if err != nil {
			return nil, connectorError(id, "U020", err)
		}

		encoded := make(map[string]json.RawMessage, len(state))
		for k, v := range state {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, connectorError(id, "U020", err)
			}
			encoded[k] = raw
		}

		previous, had := wc.tracker.DiffState(id)
		full := !had || !wc.tracker.IsClientSideInitialized(id)
		diff := diffState(previous, encoded, full)
		wc.diffStates[id] = encoded
		if len(diff) > 0 {
			states.set(id, diff)
		}
	}
	return states, nil
}

func diffState(previous, current map[string]json.RawMessage, full bool) object {
	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	diff := object{}
	for _, k := range keys {
		if full || !bytes.Equal(previous[k], current[k]) {
			diff.set(k, current[k])
		}
	}
	if full {
		return diff
	}

	removed := make([]string, 0)
	for k := range previous {
		if _, ok := current[k]; !ok {
			removed = append(removed, k)
		}
	}
	sort.Strings(removed)
	for _, k := range removed {
		diff.set(k, nil)
	}
	return diff
}

// types maps each connector to the tag of its type and records the types
// the client does not know yet.
func (wc *writeContext) types() object {
	s := wc.ui.Session()
	types := object{}
	seen := make(map[*connector.Type]bool)
	for _, c := range wc.connectors {
		t := c.Type()
		if t == nil {
			continue
		}
		types.set(c.ConnectorID(), s.TagForType(t))
		for _, lt := range t.Lineage() {
			if seen[lt] || wc.ui.ClientKnowsType(lt) {
				continue
			}
			seen[lt] = true
			wc.newTypes = append(wc.newTypes, lt)
		}
	}
	// Lineage order already puts parents first; the stable sort keeps it
	// deterministic across unrelated chains.
	sort.SliceStable(wc.newTypes, func(i, j int) bool {
		return wc.newTypes[i].Depth() < wc.newTypes[j].Depth()
	})
	return types
}

// hierarchy maps each connector to its children visible to the client.
func (wc *writeContext) hierarchy() object {
	h := object{}
	for _, c := range wc.connectors {
		id := c.ConnectorID()
		h.set(id, wc.tracker.VisibleChildren(id))
	}
	return h
}

// clientRPC lists queued client calls in issue order. The queues are
// drained by commit, so a failed write sends them with the next response.
func (wc *writeContext) clientRPC() ([]any, error) {
	var calls []connector.ClientMethodInvocation
	for _, c := range wc.connectors {
		if src, ok := c.(connector.ClientRPCSource); ok {
			calls = append(calls, src.PendingRPCCalls()...)
			wc.rpcSources = append(wc.rpcSources, src)
		}
	}
	connector.SortInvocations(calls)

	out := make([]any, 0, len(calls))
	for _, call := range calls {
		params, err := json.Marshal(call.Params)
		if err != nil {
			return nil, connectorError(call.ConnectorID, "U020", err)
		}
		out = append(out, []any{call.ConnectorID, call.Interface, call.Method, json.RawMessage(params)})
	}
	return out, nil
}

// meta carries the repaint and async flags and the session expiry
// redirect hint.
func (wc *writeContext) meta() object {
	cfg := wc.ui.Session().Config()
	meta := object{}
	if wc.repaintAll {
		meta.set("repaintAll", true)
	}
	if wc.async {
		meta.set("async", true)
	}

	m := cfg.Messages
	wc.timeout = wc.ui.LastTimeoutInterval()
	interval := cfg.SessionTimeoutSeconds()
	if m.SessionExpiredNotificationEnabled && m.SessionExpiredCaption == "" && m.SessionExpiredMessage == "" && interval >= 0 {
		if wc.repaintAll || interval != wc.ui.LastTimeoutInterval() {
			var redirect object
			redirect.set("interval", interval+15)
			redirect.set("url", m.SessionExpiredURL)
			meta.set("timedRedirect", redirect)
			wc.timeout = interval
		}
	}
	return meta
}

// resources collects resource URLs keyed by connectorId/key.
func (wc *writeContext) resources() object {
	res := object{}
	for _, c := range wc.connectors {
		rp, ok := c.(connector.ResourceProvider)
		if !ok {
			continue
		}
		urls := rp.Resources()
		keys := make([]string, 0, len(urls))
		for k := range urls {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			res.set(c.ConnectorID()+"/"+k, urls[k])
		}
	}
	return res
}

// typeMappings returns name to tag for new types and tag to super tag for
// those whose parent is known.
func (wc *writeContext) typeMappings() (mappings, inheritance object) {
	s := wc.ui.Session()
	mappings = object{}
	inheritance = object{}
	for _, t := range wc.newTypes {
		tag := s.TagForType(t)
		mappings.set(t.Name, tag)
		if t.Super != nil {
			inheritance.set(strconv.Itoa(tag), s.TagForType(t.Super))
		}
	}
	return mappings, inheritance
}

// dependencies lists the scripts and styles of new types, parents first,
// without duplicates.
func (wc *writeContext) dependencies() []connector.Dependency {
	var deps []connector.Dependency
	seen := make(map[connector.Dependency]bool)
	for _, t := range wc.newTypes {
		for _, d := range t.Dependencies() {
			if seen[d] {
				continue
			}
			seen[d] = true
			deps = append(deps, d)
		}
	}
	return deps
}

// commit applies the staged side effects after a successful write.
func (wc *writeContext) commit() {
	for id, state := range wc.diffStates {
		wc.tracker.SetDiffState(id, state)
	}
	for _, t := range wc.newTypes {
		wc.ui.AddClientType(t)
	}
	for _, src := range wc.rpcSources {
		src.RetrievePendingRPCCalls()
	}
	wc.ui.SetLastTimeoutInterval(wc.timeout)
	for _, c := range wc.connectors {
		wc.tracker.MarkClientSideInitialized(c.ConnectorID())
	}
}
