package connector

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// record is one connector node in the tracker arena. Links are stored as
// ids; the tracker owns the canonical hierarchy.
type record struct {
	conn        Connector
	parent      string
	children    []string
	initialized bool
}

// Tracker keeps track of the connectors of one UI: their hierarchy, which
// ones are dirty, which ones the client has already seen, and the state
// last sent for each.
//
// A Tracker is not safe for concurrent use. All calls happen while the
// owning session lock is held.
type Tracker struct {
	records map[string]*record
	roots   []string

	// dirty is an insertion ordered set of connector ids.
	dirty      map[string]struct{}
	dirtyOrder []string

	// unregistered holds detached connectors the client knew about. They
	// are no longer reachable through Connector and are dropped by Cleanup.
	unregistered map[string]Connector

	diffStates map[string]map[string]json.RawMessage

	writingResponse bool
	syncID          int

	logger *slog.Logger
}

// NewTracker creates an empty Tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		records:      make(map[string]*record),
		dirty:        make(map[string]struct{}),
		unregistered: make(map[string]Connector),
		diffStates:   make(map[string]map[string]json.RawMessage),
		logger:       logger.With("component", "connector_tracker"),
	}
}

// trackerAware is implemented by connectors embedding Base.
type trackerAware interface {
	attach(t *Tracker)
}

// Register adds c to the tracker under parentID. An empty parentID
// registers a root. New connectors start dirty and uninitialized.
func (t *Tracker) Register(c Connector, parentID string) error {
	id := c.ConnectorID()
	if id == "" {
		return ErrInvalidID
	}
	if t.writingResponse {
		return fmt.Errorf("%w: %s", ErrWritingResponse, id)
	}
	if _, ok := t.records[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConnector, id)
	}
	if parentID != "" {
		parent, ok := t.records[parentID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParent, parentID)
		}
		parent.children = append(parent.children, id)
	} else {
		t.roots = append(t.roots, id)
	}

	delete(t.unregistered, id)
	t.records[id] = &record{conn: c, parent: parentID}
	if ta, ok := c.(trackerAware); ok {
		ta.attach(t)
	}
	t.logger.Debug("registered connector", "connector_id", id, "parent_id", parentID)

	t.markDirty(id)
	if parentID != "" {
		t.markDirty(parentID)
	}
	return nil
}

// Unregister removes the connector and its descendants. Connectors the
// client has seen are retained as unregistered until the next Cleanup;
// the others are dropped immediately.
func (t *Tracker) Unregister(id string) {
	rec, ok := t.records[id]
	if !ok {
		return
	}

	if rec.parent != "" {
		if parent, ok := t.records[rec.parent]; ok {
			parent.children = removeID(parent.children, id)
			if !t.writingResponse {
				t.markDirty(rec.parent)
			}
		}
	} else {
		t.roots = removeID(t.roots, id)
	}
	t.unregisterRecursive(id)
}

func (t *Tracker) unregisterRecursive(id string) {
	rec, ok := t.records[id]
	if !ok {
		return
	}
	for _, child := range rec.children {
		t.unregisterRecursive(child)
	}

	delete(t.records, id)
	t.MarkClean(id)
	if rec.initialized {
		t.unregistered[id] = rec.conn
	} else {
		delete(t.diffStates, id)
	}
	t.logger.Debug("unregistered connector", "connector_id", id, "retained", rec.initialized)
}

// Connector returns the registered connector with the given id.
func (t *Tracker) Connector(id string) (Connector, bool) {
	rec, ok := t.records[id]
	if !ok {
		return nil, false
	}
	return rec.conn, true
}

// IsUnregistered reports whether id was detached since the last Cleanup.
func (t *Tracker) IsUnregistered(id string) bool {
	_, ok := t.unregistered[id]
	return ok
}

// Connectors returns every registered connector in depth-first order.
func (t *Tracker) Connectors() []Connector {
	out := make([]Connector, 0, len(t.records))
	t.walk(func(rec *record) bool {
		out = append(out, rec.conn)
		return true
	})
	return out
}

// walk visits records depth-first from the roots. Returning false from fn
// skips the record's subtree.
func (t *Tracker) walk(fn func(*record) bool) {
	var visit func(id string)
	visit = func(id string) {
		rec, ok := t.records[id]
		if !ok || !fn(rec) {
			return
		}
		for _, child := range rec.children {
			visit(child)
		}
	}
	for _, id := range t.roots {
		visit(id)
	}
}

// Parent returns the parent id, or "" for roots and unknown ids.
func (t *Tracker) Parent(id string) string {
	if rec, ok := t.records[id]; ok {
		return rec.parent
	}
	return ""
}

// Children returns the ids of the direct children of id.
func (t *Tracker) Children(id string) []string {
	rec, ok := t.records[id]
	if !ok {
		return nil
	}
	out := make([]string, len(rec.children))
	copy(out, rec.children)
	return out
}

// VisibleChildren returns the ids of the direct children the client can see.
func (t *Tracker) VisibleChildren(id string) []string {
	rec, ok := t.records[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rec.children))
	for _, child := range rec.children {
		if t.IsVisibleToClient(child) {
			out = append(out, child)
		}
	}
	return out
}

// Depth returns the number of ancestors of id.
func (t *Tracker) Depth(id string) int {
	depth := 0
	for rec, ok := t.records[id]; ok && rec.parent != ""; rec, ok = t.records[rec.parent] {
		depth++
	}
	return depth
}

// IsEnabled reports whether id and all of its ancestors are enabled.
func (t *Tracker) IsEnabled(id string) bool {
	for cur := id; cur != ""; {
		rec, ok := t.records[cur]
		if !ok || !rec.conn.Enabled() {
			return false
		}
		cur = rec.parent
	}
	return id != ""
}

// IsConnectorEnabled reports whether the client may act on id: it and all
// of its ancestors must be both enabled and visible.
func (t *Tracker) IsConnectorEnabled(id string) bool {
	return t.IsEnabled(id) && t.IsVisibleToClient(id)
}

// IsVisibleToClient reports whether id and all of its ancestors are visible.
func (t *Tracker) IsVisibleToClient(id string) bool {
	for cur := id; cur != ""; {
		rec, ok := t.records[cur]
		if !ok || !rec.conn.Visible() {
			return false
		}
		cur = rec.parent
	}
	return id != ""
}

// MarkDirty marks the connector as changed since the last response.
func (t *Tracker) MarkDirty(id string) error {
	if t.writingResponse {
		return fmt.Errorf("%w: %s", ErrWritingResponse, id)
	}
	if _, ok := t.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnector, id)
	}
	t.markDirty(id)
	return nil
}

func (t *Tracker) markDirty(id string) {
	if _, ok := t.dirty[id]; ok {
		return
	}
	t.dirty[id] = struct{}{}
	t.dirtyOrder = append(t.dirtyOrder, id)
}

// MarkClean removes the connector from the dirty set.
func (t *Tracker) MarkClean(id string) {
	if _, ok := t.dirty[id]; !ok {
		return
	}
	delete(t.dirty, id)
	t.dirtyOrder = removeID(t.dirtyOrder, id)
}

// IsDirty reports whether the connector is in the dirty set.
func (t *Tracker) IsDirty(id string) bool {
	_, ok := t.dirty[id]
	return ok
}

// DirtyConnectors returns the dirty connectors in the order they were
// marked.
func (t *Tracker) DirtyConnectors() []Connector {
	out := make([]Connector, 0, len(t.dirtyOrder))
	for _, id := range t.dirtyOrder {
		if rec, ok := t.records[id]; ok {
			out = append(out, rec.conn)
		}
	}
	return out
}

// DirtyVisibleConnectors returns the dirty connectors the client can see,
// in the order they were marked.
func (t *Tracker) DirtyVisibleConnectors() []Connector {
	out := make([]Connector, 0, len(t.dirtyOrder))
	for _, id := range t.dirtyOrder {
		if rec, ok := t.records[id]; ok && t.IsVisibleToClient(id) {
			out = append(out, rec.conn)
		}
	}
	return out
}

// HasDirty reports whether any connector is dirty.
func (t *Tracker) HasDirty() bool {
	return len(t.dirtyOrder) > 0
}

// MarkAllConnectorsDirty marks every connector visible to the client dirty.
func (t *Tracker) MarkAllConnectorsDirty() {
	t.walk(func(rec *record) bool {
		if !rec.conn.Visible() {
			return false
		}
		t.markDirty(rec.conn.ConnectorID())
		return true
	})
	t.logger.Debug("marked all connectors dirty", "count", len(t.dirtyOrder))
}

// MarkAllConnectorsClean empties the dirty set.
func (t *Tracker) MarkAllConnectorsClean() {
	t.dirty = make(map[string]struct{})
	t.dirtyOrder = nil
}

// IsClientSideInitialized reports whether the client has received the
// connector's full state.
func (t *Tracker) IsClientSideInitialized(id string) bool {
	rec, ok := t.records[id]
	return ok && rec.initialized
}

// MarkClientSideInitialized records that the client has the connector.
func (t *Tracker) MarkClientSideInitialized(id string) {
	if rec, ok := t.records[id]; ok {
		rec.initialized = true
	}
}

// MarkAllClientSidesUninitialized forgets everything the client knows so
// the next response carries full state for every connector.
func (t *Tracker) MarkAllClientSidesUninitialized() {
	for _, rec := range t.records {
		rec.initialized = false
	}
	t.diffStates = make(map[string]map[string]json.RawMessage)
}

// DiffState returns the encoded state last sent for id.
func (t *Tracker) DiffState(id string) (map[string]json.RawMessage, bool) {
	s, ok := t.diffStates[id]
	return s, ok
}

// SetDiffState stores the encoded state sent for id.
func (t *Tracker) SetDiffState(id string, state map[string]json.RawMessage) {
	t.diffStates[id] = state
}

// IsWritingResponse reports whether a response is being written.
func (t *Tracker) IsWritingResponse() bool {
	return t.writingResponse
}

// SetWritingResponse sets the writing response flag. Ending a write
// advances the sync id.
func (t *Tracker) SetWritingResponse(writing bool) error {
	if t.writingResponse == writing {
		return fmt.Errorf("%w: already %t", ErrWritingResponseUnchanged, writing)
	}
	t.writingResponse = writing
	if !writing {
		t.syncID++
	}
	return nil
}

// CurrentSyncID returns the id of the next response to be written.
func (t *Tracker) CurrentSyncID() int {
	return t.syncID
}

// Cleanup drops retained unregistered connectors and resets the client
// side state of connectors that are no longer visible, so they are sent
// in full when they become visible again.
func (t *Tracker) Cleanup() {
	for id := range t.unregistered {
		delete(t.diffStates, id)
	}
	t.unregistered = make(map[string]Connector)

	for id, rec := range t.records {
		if rec.initialized && !t.IsVisibleToClient(id) {
			rec.initialized = false
			delete(t.diffStates, id)
		}
	}
}

// Len returns the number of registered connectors.
func (t *Tracker) Len() int {
	return len(t.records)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
