package uidl

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/vango-dev/uidl/pkg/connector"
	"github.com/vango-dev/uidl/pkg/session"
)

// Recorder observes assembled responses.
type Recorder interface {
	ResponseWritten(duration time.Duration, bytes int, resynchronize bool)
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the writer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRecorder sets the recorder notified after every response.
func WithRecorder(r Recorder) Option {
	return func(w *Writer) {
		w.recorder = r
	}
}

// Writer assembles UIDL responses. A Writer holds no per-response state
// and can be shared by all sessions.
type Writer struct {
	logger   *slog.Logger
	recorder Recorder
}

// NewWriter creates a Writer.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "uidl_writer")
	return w
}

// Write assembles the changes of ui into one response object written to
// out. The caller holds the session lock. async marks responses that were
// not triggered by a client request.
//
// A connector failure aborts the write with a *connector.Error; whatever
// was already written to out is not valid JSON and the response must be
// discarded. The tracker is left as it was so the changes go out with the
// next response.
func (w *Writer) Write(ui *session.UI, out io.Writer, async bool) error {
	start := time.Now()
	sess := ui.Session()
	cfg := sess.Config()
	tracker := ui.Tracker()

	sess.RunPendingAccessTasks()
	tracker.Cleanup()

	repaintAll := ui.IsClientCacheEmpty()
	if repaintAll {
		tracker.MarkAllConnectorsDirty()
	}

	processed, err := w.collect(ui)
	if err != nil {
		return err
	}

	if err := tracker.SetWritingResponse(true); err != nil {
		return err
	}
	writing := true
	defer func() {
		if writing {
			w.resetWriting(tracker)
		}
	}()

	syncID := -1
	if cfg.SyncIDCheckEnabled {
		syncID = tracker.CurrentSyncID()
	}

	wc := &writeContext{
		ui:         ui,
		tracker:    tracker,
		connectors: processed,
		repaintAll: repaintAll,
		async:      async,
		diffStates: make(map[string]map[string]json.RawMessage),
	}

	cw := &countingWriter{w: out}
	sw := newStreamWriter(cw)

	sw.field("syncId", syncID)
	if repaintAll {
		sw.field("resynchronize", true)
	}
	sw.field("clientId", ui.LastProcessedClientToServerID()+1)

	changes, err := wc.legacyChanges()
	if err != nil {
		return err
	}
	sw.field("changes", changes)

	state, err := wc.sharedState()
	if err != nil {
		return err
	}
	sw.field("state", state)
	sw.field("types", wc.types())
	sw.field("hierarchy", wc.hierarchy())

	rpc, err := wc.clientRPC()
	if err != nil {
		return err
	}
	sw.field("rpc", rpc)
	sw.field("meta", wc.meta())
	sw.field("resources", wc.resources())

	if len(wc.newTypes) > 0 {
		mappings, inheritance := wc.typeMappings()
		sw.field("typeMappings", mappings)
		if len(inheritance) > 0 {
			sw.field("typeInheritanceMap", inheritance)
		}
	}
	if deps := wc.dependencies(); len(deps) > 0 {
		sw.field("dependencies", deps)
	}
	if !cfg.ProductionMode {
		cumulative, last := sess.Timings()
		sw.field("timings", []int64{cumulative, last})
	}
	if err := sw.close(); err != nil {
		return err
	}

	tracker.MarkAllConnectorsClean()
	wc.commit()
	writing = false
	w.resetWriting(tracker)
	if tracker.HasDirty() {
		w.logger.Error("connectors marked dirty while writing response",
			"count", len(tracker.DirtyConnectors()))
	}

	if w.recorder != nil {
		w.recorder.ResponseWritten(time.Since(start), cw.n, repaintAll)
	}
	w.logger.Debug("response written",
		"ui_id", ui.ID(),
		"sync_id", syncID,
		"connectors", len(processed),
		"bytes", cw.n,
		"resynchronize", repaintAll)
	return nil
}

func (w *Writer) resetWriting(tracker *connector.Tracker) {
	if err := tracker.SetWritingResponse(false); err != nil {
		w.logger.Error("failed to reset writing response", "error", err)
	}
}

// collect runs before-response hooks until no new dirty connector
// appears. Each round is sorted by tree depth so parents are hooked before
// their children, and a connector dirtied by a hook is hooked in a later
// round. It returns the processed connectors still registered and
// visible, in hook order.
func (w *Writer) collect(ui *session.UI) ([]connector.Connector, error) {
	tracker := ui.Tracker()
	processed := make(map[string]bool)
	var order []connector.Connector

	for {
		var round []connector.Connector
		for _, c := range tracker.DirtyVisibleConnectors() {
			if !processed[c.ConnectorID()] {
				round = append(round, c)
			}
		}
		if len(round) == 0 {
			break
		}
		sort.SliceStable(round, func(i, j int) bool {
			return tracker.Depth(round[i].ConnectorID()) < tracker.Depth(round[j].ConnectorID())
		})
		for _, c := range round {
			id := c.ConnectorID()
			processed[id] = true
			order = append(order, c)
			if hook, ok := c.(connector.BeforeResponder); ok {
				if err := callHook(hook, id, !tracker.IsClientSideInitialized(id)); err != nil {
					return nil, err
				}
			}
		}
	}

	live := order[:0]
	for _, c := range order {
		id := c.ConnectorID()
		if _, ok := tracker.Connector(id); ok && tracker.IsVisibleToClient(id) {
			live = append(live, c)
		}
	}
	return live, nil
}

func callHook(hook connector.BeforeResponder, id string, initial bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = connector.NewError(id, "before client response", &session.PanicError{Value: r})
		}
	}()
	hook.BeforeClientResponse(initial)
	return nil
}
