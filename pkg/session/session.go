package session

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vango-dev/uidl/pkg/connector"
)

// UIIDParameter is the request parameter carrying the UI id.
const UIIDParameter = "v-uiId"

// UIFactory populates a freshly created UI with its connectors.
type UIFactory func(ui *UI) error

// Session is the unit of mutual exclusion for everything a client does:
// inbound RPC, response assembly and push transitions all run while the
// session lock is held.
type Session struct {
	id        string
	csrfToken string
	pushID    string
	config    *DeploymentConfig
	logger    *slog.Logger
	createdAt time.Time

	lock   sync.Mutex
	locked atomic.Bool

	// Guarded by lock.
	uis          map[int]*UI
	nextUIID     int
	errorHandler ErrorHandler
	typeTags     map[*connector.Type]int
	cumulative   time.Duration
	last         time.Duration

	lastRequest atomic.Int64
	closed      atomic.Bool

	queueMu sync.Mutex
	queue   []func()
}

// New creates a session with fresh random CSRF and push identifiers.
func New(config *DeploymentConfig, logger *slog.Logger) *Session {
	if config == nil {
		config = DefaultDeploymentConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		id:        id,
		csrfToken: uuid.NewString(),
		pushID:    uuid.NewString(),
		config:    config,
		logger:    logger.With("session_id", id),
		createdAt: time.Now(),
		uis:       make(map[int]*UI),
		typeTags:  make(map[*connector.Type]int),
	}
	s.TouchLastRequest()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CSRFToken returns the token every UIDL request must echo.
func (s *Session) CSRFToken() string { return s.csrfToken }

// PushID returns the identifier push connections must present.
func (s *Session) PushID() string { return s.pushID }

// Config returns the deployment configuration.
func (s *Session) Config() *DeploymentConfig { return s.config }

// Logger returns the session scoped logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Lock acquires the session lock. It blocks without a timeout.
func (s *Session) Lock() {
	s.lock.Lock()
	s.locked.Store(true)
}

// HasLock reports whether the session lock is currently held by anyone.
func (s *Session) HasLock() bool {
	return s.locked.Load()
}

// Unlock runs queued access tasks, pushes dirty UIs when push mode is
// automatic, and releases the lock.
func (s *Session) Unlock() error {
	if !s.locked.Load() {
		return ErrNotLocked
	}

	s.RunPendingAccessTasks()
	if s.config.PushMode == PushModeAutomatic {
		for _, ui := range s.UIs() {
			pc := ui.PushConnection()
			if pc == nil || !pc.IsConnected() || !ui.Tracker().HasDirty() {
				continue
			}
			if err := pc.Push(true); err != nil {
				s.HandleError(ui, err)
			}
		}
	}

	s.locked.Store(false)
	s.lock.Unlock()
	return nil
}

// Access queues fn to run under the session lock. Queued tasks run before
// the next response is assembled or when the session is unlocked,
// whichever comes first.
func (s *Session) Access(fn func()) {
	s.queueMu.Lock()
	s.queue = append(s.queue, fn)
	s.queueMu.Unlock()
}

// RunPendingAccessTasks runs queued tasks in order. The caller holds the
// session lock. Tasks queued by a running task also run.
func (s *Session) RunPendingAccessTasks() {
	for {
		s.queueMu.Lock()
		tasks := s.queue
		s.queue = nil
		s.queueMu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			s.runTask(task)
		}
	}
}

func (s *Session) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.HandleError(nil, &PanicError{Value: r})
		}
	}()
	task()
}

// TouchLastRequest records activity on the session.
func (s *Session) TouchLastRequest() {
	s.lastRequest.Store(time.Now().UnixNano())
}

// LastRequest returns the time of the last recorded activity.
func (s *Session) LastRequest() time.Time {
	return time.Unix(0, s.lastRequest.Load())
}

// IsExpired reports whether the session is closed or has been idle longer
// than the configured timeout.
func (s *Session) IsExpired(now time.Time) bool {
	if s.closed.Load() {
		return true
	}
	return s.config.SessionTimeout > 0 && now.Sub(s.LastRequest()) > s.config.SessionTimeout
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Close marks the session closed and disconnects all push connections.
// It takes the session lock.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.Lock()
	for _, ui := range s.uis {
		ui.closing = true
		if pc := ui.push; pc != nil && pc.IsConnected() {
			pc.Disconnect()
		}
	}
	s.locked.Store(false)
	s.lock.Unlock()
}

// CreateUI creates a UI and lets factory populate it. The caller holds the
// session lock.
func (s *Session) CreateUI(factory UIFactory) (*UI, error) {
	s.nextUIID++
	ui := newUI(s.nextUIID, s)
	if factory != nil {
		if err := factory(ui); err != nil {
			return nil, err
		}
	}
	s.uis[ui.id] = ui
	s.logger.Debug("ui created", "ui_id", ui.id)
	return ui, nil
}

// UI returns the UI with the given id.
func (s *Session) UI(id int) (*UI, bool) {
	ui, ok := s.uis[id]
	return ui, ok
}

// UIs returns the session's UIs ordered by id.
func (s *Session) UIs() []*UI {
	out := make([]*UI, 0, len(s.uis))
	for _, ui := range s.uis {
		out = append(out, ui)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RemoveUI detaches a UI from the session.
func (s *Session) RemoveUI(id int) {
	delete(s.uis, id)
}

// FindUI returns the UI named by the request's v-uiId parameter.
func (s *Session) FindUI(r *http.Request) *UI {
	if r == nil {
		return nil
	}
	id, err := strconv.Atoi(r.URL.Query().Get(UIIDParameter))
	if err != nil {
		return nil
	}
	ui, ok := s.uis[id]
	if !ok {
		return nil
	}
	return ui
}

// ErrorHandler returns the session error handler, if one is set.
func (s *Session) ErrorHandler() ErrorHandler {
	return s.errorHandler
}

// SetErrorHandler sets the session error handler.
func (s *Session) SetErrorHandler(h ErrorHandler) {
	s.errorHandler = h
}

// HandleError routes err to the error handler responsible for the
// connector the error carries, falling back to the session handler.
func (s *Session) HandleError(ui *UI, err error) {
	if err == nil {
		return
	}
	ev := &ErrorEvent{Err: err, UI: ui, ConnectorID: connectorOf(err)}
	var h ErrorHandler
	if ui != nil {
		h = FindErrorHandler(ui, ev.ConnectorID)
	} else if s.errorHandler != nil {
		h = s.errorHandler
	} else {
		h = LoggingErrorHandler{Logger: s.logger}
	}
	h.HandleError(ev)
}

// TagForType returns the numeric tag used on the wire for t. Tags are
// assigned on first use and stable for the session's lifetime.
func (s *Session) TagForType(t *connector.Type) int {
	if tag, ok := s.typeTags[t]; ok {
		return tag
	}
	tag := len(s.typeTags)
	s.typeTags[t] = tag
	return tag
}

// RecordRequestTiming adds the processing time of one request.
func (s *Session) RecordRequestTiming(d time.Duration) {
	s.cumulative += d
	s.last = d
}

// Timings returns the cumulative and last request processing times in
// milliseconds.
func (s *Session) Timings() (cumulativeMs, lastMs int64) {
	return s.cumulative.Milliseconds(), s.last.Milliseconds()
}
