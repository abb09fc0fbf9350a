package events

import (
	"sync"

	"go.uber.org/zap"
)

// Event names emitted by the entity store.
const (
	SessionAdded   = "seance:added"
	SessionRemoved = "seance:removed"
	SessionUpdated = "seance:updated"
	RoomAdded      = "room:added"
	RoomDeleted    = "room:deleted"
	TeacherAdded   = "teacher:added"
	TeacherRemoved = "teacher:removed"
	SubjectAdded   = "subject:added"
	SubjectRemoved = "subject:removed"
	ExamAdded      = "exam:added"
	ExamUpdated    = "exam:updated"
	ExamRemoved    = "exam:removed"
	StateSaved     = "state:saved"
	StateUndo      = "state:undo"
	StateRedo      = "state:redo"
	StateChanged   = "stateChanged"
	UndoStack      = "undo:stackChanged"
)

// Handler consumes a published event payload.
type Handler func(event string, payload any)

// Bus is a synchronous pub/sub dispatcher. Handlers run inline in
// subscription order, after the mutation that triggered them.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	all    []Handler
	logger *zap.Logger
}

// NewBus builds an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[string][]Handler),
		logger: logger,
	}
}

// Subscribe registers a handler for a single event name.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], h)
	b.mu.Unlock()
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.all = append(b.all, h)
	b.mu.Unlock()
}

// Publish invokes handlers synchronously, in subscription order.
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event])+len(b.all))
	handlers = append(handlers, b.subs[event]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event, payload)
	}
	if len(handlers) > 0 {
		b.logger.Debug("event published", zap.String("event", event), zap.Int("handlers", len(handlers)))
	}
}
