// Package event provides the dispatch bus that connects annotations,
// controllers and the registry.
package event

import (
	"sync"
)

// EventType identifies different engine events.
type EventType int

const (
	// EventSelectRequest asks the host to select an annotation. Data is SelectRequest.
	EventSelectRequest EventType = iota
	// EventFocusRequest asks the host to focus an annotation. Data is FocusRequest.
	EventFocusRequest
	// EventEditRequest carries an undoable edit. Data is EditRequest.
	EventEditRequest
	// EventChange notifies of a state change. Data is Change.
	EventChange
)

func (t EventType) String() string {
	switch t {
	case EventSelectRequest:
		return "select-request"
	case EventFocusRequest:
		return "focus-request"
	case EventEditRequest:
		return "edit-request"
	case EventChange:
		return "change"
	default:
		return "unknown"
	}
}

// ChangeType discriminates change notifications.
type ChangeType string

const (
	ChangeSelect ChangeType = "select"
	ChangeAdd    ChangeType = "add"
	ChangeEdit   ChangeType = "edit"
	ChangeDelete ChangeType = "delete"
	ChangeRender ChangeType = "render"
	ChangeImport ChangeType = "import"
	ChangeFocus  ChangeType = "focus"
)

// SelectRequest is the payload of EventSelectRequest.
type SelectRequest struct {
	ImageID      string
	AnnotationID string
}

// FocusRequest is the payload of EventFocusRequest.
type FocusRequest struct {
	ImageID      string
	AnnotationID string
}

// EditRequest is the payload of EventEditRequest. Undo reverts the edit.
type EditRequest struct {
	ImageID      string
	AnnotationID string
	Label        string
	Undo         func()
}

// Change is the payload of EventChange.
type Change struct {
	Type          ChangeType
	ImageID       string
	AnnotationIDs []string
}

// Listener is a callback for events.
type Listener func(data interface{})

type subscription struct {
	id       int
	listener Listener
}

// Bus dispatches events to registered listeners in registration order.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[EventType][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[EventType][]subscription)}
}

// On registers a listener for an event type and returns a function that
// removes it again.
func (b *Bus) On(event EventType, listener Listener) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], subscription{id: id, listener: listener})
	return func() { b.remove(event, id) }
}

func (b *Bus) remove(event EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[event]
	for i, s := range subs {
		if s.id == id {
			b.listeners[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit triggers all listeners for the specified event type.
func (b *Bus) Emit(event EventType, data interface{}) {
	b.mu.RLock()
	subs := b.listeners[event]
	b.mu.RUnlock()

	for _, s := range subs {
		s.listener(data)
	}
}

// Dispatcher is the subset of Bus used by annotations and controllers.
type Dispatcher interface {
	Emit(event EventType, data interface{})
}
