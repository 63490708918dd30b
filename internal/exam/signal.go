package exam

import (
	"sync"
	"time"
)

// SignalKind names a browser event forwarded by the exam client.
type SignalKind string

const (
	SignalMouseLeave       SignalKind = "mouseleave"
	SignalVisibilityChange SignalKind = "visibilitychange"
	SignalBlur             SignalKind = "blur"
	SignalContextMenu      SignalKind = "contextmenu"
	SignalResize           SignalKind = "resize"
	SignalKeyDown          SignalKind = "keydown"
)

// SignalKinds lists every kind the monitor subscribes to.
var SignalKinds = []SignalKind{
	SignalMouseLeave,
	SignalVisibilityChange,
	SignalBlur,
	SignalContextMenu,
	SignalResize,
	SignalKeyDown,
}

// Signal is one browser event. Only the fields relevant to its kind are set.
type Signal struct {
	Kind SignalKind `json:"type"`

	// Pointer position for mouseleave.
	ClientX float64 `json:"client_x"`
	ClientY float64 `json:"client_y"`
	// Viewport size (innerWidth/innerHeight) for mouseleave and resize.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	Hidden bool `json:"hidden"`

	Key      string `json:"key"`
	Code     string `json:"code"`
	CtrlKey  bool   `json:"ctrl_key"`
	ShiftKey bool   `json:"shift_key"`
	MetaKey  bool   `json:"meta_key"`
	AltKey   bool   `json:"alt_key"`

	At time.Time `json:"-"`
	// PreventDefault asks the source to suppress the browser's default action.
	PreventDefault func() `json:"-"`
}

// Handler receives signals of one kind.
type Handler func(Signal)

// SignalSource delivers browser signals. The returned function releases the subscription.
type SignalSource interface {
	Subscribe(kind SignalKind, h Handler) (unsubscribe func())
}

// Bus is an in-process SignalSource fed by Publish.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[SignalKind]map[int]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[SignalKind]map[int]Handler)}
}

// Subscribe registers h for kind. Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(kind SignalKind, h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int]Handler)
	}
	b.subs[kind][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[kind], id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers sig to every current subscriber of its kind and returns how many received it.
// Handlers run on the caller's goroutine, outside the bus lock.
func (b *Bus) Publish(sig Signal) int {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[sig.Kind]))
	for _, h := range b.subs[sig.Kind] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(sig)
	}
	return len(handlers)
}

// Subscribers returns the number of live subscriptions across all kinds.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}
