package statesync

import (
	"context"
	"sync"

	"github.com/leightonpayne/colab-phage-assembly/internal/dispatch"
)

// Memory is an in-process Facade. It backs tests and any embedded backend:
// the "remote" side is driven through ApplyRemote and Deliver, which is how
// a backend stub observes persisted flags and pushes data back.
type Memory struct {
	mu         sync.Mutex
	fields     map[string]any
	staged     map[string]any
	nextSubID  int
	changeSubs map[string]map[int]func(any)
	msgSubs    map[int]func(dispatch.Message)

	// sendFn receives outbound messages. Optional; nil drops them.
	sendFn func(dispatch.Message) error
	// persistFn observes each persisted batch. Optional.
	persistFn func(map[string]any) error
}

func NewMemory() *Memory {
	return &Memory{
		fields:     map[string]any{},
		staged:     map[string]any{},
		changeSubs: map[string]map[int]func(any){},
		msgSubs:    map[int]func(dispatch.Message){},
	}
}

// HandleSend installs the backend-side receiver for outbound messages.
func (m *Memory) HandleSend(fn func(dispatch.Message) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendFn = fn
}

// HandlePersist installs the backend-side observer for persisted batches.
func (m *Memory) HandlePersist(fn func(map[string]any) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistFn = fn
}

func (m *Memory) Get(field string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.staged[field]; ok {
		return v
	}
	return m.fields[field]
}

func (m *Memory) Set(field string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[field] = value
}

func (m *Memory) Persist(ctx context.Context) error {
	m.mu.Lock()
	if len(m.staged) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := m.staged
	m.staged = map[string]any{}
	for field, value := range batch {
		m.fields[field] = value
	}
	fn := m.persistFn
	m.mu.Unlock()

	if fn != nil {
		return fn(batch)
	}
	return nil
}

func (m *Memory) OnChange(field string, fn func(value any)) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	subs, ok := m.changeSubs[field]
	if !ok {
		subs = map[int]func(any){}
		m.changeSubs[field] = subs
	}
	subs[id] = fn
	return NewSubscription(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.changeSubs[field], id)
	})
}

func (m *Memory) Send(ctx context.Context, msg dispatch.Message) error {
	m.mu.Lock()
	fn := m.sendFn
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(msg)
}

func (m *Memory) OnMessage(fn func(msg dispatch.Message)) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.msgSubs[id] = fn
	return NewSubscription(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.msgSubs, id)
	})
}

// ApplyRemote records a backend-originated field change and notifies
// subscribers for that field.
func (m *Memory) ApplyRemote(field string, value any) {
	m.mu.Lock()
	m.fields[field] = value
	handlers := make([]func(any), 0, len(m.changeSubs[field]))
	for _, fn := range m.changeSubs[field] {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(value)
	}
}

// Deliver pushes a backend-originated message to all message subscribers.
func (m *Memory) Deliver(msg dispatch.Message) {
	m.mu.Lock()
	handlers := make([]func(dispatch.Message), 0, len(m.msgSubs))
	for _, fn := range m.msgSubs {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(msg)
	}
}
