package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/leightonpayne/colab-phage-assembly/internal/dispatch"
	"github.com/leightonpayne/colab-phage-assembly/internal/statesync"
)

// Bridge implements statesync.Facade on top of the sidecar transport. It
// caches the field snapshot, stages local writes until Persist, and pumps
// the SSE stream into the registered change/message handlers, reconnecting
// when the stream drops.
type Bridge struct {
	mgr *Manager
	log pslog.Logger

	mu         sync.Mutex
	cache      map[string]any
	staged     map[string]any
	nextSubID  int
	changeSubs map[string]map[int]func(any)
	msgSubs    map[int]func(dispatch.Message)

	cancel context.CancelFunc
	done   chan struct{}
}

var _ statesync.Facade = (*Bridge)(nil)

func NewBridge(mgr *Manager) *Bridge {
	return &Bridge{
		mgr:        mgr,
		cache:      map[string]any{},
		staged:     map[string]any{},
		changeSubs: map[string]map[int]func(any){},
		msgSubs:    map[int]func(dispatch.Message){},
	}
}

// Start fetches the initial field snapshot and begins pumping the event
// stream. Call Close to stop the pump.
func (b *Bridge) Start(ctx context.Context) error {
	b.log = pslog.Ctx(ctx)

	snapshot, err := b.mgr.State(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	for field, value := range snapshot {
		b.cache[field] = value
	}
	b.mu.Unlock()

	pumpCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.pump(pumpCtx)
	return nil
}

// Close stops the event pump. Safe to call more than once.
func (b *Bridge) Close() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
}

func (b *Bridge) pump(ctx context.Context) {
	defer close(b.done)
	for {
		stream := make(chan Event, 128)
		errCh := make(chan error, 1)
		go func() {
			errCh <- b.mgr.StreamEvents(ctx, stream)
		}()
		for event := range stream {
			b.handleEvent(event)
		}
		err := <-errCh
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Warn("event stream ended; reconnecting", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (b *Bridge) handleEvent(event Event) {
	switch {
	case event.Change != nil:
		b.mu.Lock()
		b.cache[event.Change.Field] = event.Change.Value
		handlers := make([]func(any), 0, len(b.changeSubs[event.Change.Field]))
		for _, fn := range b.changeSubs[event.Change.Field] {
			handlers = append(handlers, fn)
		}
		b.mu.Unlock()
		for _, fn := range handlers {
			fn(event.Change.Value)
		}
	case event.Message != nil:
		b.deliver(*event.Message)
	}
}

func (b *Bridge) deliver(msg dispatch.Message) {
	b.mu.Lock()
	handlers := make([]func(dispatch.Message), 0, len(b.msgSubs))
	for _, fn := range b.msgSubs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

func (b *Bridge) Get(field string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.staged[field]; ok {
		return v
	}
	return b.cache[field]
}

func (b *Bridge) Set(field string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.staged[field] = value
}

func (b *Bridge) Persist(ctx context.Context) error {
	b.mu.Lock()
	if len(b.staged) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.staged
	b.staged = map[string]any{}
	b.mu.Unlock()

	if err := b.mgr.SetState(ctx, batch); err != nil {
		// Put the batch back so a retry persists it, without clobbering
		// anything staged since.
		b.mu.Lock()
		for field, value := range batch {
			if _, ok := b.staged[field]; !ok {
				b.staged[field] = value
			}
		}
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	for field, value := range batch {
		b.cache[field] = value
	}
	b.mu.Unlock()
	return nil
}

func (b *Bridge) OnChange(field string, fn func(value any)) *statesync.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	subs, ok := b.changeSubs[field]
	if !ok {
		subs = map[int]func(any){}
		b.changeSubs[field] = subs
	}
	subs[id] = fn
	return statesync.NewSubscription(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.changeSubs[field], id)
	})
}

// Send posts a one-shot message. A synchronous reply (the poll answer) is
// fed back through the same inbound message path as pushed messages, so
// both delivery channels converge downstream.
func (b *Bridge) Send(ctx context.Context, msg dispatch.Message) error {
	reply, err := b.mgr.SendMessage(ctx, msg)
	if err != nil {
		return err
	}
	if reply != nil {
		b.deliver(*reply)
	}
	return nil
}

func (b *Bridge) OnMessage(fn func(msg dispatch.Message)) *statesync.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.msgSubs[id] = fn
	return statesync.NewSubscription(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.msgSubs, id)
	})
}
