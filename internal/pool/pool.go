// Package pool provides sync.Pool backed reuse of parsed events.
package pool

import (
	"sync"

	"github.com/logflow/logprune/internal/model"
)

// DefaultBufferSize is the default read buffer size for parsers.
const DefaultBufferSize = 64 * 1024 // 64KB

// EventPool manages reusable Event structs.
type EventPool struct {
	pool sync.Pool
}

// NewEventPool creates a new event pool.
func NewEventPool() *EventPool {
	ep := &EventPool{}
	ep.pool.New = func() any {
		return &model.Event{
			CaseID:   make([]byte, 0, 32),
			Activity: make([]byte, 0, 64),
			Resource: make([]byte, 0, 32),
		}
	}
	return ep
}

// Get retrieves an event from the pool.
func (p *EventPool) Get() *model.Event {
	return p.pool.Get().(*model.Event)
}

// Put returns an event to the pool.
func (p *EventPool) Put(e *model.Event) {
	if e == nil {
		return
	}
	e.Reset()
	p.pool.Put(e)
}

// Events is the pool shared by parsers and their consumers. Parsers take
// events from it; whoever drains the parser channel puts them back.
var Events = NewEventPool()
