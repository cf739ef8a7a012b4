package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type represents the type of event.
type Type string

const (
	TypeProjectCreated   Type = "project_created"
	TypeProjectDeleted   Type = "project_deleted"
	TypeScheduleCreated  Type = "schedule_created"
	TypeScheduleUpdated  Type = "schedule_updated"
	TypeScheduleDeleted  Type = "schedule_deleted"
	TypeScheduleFired    Type = "schedule_fired"
	TypeRunQueued        Type = "run_queued"
	TypeRunStarted       Type = "run_started"
	TypeRunCompleted     Type = "run_completed"
	TypeRunFailed        Type = "run_failed"
	TypeEnvironmentReady Type = "environment_ready"
)

// Event represents a system event.
type Event struct {
	Type       Type            `json:"type"`
	ProjectID  uuid.UUID       `json:"project_id,omitempty"`
	ScheduleID uuid.UUID       `json:"schedule_id,omitempty"`
	RunID      uuid.UUID       `json:"run_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Filter defines criteria for receiving events.
type Filter struct {
	ProjectID  uuid.UUID
	ScheduleID uuid.UUID
	RunID      uuid.UUID
	Types      []Type
}

// Bus defines the event bus interface.
type Bus interface {
	Publish(e Event)
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, error)
}

type bus struct {
	subscribers map[chan Event]Filter
	mu          sync.RWMutex
}

// New creates a new event bus.
func New() Bus {
	return &bus{
		subscribers: make(map[chan Event]Filter),
	}
}

func (b *bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if filter.matches(e) {
			select {
			case ch <- e:
			default:
				// Drop event if channel is full to prevent blocking
			}
		}
	}
}

func (b *bus) Subscribe(ctx context.Context, filter Filter) (<-chan Event, error) {
	ch := make(chan Event, 100)

	b.mu.Lock()
	b.subscribers[ch] = filter
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

func (f Filter) matches(e Event) bool {
	if f.ProjectID != uuid.Nil && f.ProjectID != e.ProjectID {
		return false
	}
	if f.ScheduleID != uuid.Nil && f.ScheduleID != e.ScheduleID {
		return false
	}
	if f.RunID != uuid.Nil && f.RunID != e.RunID {
		return false
	}
	if len(f.Types) > 0 {
		for _, t := range f.Types {
			if t == e.Type {
				return true
			}
		}
		return false
	}
	return true
}

// Nop discards every event. It is used where no bus is configured.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(ctx context.Context, _ Filter) (<-chan Event, error) {
	ch := make(chan Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
