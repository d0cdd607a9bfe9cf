// Package activity records what the enquiry flow did for each company: schema fetches, cache
// invalidations, captcha checks and enquiry posts. Recording is best-effort; a failed record never
// changes the outcome of the operation that produced it.
package activity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an activity.
type Type string

const (
	SchemaFetch     Type = "schema_fetch"
	CacheInvalidate Type = "cache_invalidate"
	CaptchaVerify   Type = "captcha_verify"
	EnquiryPost     Type = "enquiry_post"
)

// Event is one recorded activity.
type Event struct {
	ID        string         `json:"id"`
	CompanyID string         `json:"company_id"`
	Type      Type           `json:"type"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent returns an event with a fresh id stamped now.
func NewEvent(companyID string, typ Type, detail map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Type:      typ,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

// Recorder stores or ships activity events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

type multi []Recorder

// Multi returns a Recorder that sends each event to every non-nil recorder and joins their errors.
func Multi(recorders ...Recorder) Recorder {
	var m multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryRecorder keeps events in memory in the order they were recorded.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRecorder returns an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events of typ were recorded.
func (m *MemoryRecorder) Count(typ Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
