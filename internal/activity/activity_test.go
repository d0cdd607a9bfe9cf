package activity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type mockRecorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	delay  time.Duration
	done   chan struct{}
}

func (m *mockRecorder) Record(ctx context.Context, e Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.err
}

func (m *mockRecorder) getEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func TestNewEvent(t *testing.T) {
	e := NewEvent("c1", SchemaFetch, map[string]any{"status": 200})
	if e.ID == "" {
		t.Error("ID should be set")
	}
	if e.CompanyID != "c1" || e.Type != SchemaFetch {
		t.Errorf("event = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestAsync_NilRecorder(t *testing.T) {
	r := Async(nil)
	if err := r.Record(context.Background(), NewEvent("c1", SchemaFetch, nil)); err != nil {
		t.Errorf("Record: %v", err)
	}
}

func TestAsync_RecordsInBackground(t *testing.T) {
	m := &mockRecorder{done: make(chan struct{}, 1), err: errors.New("ignored")}
	r := Async(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Record(ctx, NewEvent("c1", EnquiryPost, nil)); err != nil {
		t.Fatalf("Record should not return errors, got %v", err)
	}
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("event was not recorded")
	}
	if got := len(m.getEvents()); got != 1 {
		t.Errorf("events = %d, want 1", got)
	}
}

func TestAsync_DoesNotBlockCaller(t *testing.T) {
	m := &mockRecorder{delay: 200 * time.Millisecond}
	r := Async(m)
	start := time.Now()
	r.Record(context.Background(), NewEvent("c1", EnquiryPost, nil))
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Record blocked for %v", elapsed)
	}
}

func TestMulti(t *testing.T) {
	a := &mockRecorder{}
	b := &mockRecorder{err: errors.New("b failed")}
	r := Multi(a, nil, b)
	err := r.Record(context.Background(), NewEvent("c1", CacheInvalidate, nil))
	if err == nil || !strings.Contains(err.Error(), "b failed") {
		t.Errorf("err = %v, want b failed", err)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Errorf("each recorder should get the event")
	}
}

func TestMemoryRecorder_Count(t *testing.T) {
	m := NewMemoryRecorder()
	ctx := context.Background()
	m.Record(ctx, NewEvent("c1", SchemaFetch, nil))
	m.Record(ctx, NewEvent("c1", SchemaFetch, nil))
	m.Record(ctx, NewEvent("c1", EnquiryPost, nil))
	if got := m.Count(SchemaFetch); got != 2 {
		t.Errorf("Count(schema_fetch) = %d, want 2", got)
	}
	if got := len(m.Events()); got != 3 {
		t.Errorf("Events = %d, want 3", got)
	}
}

func TestLokiRecorder_Push(t *testing.T) {
	var got pushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	l := NewLokiRecorder(server.URL+"/", "")
	e := NewEvent("c 1", CaptchaVerify, map[string]any{"success": true})
	if err := l.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	labels := got.Streams[0].Stream
	if labels["job"] != "enquiry-socket" || labels["company_id"] != "c_1" || labels["event_type"] != "captcha_verify" {
		t.Errorf("labels = %v", labels)
	}
	if !strings.Contains(got.Streams[0].Values[0][1], e.ID) {
		t.Errorf("line = %q, want event id", got.Streams[0].Values[0][1])
	}
}

func TestLokiRecorder_Errors(t *testing.T) {
	if err := NewLokiRecorder("", "").Record(context.Background(), Event{}); err == nil {
		t.Error("expected error for empty base URL")
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()
	if err := NewLokiRecorder(server.URL, "").Record(context.Background(), NewEvent("c1", SchemaFetch, nil)); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestOTelRecorder(t *testing.T) {
	if _, ok := NewOTelRecorder(nil).(Nop); !ok {
		t.Error("nil provider should yield Nop")
	}
	lp := sdklog.NewLoggerProvider()
	defer lp.Shutdown(context.Background())
	r := NewOTelRecorder(lp)
	if err := r.Record(context.Background(), NewEvent("c1", SchemaFetch, map[string]any{"fields": 2})); err != nil {
		t.Errorf("Record: %v", err)
	}
}
