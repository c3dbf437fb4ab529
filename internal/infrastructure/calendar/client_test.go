package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

func TestCreateEvent(t *testing.T) {
	var got createEventRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/sales/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"evt-1"}`))
	}))
	defer srv.Close()

	start := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	id, err := New(srv.URL, "key", "sales").CreateEvent(context.Background(), domain.CalendarEvent{
		Summary: "Follow up",
		Start:   start,
		End:     start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if id != "evt-1" {
		t.Fatalf("unexpected id %q", id)
	}
	if got.Start.DateTime != "2026-03-01T11:00:00Z" || got.End.DateTime != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected times %+v", got)
	}
}

func TestCreateEventRejectsEmptyWindow(t *testing.T) {
	now := time.Now()
	_, err := New("http://127.0.0.1:0", "", "c").CreateEvent(context.Background(), domain.CalendarEvent{Start: now, End: now})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateEventUpstreamOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	now := time.Now()
	_, err := New(srv.URL, "", "c").CreateEvent(context.Background(), domain.CalendarEvent{Start: now, End: now.Add(time.Hour)})
	if !domain.IsKind(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
}
