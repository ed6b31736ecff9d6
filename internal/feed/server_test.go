package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dokzlo13/presenced/internal/eventbus"
	"github.com/dokzlo13/presenced/internal/proximity"
)

func TestHandleAdvertisementsPublishesBatch(t *testing.T) {
	bus := eventbus.New()
	received := make(chan []proximity.Sample, 1)
	bus.Subscribe(eventbus.EventTypeProximity, func(e eventbus.Event) {
		received <- e.Samples
	})

	srv := NewServer("127.0.0.1", 0, bus)

	req := httptest.NewRequest(http.MethodPost, "/advertisements",
		strings.NewReader(`[{"rssi":-52},{"rssi":-127},{"rssi":-60,"time":"2026-08-25T10:00:00Z"}]`))
	rec := httptest.NewRecorder()
	srv.handleAdvertisements(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case samples := <-received:
		if len(samples) != 3 {
			t.Fatalf("published %d samples, want 3", len(samples))
		}
		if samples[1].RSSI != proximity.OutOfRangeRSSI {
			t.Errorf("sample RSSI = %d, want sentinel", samples[1].RSSI)
		}
		// Missing timestamps are filled with the receive time.
		if samples[0].Time.IsZero() {
			t.Error("missing timestamp not filled")
		}
		if samples[2].Time.IsZero() || samples[2].Time.UTC().Hour() != 10 {
			t.Errorf("explicit timestamp mangled: %v", samples[2].Time)
		}
	case <-time.After(time.Second):
		t.Fatal("batch never reached the bus")
	}
}

func TestHandleAdvertisementsRejectsBadInput(t *testing.T) {
	bus := eventbus.New()
	srv := NewServer("127.0.0.1", 0, bus)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong_method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"not_json", http.MethodPost, "hello", http.StatusBadRequest},
		{"object_not_array", http.MethodPost, `{"rssi":-50}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/advertisements", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.handleAdvertisements(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer("127.0.0.1", 0, eventbus.New())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s, want ok", rec.Body.String())
	}
}
