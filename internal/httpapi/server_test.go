package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"todovoice/internal/voicesession"
)

type staticStatus struct {
	status voicesession.Status
}

func (s staticStatus) Status() voicesession.Status { return s.status }

func TestHealthz(t *testing.T) {
	srv := New("127.0.0.1:0", staticStatus{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %v, want ok", body["status"])
	}
}

func TestStatuszReflectsSession(t *testing.T) {
	srv := New("127.0.0.1:0", staticStatus{status: voicesession.Status{
		Active:         true,
		SessionID:      "s1",
		TransportState: "active",
		InFlight:       2,
		MirroredTasks:  5,
	}})
	req := httptest.NewRequest(http.MethodGet, "/statusz", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /statusz status = %d, want 200", rec.Code)
	}
	var got voicesession.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !got.Active || got.SessionID != "s1" || got.InFlight != 2 || got.MirroredTasks != 5 {
		t.Fatalf("statusz = %+v", got)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := New("127.0.0.1:0", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("metrics body is empty")
	}
}
