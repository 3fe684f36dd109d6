package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fuelwatch/internal/alerts"
	"fuelwatch/internal/config"
	"fuelwatch/internal/model"
	"fuelwatch/internal/registry"
)

func testRESTServer(t *testing.T) *RESTServer {
	t.Helper()
	store := registry.NewMemory()
	store.Seed(testStation())
	clock := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	emitter := alerts.NewEmitter(store, nil, nil, nil, nil).WithClock(clock)
	d := NewDispatcher(store, emitter, nil, nil, nil, config.DefaultConfig().Rules).WithClock(clock)
	return &RESTServer{dispatcher: d}
}

func postIngest(t *testing.T, s *RESTServer, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handleIngest(rec, req)
	return rec
}

func TestIngestShortKeyRejected(t *testing.T) {
	s := testRESTServer(t)
	body := `{"sensor_key":"short","data":[{"station_code":"CON-001","sensor_type":"debit","valeur":1}]}`
	rec := postIngest(t, s, body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] != "Invalid sensor key" {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestIngestMissingKeyRejected(t *testing.T) {
	s := testRESTServer(t)
	rec := postIngest(t, s, `{"data":[]}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestIngestHeaderKeyAccepted(t *testing.T) {
	s := testRESTServer(t)
	body := `{"data":[{"station_code":"CON-001","sensor_type":"niveau","carburant":"essence","valeur":12345}]}`
	rec := postIngest(t, s, body, map[string]string{"x-sensor-key": "key-12345678"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success   bool                   `json:"success"`
		Processed int                    `json:"processed"`
		Results   []model.ReadingOutcome `json:"results"`
		Errors    []model.ReadingError   `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Processed != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Results[0].Status != model.StatusUpdated {
		t.Fatalf("outcome: %+v", resp.Results[0])
	}
	if strings.Contains(rec.Body.String(), `"errors"`) {
		t.Fatalf("errors must be omitted when empty: %s", rec.Body.String())
	}
}

func TestIngestPartialFailure(t *testing.T) {
	s := testRESTServer(t)
	body := `{"sensor_key":"key-12345678","data":[
		{"station_code":"GHOST","sensor_type":"debit","valeur":1},
		{"station_code":"CON-001","sensor_type":"debit","valeur":2}
	]}`
	rec := postIngest(t, s, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("partial failure keeps batch success: %d", rec.Code)
	}
	var resp struct {
		Processed int                  `json:"processed"`
		Errors    []model.ReadingError `json:"errors"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Processed != 1 || len(resp.Errors) != 1 || resp.Errors[0].Error != "StationNotFound" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestIngestMalformedBody(t *testing.T) {
	s := testRESTServer(t)
	rec := postIngest(t, s, `{not json`, map[string]string{"x-sensor-key": "key-12345678"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if _, ok := resp["error"]; !ok {
		t.Fatalf("expected error message: %s", rec.Body.String())
	}
}

func TestIngestPreflight(t *testing.T) {
	s := testRESTServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/ingest", nil)
	rec := httptest.NewRecorder()
	s.handleIngest(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS headers")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight body must be empty")
	}
}
