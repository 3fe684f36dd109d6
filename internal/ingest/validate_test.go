package ingest

import (
	"errors"
	"testing"

	"fuelwatch/internal/model"
)

func TestParseReadingLevel(t *testing.T) {
	r, err := ParseReading(map[string]any{
		"station_code": "CON-001",
		"sensor_type":  "niveau",
		"carburant":    "essence",
		"valeur":       float64(12345),
		"unite":        "L",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.StationCode != "CON-001" || r.Sensor != model.SensorLevel || r.Fuel != model.FuelEssence || r.Value != 12345 {
		t.Fatalf("unexpected reading: %+v", r)
	}
}

func TestParseReadingRejections(t *testing.T) {
	cases := []struct {
		name     string
		obj      map[string]any
		wantCode string
	}{
		{"missing station", map[string]any{"sensor_type": "niveau", "valeur": 1.0}, ""},
		{"unknown sensor", map[string]any{"station_code": "CON-001", "sensor_type": "pression", "valeur": 1.0}, "CON-001"},
		{"missing value", map[string]any{"station_code": "CON-001", "sensor_type": "debit"}, "CON-001"},
		{"level without fuel", map[string]any{"station_code": "CON-001", "sensor_type": "niveau", "valeur": 1.0}, "CON-001"},
		{"level with bad fuel", map[string]any{"station_code": "CON-001", "sensor_type": "niveau", "carburant": "kerosene", "valeur": 1.0}, "CON-001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseReading(tc.obj)
			if err == nil {
				t.Fatalf("expected rejection")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if verr.StationCode != tc.wantCode {
				t.Fatalf("error tagged %q, want %q", verr.StationCode, tc.wantCode)
			}
		})
	}
}

func TestParseReadingNumericString(t *testing.T) {
	r, err := ParseReading(map[string]any{
		"station_code": "CON-001",
		"sensor_type":  "temperature",
		"valeur":       "47.5",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Value != 47.5 {
		t.Fatalf("value: %v", r.Value)
	}
}

func TestParseReadingOptionalMetadata(t *testing.T) {
	r, err := ParseReading(map[string]any{
		"station_code": "CON-001",
		"sensor_type":  "debit",
		"valeur":       3.2,
		"sensor_id":    "flow-7",
		"batterie":     88.0,
		"timestamp":    "2026-03-01T09:30:00Z",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.SensorID != "flow-7" || r.Battery == nil || *r.Battery != 88 {
		t.Fatalf("metadata lost: %+v", r)
	}
	if r.Timestamp.IsZero() {
		t.Fatalf("timestamp not parsed")
	}
}
