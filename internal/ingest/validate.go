package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fuelwatch/internal/model"
)

// ValidationError rejects one reading without touching the rest of the
// batch. It carries the offending station code when one was present.
type ValidationError struct {
	StationCode string
	Reason      string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{StationCode: code, Reason: fmt.Sprintf(format, args...)}
}

// ParseReading type-checks one raw reading object. Devices send liters
// directly; no unit conversion happens here or later.
func ParseReading(obj map[string]any) (model.SensorReading, error) {
	var r model.SensorReading

	code := stringField(obj, "station_code", "station")
	if strings.TrimSpace(code) == "" {
		return r, invalid("", "station_code is required")
	}
	r.StationCode = code

	rawKind := stringField(obj, "sensor_type", "sensor")
	kind, ok := model.ParseSensorKind(rawKind)
	if !ok {
		return r, invalid(code, "unrecognized sensor_type %q", rawKind)
	}
	r.Sensor = kind

	value, ok := numberField(obj, "valeur", "value")
	if !ok {
		return r, invalid(code, "valeur must be a finite number")
	}
	r.Value = value

	if kind == model.SensorLevel {
		rawFuel := stringField(obj, "carburant", "fuel")
		fuel, ok := model.ParseFuelKind(rawFuel)
		if !ok {
			return r, invalid(code, "niveau reading requires a recognized carburant, got %q", rawFuel)
		}
		r.Fuel = fuel
	}

	r.Unit = stringField(obj, "unite", "unit")
	r.SensorID = stringField(obj, "sensor_id")
	if ts := stringField(obj, "timestamp", "time"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			r.Timestamp = parsed
		}
	}
	if v, ok := numberField(obj, "batterie", "battery"); ok {
		r.Battery = &v
	}
	if v, ok := numberField(obj, "signal"); ok {
		r.Signal = &v
	}
	return r, nil
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if raw, ok := obj[key]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func numberField(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			if finite(v) {
				return v, true
			}
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && finite(f) {
				return f, true
			}
		}
	}
	return 0, false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
