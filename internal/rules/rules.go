// Package rules holds the anomaly decision functions. Everything here is
// pure: fixed inputs in, bool or severity out, no clocks and no I/O.
package rules

import "fuelwatch/internal/model"

// OpenValue is the tamper-sensor reading that denotes an opened door/hatch.
const OpenValue = 1

// IsUnauthorizedOpen reports whether an opened tamper sensor at the given
// local hour falls outside the authorized window. Both bounds are inclusive.
func IsUnauthorizedOpen(hour, startHour, endHour int, value float64) bool {
	if int(value) != OpenValue {
		return false
	}
	return hour < startHour || hour > endHour
}

// ExceedsTemperatureLimit reports whether a temperature reading breaches the
// safety ceiling. The limit itself is not a breach.
func ExceedsTemperatureLimit(value, limit float64) bool {
	return value > limit
}

// StockSeverity classifies a post-update fill level against the warning and
// critical bands. A zero capacity yields no severity: stations without a
// declared tank size cannot be banded.
func StockSeverity(stock, capacity int64, warnRatio, critRatio float64) (model.Severity, bool) {
	if capacity <= 0 {
		return "", false
	}
	ratio := float64(stock) / float64(capacity)
	switch {
	case ratio < critRatio:
		return model.SeverityCritical, true
	case ratio < warnRatio:
		return model.SeverityWarning, true
	}
	return "", false
}

// ExceedsCapacity flags stock above declared capacity. Calibration drift can
// produce this transiently; it is reported, never rejected.
func ExceedsCapacity(stock, capacity int64) bool {
	return capacity > 0 && stock > capacity
}
