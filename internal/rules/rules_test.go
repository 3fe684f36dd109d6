package rules

import (
	"testing"

	"fuelwatch/internal/model"
)

func TestIsUnauthorizedOpen(t *testing.T) {
	cases := []struct {
		name  string
		hour  int
		value float64
		want  bool
	}{
		{"night open", 3, 1, true},
		{"day open", 14, 1, false},
		{"window start", 6, 1, false},
		{"window end", 22, 1, false},
		{"before window", 5, 1, true},
		{"after window", 23, 1, true},
		{"closed at night", 3, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUnauthorizedOpen(tc.hour, 6, 22, tc.value); got != tc.want {
				t.Fatalf("hour=%d value=%v: got %v, want %v", tc.hour, tc.value, got, tc.want)
			}
		})
	}
}

func TestExceedsTemperatureLimit(t *testing.T) {
	if !ExceedsTemperatureLimit(50, 45) {
		t.Fatalf("50 should exceed limit 45")
	}
	if ExceedsTemperatureLimit(40, 45) {
		t.Fatalf("40 should not exceed limit 45")
	}
	if ExceedsTemperatureLimit(45, 45) {
		t.Fatalf("limit itself is not a breach")
	}
}

func TestStockSeverity(t *testing.T) {
	cases := []struct {
		name     string
		stock    int64
		capacity int64
		want     model.Severity
		banded   bool
	}{
		{"empty tank", 0, 10000, model.SeverityCritical, true},
		{"below critical", 900, 10000, model.SeverityCritical, true},
		{"below warning", 1500, 10000, model.SeverityWarning, true},
		{"healthy", 5000, 10000, "", false},
		{"exactly warn band", 2000, 10000, "", false},
		{"no capacity", 100, 0, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sev, ok := StockSeverity(tc.stock, tc.capacity, 0.20, 0.10)
			if ok != tc.banded || sev != tc.want {
				t.Fatalf("stock=%d cap=%d: got (%q,%v), want (%q,%v)", tc.stock, tc.capacity, sev, ok, tc.want, tc.banded)
			}
		})
	}
}

func TestExceedsCapacity(t *testing.T) {
	if !ExceedsCapacity(12000, 10000) {
		t.Fatalf("overfill should be flagged")
	}
	if ExceedsCapacity(10000, 10000) {
		t.Fatalf("full tank is not an overfill")
	}
	if ExceedsCapacity(500, 0) {
		t.Fatalf("unknown capacity cannot overfill")
	}
}
