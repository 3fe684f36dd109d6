package ingest

import (
	"context"
	"testing"
	"time"

	"fuelwatch/internal/alerts"
	"fuelwatch/internal/config"
	"fuelwatch/internal/model"
	"fuelwatch/internal/registry"
)

func testStation() model.StationState {
	return model.StationState{
		ID:           "st-1",
		Code:         "CON-001",
		Name:         "Station Centre",
		EnterpriseID: "ent-1",
		CapEssence:   50000,
		CapGasoil:    30000,
		StockEssence: 8000,
		StockGasoil:  500,
	}
}

func testDispatcher(t *testing.T, hour int) (*Dispatcher, *registry.Memory) {
	t.Helper()
	store := registry.NewMemory()
	store.Seed(testStation())
	clock := func() time.Time {
		return time.Date(2026, 3, 1, hour, 15, 0, 0, time.UTC)
	}
	emitter := alerts.NewEmitter(store, nil, nil, nil, nil).WithClock(clock)
	d := NewDispatcher(store, emitter, nil, nil, nil, config.DefaultConfig().Rules).WithClock(clock)
	return d, store
}

func unresolvedAlerts(t *testing.T, store *registry.Memory) []model.Alert {
	t.Helper()
	list, err := store.ListAlerts(context.Background(), registry.AlertFilter{})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	return list
}

func TestLevelReadingUpdatesOneFuelField(t *testing.T) {
	d, store := testDispatcher(t, 10)
	res := d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorLevel,
		Fuel:        model.FuelEssence,
		Value:       12345,
	}})

	if len(res.Results) != 1 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	out := res.Results[0]
	if out.StationCode != "CON-001" || out.Sensor != model.SensorLevel || out.Fuel != model.FuelEssence || out.Value != 12345 || out.Status != model.StatusUpdated {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	st, _ := store.StationByCode(context.Background(), "CON-001")
	if st.StockEssence != 12345 {
		t.Fatalf("essence: %d", st.StockEssence)
	}
	if st.StockGasoil != 500 || st.StockGPL != 0 || st.StockLubrifiant != 0 {
		t.Fatalf("untouched fields changed: %+v", st)
	}

	history := store.History()
	if len(history) != 1 {
		t.Fatalf("expected one history point, got %d", len(history))
	}
	p := history[0]
	if p.StationID != "st-1" || p.Date != "2026-03-01" {
		t.Fatalf("unexpected point: %+v", p)
	}
	if p.StockEssence != 12345 || p.StockGasoil != 500 || p.StockGPL != 0 || p.StockLubrifiant != 0 {
		t.Fatalf("snapshot mismatch: %+v", p)
	}
}

func TestLevelReadingRoundsToLiters(t *testing.T) {
	d, store := testDispatcher(t, 10)
	d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorLevel,
		Fuel:        model.FuelGasoil,
		Value:       10000.6,
	}})
	st, _ := store.StationByCode(context.Background(), "CON-001")
	if st.StockGasoil != 10001 {
		t.Fatalf("expected rounded liters, got %d", st.StockGasoil)
	}
}

func TestLevelReadingLowStockAlert(t *testing.T) {
	d, store := testDispatcher(t, 10)
	// 2000 of 50000 is 4%, below the 10% critical band.
	d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorLevel,
		Fuel:        model.FuelEssence,
		Value:       2000,
	}})
	list := unresolvedAlerts(t, store)
	if len(list) != 1 {
		t.Fatalf("expected one stock alert, got %d", len(list))
	}
	if list[0].Type != model.AlertStockCritical || list[0].Severity != model.SeverityCritical {
		t.Fatalf("unexpected alert: %+v", list[0])
	}
}

func TestOpenAtNightRaisesSecurityAlert(t *testing.T) {
	d, store := testDispatcher(t, 3)
	res := d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorOpen,
		Value:       1,
	}})
	if len(res.Results) != 1 || res.Results[0].Status != model.StatusSecurityAlert {
		t.Fatalf("unexpected result: %+v", res)
	}
	list := unresolvedAlerts(t, store)
	if len(list) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(list))
	}
	a := list[0]
	if a.Type != model.AlertSecurity || a.Severity != model.SeverityCritical || a.StationID != "st-1" {
		t.Fatalf("unexpected alert: %+v", a)
	}
}

func TestOpenDuringDayIsAuthorized(t *testing.T) {
	d, store := testDispatcher(t, 14)
	res := d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorOpen,
		Value:       1,
	}})
	if len(res.Results) != 1 || res.Results[0].Status != model.StatusLoggedAuthorized {
		t.Fatalf("unexpected result: %+v", res)
	}
	if list := unresolvedAlerts(t, store); len(list) != 0 {
		t.Fatalf("expected no alerts, got %d", len(list))
	}
}

func TestClosedSensorIsNoOp(t *testing.T) {
	d, _ := testDispatcher(t, 3)
	res := d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorOpen,
		Value:       0,
	}})
	if len(res.Results) != 0 || len(res.Errors) != 0 {
		t.Fatalf("closed sensor must produce no result item: %+v", res)
	}
}

func TestTemperatureAboveLimit(t *testing.T) {
	d, store := testDispatcher(t, 10)
	res := d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorTemperature,
		Value:       50,
	}})
	if len(res.Results) != 1 || res.Results[0].Status != model.StatusLogged {
		t.Fatalf("outcome must stay logged: %+v", res)
	}
	if list := unresolvedAlerts(t, store); len(list) != 1 {
		t.Fatalf("expected one temperature alert, got %d", len(list))
	}
}

func TestTemperatureBelowLimit(t *testing.T) {
	d, store := testDispatcher(t, 10)
	res := d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorTemperature,
		Value:       40,
	}})
	if len(res.Results) != 1 || res.Results[0].Status != model.StatusLogged {
		t.Fatalf("unexpected result: %+v", res)
	}
	if list := unresolvedAlerts(t, store); len(list) != 0 {
		t.Fatalf("expected no alerts, got %d", len(list))
	}
}

func TestFlowReadingLogged(t *testing.T) {
	d, _ := testDispatcher(t, 10)
	res := d.Process(context.Background(), []model.SensorReading{{
		StationCode: "CON-001",
		Sensor:      model.SensorFlow,
		Value:       3.4,
	}})
	if len(res.Results) != 1 || res.Results[0].Status != model.StatusLogged || res.Results[0].Value != 3.4 {
		t.Fatalf("flow value must be carried through: %+v", res)
	}
}

func TestUnknownStationDoesNotAbortBatch(t *testing.T) {
	d, _ := testDispatcher(t, 10)
	res := d.Process(context.Background(), []model.SensorReading{
		{StationCode: "NOPE-9", Sensor: model.SensorFlow, Value: 1},
		{StationCode: "CON-001", Sensor: model.SensorFlow, Value: 2},
	})
	if len(res.Errors) != 1 || res.Errors[0].Error != "StationNotFound" || res.Errors[0].StationCode != "NOPE-9" {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
	if len(res.Results) != 1 || res.Results[0].StationCode != "CON-001" {
		t.Fatalf("batch must continue past unknown station: %+v", res.Results)
	}
}

func TestProcessRawMixesValidationAndDispatchErrors(t *testing.T) {
	d, _ := testDispatcher(t, 10)
	res := d.ProcessRaw(context.Background(), []map[string]any{
		{"station_code": "CON-001", "sensor_type": "niveau", "carburant": "essence", "valeur": 12345.0},
		{"station_code": "CON-001", "sensor_type": "pression", "valeur": 1.0},
		{"station_code": "GHOST", "sensor_type": "debit", "valeur": 1.0},
	})
	if res.Processed() != 1 {
		t.Fatalf("processed: %d", res.Processed())
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected two per-item errors: %+v", res.Errors)
	}
}
