package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"fuelwatch/internal/alerts"
	"fuelwatch/internal/audit"
	"fuelwatch/internal/config"
	"fuelwatch/internal/feed"
	"fuelwatch/internal/metrics"
	"fuelwatch/internal/model"
	"fuelwatch/internal/registry"
	"fuelwatch/internal/rules"
)

// errStationNotFound is the per-item error string surfaced to devices.
const errStationNotFound = "StationNotFound"

// Dispatcher routes validated readings to their handler by sensor kind and
// applies the state transition. Readings in one batch run in submission
// order; a failure on one reading never stops the next.
type Dispatcher struct {
	store   registry.Store
	emitter *alerts.Emitter
	broker  *feed.Broker
	audit   audit.Logger
	logger  *slog.Logger
	rules   config.RulesConfig
	loc     *time.Location
	now     func() time.Time
}

func NewDispatcher(store registry.Store, emitter *alerts.Emitter, broker *feed.Broker, auditLog audit.Logger, logger *slog.Logger, rulesCfg config.RulesConfig) *Dispatcher {
	loc, err := time.LoadLocation(rulesCfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &Dispatcher{
		store:   store,
		emitter: emitter,
		broker:  broker,
		audit:   auditLog,
		logger:  logger,
		rules:   rulesCfg,
		loc:     loc,
		now:     time.Now,
	}
}

// WithClock overrides the dispatcher clock. Tests only.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// ProcessRaw validates then dispatches a batch of raw reading objects.
func (d *Dispatcher) ProcessRaw(ctx context.Context, items []map[string]any) model.BatchResult {
	var res model.BatchResult
	for _, obj := range items {
		reading, err := ParseReading(obj)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				res.AddError(verr.StationCode, verr.Reason)
			} else {
				res.AddError("", err.Error())
			}
			continue
		}
		d.processOne(ctx, reading, &res)
	}
	return res
}

// Process dispatches already-validated readings, e.g. from the kafka source.
func (d *Dispatcher) Process(ctx context.Context, readings []model.SensorReading) model.BatchResult {
	var res model.BatchResult
	for _, reading := range readings {
		d.processOne(ctx, reading, &res)
	}
	return res
}

func (d *Dispatcher) processOne(ctx context.Context, r model.SensorReading, res *model.BatchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res.AddError(r.StationCode, fmt.Sprintf("panic: %v", rec))
		}
	}()

	station, err := d.store.StationByCode(ctx, r.StationCode)
	if err != nil {
		if errors.Is(err, registry.ErrStationNotFound) {
			res.AddError(r.StationCode, errStationNotFound)
		} else {
			res.AddError(r.StationCode, err.Error())
		}
		return
	}

	switch r.Sensor {
	case model.SensorLevel:
		d.handleLevel(ctx, r, station, res)
	case model.SensorOpen:
		d.handleOpen(ctx, r, station, res)
	case model.SensorFlow:
		d.outcome(res, r, model.StatusLogged)
	case model.SensorTemperature:
		d.handleTemperature(ctx, r, station, res)
	}
}

func (d *Dispatcher) handleLevel(ctx context.Context, r model.SensorReading, station *model.StationState, res *model.BatchResult) {
	liters := int64(math.Round(r.Value))
	if err := d.store.UpdateStock(ctx, station.ID, r.Fuel, liters); err != nil {
		res.AddError(r.StationCode, err.Error())
		return
	}

	// Snapshot carries the pre-update values for the three untouched fuels
	// and the new value for the one just written.
	updated := *station
	updated.SetStock(r.Fuel, liters)
	point := model.HistoryPoint{
		StationID:       station.ID,
		Date:            d.historyDate(r),
		StockEssence:    updated.StockEssence,
		StockGasoil:     updated.StockGasoil,
		StockGPL:        updated.StockGPL,
		StockLubrifiant: updated.StockLubrifiant,
	}
	if err := d.store.AppendHistory(ctx, point); err != nil {
		res.AddError(r.StationCode, err.Error())
		return
	}

	if rules.ExceedsCapacity(liters, station.Capacity(r.Fuel)) && d.logger != nil {
		d.logger.Warn("stock above declared capacity",
			"station_code", station.Code,
			"carburant", r.Fuel,
			"stock", liters,
			"capacite", station.Capacity(r.Fuel),
		)
	}

	if sev, ok := rules.StockSeverity(liters, station.Capacity(r.Fuel), d.rules.StockWarnRatio, d.rules.StockCritRatio); ok && d.emitter != nil {
		typ := model.AlertStockWarning
		if sev == model.SeverityCritical {
			typ = model.AlertStockCritical
		}
		msg := fmt.Sprintf("Stock %s bas à %s: %d L", r.Fuel, station.Name, liters)
		if _, err := d.emitter.Emit(ctx, station, typ, sev, msg); err != nil && d.logger != nil {
			d.logger.Warn("stock alert emit error", "err", err, "station_code", station.Code)
		}
	}

	if d.broker != nil {
		d.broker.Publish(feed.Event{Entity: feed.EntityStations, Kind: feed.KindUpdate, Station: &updated})
	}
	d.audit.Record(ctx, audit.Entry{
		Action:      "stock_updated",
		StationID:   station.ID,
		StationCode: station.Code,
		Detail:      fmt.Sprintf("%s=%d", r.Fuel, liters),
	})
	d.outcome(res, r, model.StatusUpdated)
}

func (d *Dispatcher) handleOpen(ctx context.Context, r model.SensorReading, station *model.StationState, res *model.BatchResult) {
	if int(r.Value) != rules.OpenValue {
		// Closed sensor: no result item at all.
		return
	}
	local := d.now().In(d.loc)
	if rules.IsUnauthorizedOpen(local.Hour(), d.rules.OpenHourStart, d.rules.OpenHourEnd, r.Value) {
		msg := fmt.Sprintf("Ouverture non autorisée à %s le %s", station.Name, local.Format("02/01/2006 15:04"))
		if _, err := d.emitter.Emit(ctx, station, model.AlertSecurity, model.SeverityCritical, msg); err != nil {
			res.AddError(r.StationCode, err.Error())
			return
		}
		d.outcome(res, r, model.StatusSecurityAlert)
		return
	}
	d.outcome(res, r, model.StatusLoggedAuthorized)
}

func (d *Dispatcher) handleTemperature(ctx context.Context, r model.SensorReading, station *model.StationState, res *model.BatchResult) {
	if rules.ExceedsTemperatureLimit(r.Value, d.rules.TemperatureLimit) {
		msg := fmt.Sprintf("Température anormale de %.1f°C à %s", r.Value, station.Name)
		if _, err := d.emitter.Emit(ctx, station, model.AlertSecurity, model.SeverityCritical, msg); err != nil {
			res.AddError(r.StationCode, err.Error())
			return
		}
	}
	// The alert is an additional side effect, not a replacement outcome.
	d.outcome(res, r, model.StatusLogged)
}

func (d *Dispatcher) historyDate(r model.SensorReading) string {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}
	return ts.In(d.loc).Format("2006-01-02")
}

func (d *Dispatcher) outcome(res *model.BatchResult, r model.SensorReading, status string) {
	metrics.ObserveReading(string(r.Sensor), status)
	res.AddOutcome(model.ReadingOutcome{
		StationCode: r.StationCode,
		Sensor:      r.Sensor,
		Fuel:        r.Fuel,
		Value:       r.Value,
		Status:      status,
	})
}
