package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fuelwatch/internal/audit"
	"fuelwatch/internal/feed"
	"fuelwatch/internal/metrics"
	"fuelwatch/internal/model"
	"fuelwatch/internal/registry"
)

// Emitter appends alert records. No dedup happens here: repeated qualifying
// readings produce repeated alerts, the operator resolution workflow is the
// dedup point. A safety signal is never dropped to avoid a duplicate.
type Emitter struct {
	store  registry.Store
	recent *Store
	broker *feed.Broker
	audit  audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

func NewEmitter(store registry.Store, recent *Store, broker *feed.Broker, auditLog audit.Logger, logger *slog.Logger) *Emitter {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &Emitter{
		store:  store,
		recent: recent,
		broker: broker,
		audit:  auditLog,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the emitter clock. Tests only.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// Emit persists one alert for an existing station and publishes the insert
// on the change feed. The station must have been resolved by the caller;
// that is the foreign-key guarantee of the pipeline.
func (e *Emitter) Emit(ctx context.Context, station *model.StationState, typ model.AlertType, severity model.Severity, message string) (model.Alert, error) {
	alert := model.Alert{
		ID:           uuid.NewString(),
		StationID:    station.ID,
		EnterpriseID: station.EnterpriseID,
		Type:         typ,
		Severity:     severity,
		Message:      message,
		CreatedAt:    e.now(),
		Resolved:     false,
	}
	if err := e.store.SaveAlert(ctx, alert); err != nil {
		return model.Alert{}, err
	}
	if e.recent != nil {
		e.recent.Add(alert)
	}
	metrics.ObserveAlert(string(typ), string(severity))
	if e.logger != nil {
		e.logger.Warn("alert emitted",
			"alert_id", alert.ID,
			"station_code", station.Code,
			"type", typ,
			"severity", severity,
		)
	}
	if e.broker != nil {
		e.broker.Publish(feed.Event{Entity: feed.EntityAlerts, Kind: feed.KindInsert, Alert: &alert})
	}
	e.audit.Record(ctx, audit.Entry{
		Action:      "alert_emitted",
		StationID:   station.ID,
		StationCode: station.Code,
		Detail:      string(typ) + "/" + string(severity),
		At:          alert.CreatedAt,
	})
	return alert, nil
}
