// Package registry fronts the authoritative station store. The pipeline
// reads stations, updates single stock fields, appends history and alerts;
// it never creates or deletes stations.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"fuelwatch/internal/config"
	"fuelwatch/internal/model"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrUnknownFuel     = errors.New("unknown fuel kind")
)

// AlertFilter narrows ListAlerts. Zero values mean "no constraint".
type AlertFilter struct {
	EnterpriseID   string
	StationID      string
	OnlyUnresolved bool
	Limit          int
}

type Store interface {
	Init(ctx context.Context) error
	Close() error

	StationByCode(ctx context.Context, code string) (*model.StationState, error)
	ListStations(ctx context.Context, enterpriseID string) ([]model.StationState, error)
	// UpdateStock writes one fuel field of one station row. The single-row
	// UPDATE is the per-station serialization point; last writer wins.
	UpdateStock(ctx context.Context, stationID string, fuel model.FuelKind, liters int64) error

	AppendHistory(ctx context.Context, point model.HistoryPoint) error

	SaveAlert(ctx context.Context, alert model.Alert) error
	AlertByID(ctx context.Context, id string) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	ResolveAlert(ctx context.Context, id, resolvedBy string, at time.Time) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// stockColumn maps a fuel kind to its stations column. Explicit switch so a
// new fuel kind fails here instead of producing a bad query.
func stockColumn(fuel model.FuelKind) (string, error) {
	switch fuel {
	case model.FuelEssence:
		return "stock_essence", nil
	case model.FuelGasoil:
		return "stock_gasoil", nil
	case model.FuelGPL:
		return "stock_gpl", nil
	case model.FuelLubrifiant:
		return "stock_lubrifiants", nil
	}
	return "", ErrUnknownFuel
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
