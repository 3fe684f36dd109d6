package model

import "time"

type FuelKind string

const (
	FuelEssence    FuelKind = "essence"
	FuelGasoil     FuelKind = "gasoil"
	FuelGPL        FuelKind = "gpl"
	FuelLubrifiant FuelKind = "lubrifiants"
)

func ParseFuelKind(s string) (FuelKind, bool) {
	switch FuelKind(s) {
	case FuelEssence, FuelGasoil, FuelGPL, FuelLubrifiant:
		return FuelKind(s), true
	}
	return "", false
}

type SensorKind string

const (
	SensorLevel       SensorKind = "niveau"
	SensorFlow        SensorKind = "debit"
	SensorOpen        SensorKind = "ouverture"
	SensorTemperature SensorKind = "temperature"
)

func ParseSensorKind(s string) (SensorKind, bool) {
	switch SensorKind(s) {
	case SensorLevel, SensorFlow, SensorOpen, SensorTemperature:
		return SensorKind(s), true
	}
	return "", false
}

// StationState is the registry record for one fuel outlet. Stock values are
// liters; stock may transiently exceed capacity on sensor calibration error,
// the pipeline flags it but never rejects it.
type StationState struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"nom"`
	EnterpriseID string `json:"entreprise_id"`

	CapEssence    int64 `json:"capacite_essence"`
	CapGasoil     int64 `json:"capacite_gasoil"`
	CapGPL        int64 `json:"capacite_gpl"`
	CapLubrifiant int64 `json:"capacite_lubrifiants"`

	StockEssence    int64 `json:"stock_essence"`
	StockGasoil     int64 `json:"stock_gasoil"`
	StockGPL        int64 `json:"stock_gpl"`
	StockLubrifiant int64 `json:"stock_lubrifiants"`
}

func (s *StationState) Stock(fuel FuelKind) int64 {
	switch fuel {
	case FuelEssence:
		return s.StockEssence
	case FuelGasoil:
		return s.StockGasoil
	case FuelGPL:
		return s.StockGPL
	case FuelLubrifiant:
		return s.StockLubrifiant
	}
	return 0
}

func (s *StationState) Capacity(fuel FuelKind) int64 {
	switch fuel {
	case FuelEssence:
		return s.CapEssence
	case FuelGasoil:
		return s.CapGasoil
	case FuelGPL:
		return s.CapGPL
	case FuelLubrifiant:
		return s.CapLubrifiant
	}
	return 0
}

func (s *StationState) SetStock(fuel FuelKind, liters int64) {
	switch fuel {
	case FuelEssence:
		s.StockEssence = liters
	case FuelGasoil:
		s.StockGasoil = liters
	case FuelGPL:
		s.StockGPL = liters
	case FuelLubrifiant:
		s.StockLubrifiant = liters
	}
}

// SensorReading is one validated measurement. Ephemeral: consumed by the
// dispatcher, optionally archived as a HistoryPoint.
type SensorReading struct {
	StationCode string     `json:"station_code"`
	Sensor      SensorKind `json:"sensor_type"`
	Fuel        FuelKind   `json:"carburant,omitempty"`
	Value       float64    `json:"valeur"`
	Unit        string     `json:"unite,omitempty"`
	Timestamp   time.Time  `json:"timestamp,omitempty"`
	SensorID    string     `json:"sensor_id,omitempty"`
	Battery     *float64   `json:"batterie,omitempty"`
	Signal      *float64   `json:"signal,omitempty"`
}

// HistoryPoint is an append-only snapshot of all four stock values at a date.
// Multiple points per station/date coexist; consumers reduce by date.
type HistoryPoint struct {
	StationID       string `json:"station_id"`
	Date            string `json:"date"`
	StockEssence    int64  `json:"stock_essence"`
	StockGasoil     int64  `json:"stock_gasoil"`
	StockGPL        int64  `json:"stock_gpl"`
	StockLubrifiant int64  `json:"stock_lubrifiants"`
}

type AlertType string

const (
	AlertSecurity      AlertType = "security"
	AlertStockCritical AlertType = "stock_critique"
	AlertStockWarning  AlertType = "stock_alerte"
	AlertPriceAnomaly  AlertType = "prix_anomalie"
	AlertStationClosed AlertType = "station_fermee"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Alert is created only by the emitter and resolved only by an explicit
// operator action. Never deleted by the pipeline.
type Alert struct {
	ID           string    `json:"id"`
	StationID    string    `json:"station_id"`
	EnterpriseID string    `json:"entreprise_id"`
	Type         AlertType `json:"type"`
	Severity     Severity  `json:"severite"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	Resolved     bool      `json:"resolu"`
	ResolvedBy   string    `json:"resolu_par,omitempty"`
	ResolvedAt   time.Time `json:"resolu_le,omitempty"`
}

// Per-reading outcome statuses.
const (
	StatusUpdated          = "updated"
	StatusSecurityAlert    = "security_alert"
	StatusLoggedAuthorized = "logged_authorized"
	StatusLogged           = "logged"
)

// ReadingOutcome reports one successfully handled reading. Traceability is by
// station code + sensor kind, not input position.
type ReadingOutcome struct {
	StationCode string     `json:"station_code"`
	Sensor      SensorKind `json:"sensor_type"`
	Fuel        FuelKind   `json:"carburant,omitempty"`
	Value       float64    `json:"valeur"`
	Status      string     `json:"status"`
}

type ReadingError struct {
	StationCode string `json:"station_code"`
	Error       string `json:"error"`
}

// BatchResult aggregates a whole ingestion batch. One bad reading never fails
// the batch.
type BatchResult struct {
	Results []ReadingOutcome `json:"results"`
	Errors  []ReadingError   `json:"errors,omitempty"`
}

func (b *BatchResult) AddOutcome(o ReadingOutcome) {
	b.Results = append(b.Results, o)
}

func (b *BatchResult) AddError(stationCode, msg string) {
	b.Errors = append(b.Errors, ReadingError{StationCode: stationCode, Error: msg})
}

func (b *BatchResult) Processed() int {
	return len(b.Results)
}
