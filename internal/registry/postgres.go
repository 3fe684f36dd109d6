package registry

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fuelwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/fuelwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			nom TEXT NOT NULL,
			entreprise_id TEXT NOT NULL,
			capacite_essence BIGINT NOT NULL DEFAULT 0,
			capacite_gasoil BIGINT NOT NULL DEFAULT 0,
			capacite_gpl BIGINT NOT NULL DEFAULT 0,
			capacite_lubrifiants BIGINT NOT NULL DEFAULT 0,
			stock_essence BIGINT NOT NULL DEFAULT 0,
			stock_gasoil BIGINT NOT NULL DEFAULT 0,
			stock_gpl BIGINT NOT NULL DEFAULT 0,
			stock_lubrifiants BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stations_entreprise ON stations(entreprise_id)`,
		`CREATE TABLE IF NOT EXISTS historique_stocks (
			id BIGSERIAL PRIMARY KEY,
			station_id TEXT NOT NULL,
			date DATE NOT NULL,
			stock_essence BIGINT NOT NULL,
			stock_gasoil BIGINT NOT NULL,
			stock_gpl BIGINT NOT NULL,
			stock_lubrifiants BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_historique_station_date ON historique_stocks(station_id, date)`,
		`CREATE TABLE IF NOT EXISTS alertes (
			id TEXT PRIMARY KEY,
			station_id TEXT NOT NULL,
			entreprise_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severite TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			resolu BOOLEAN NOT NULL DEFAULT FALSE,
			resolu_par TEXT,
			resolu_le TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alertes_created ON alertes(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) StationByCode(ctx context.Context, code string) (*model.StationState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE code = $1`, code)
	st, err := scanStation(row)
	if err == sql.ErrNoRows {
		return nil, ErrStationNotFound
	}
	return st, err
}

func (s *postgresStore) ListStations(ctx context.Context, enterpriseID string) ([]model.StationState, error) {
	query := `SELECT ` + stationColumns + ` FROM stations`
	args := []any{}
	if enterpriseID != "" {
		query += ` WHERE entreprise_id = $1`
		args = append(args, enterpriseID)
	}
	query += ` ORDER BY LOWER(nom)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.StationState, 0)
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *postgresStore) UpdateStock(ctx context.Context, stationID string, fuel model.FuelKind, liters int64) error {
	col, err := stockColumn(fuel)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET `+col+` = $1 WHERE id = $2`, liters, stationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStationNotFound
	}
	return nil
}

func (s *postgresStore) AppendHistory(ctx context.Context, point model.HistoryPoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO historique_stocks (station_id, date, stock_essence, stock_gasoil, stock_gpl, stock_lubrifiants)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		point.StationID, point.Date,
		point.StockEssence, point.StockGasoil, point.StockGPL, point.StockLubrifiant,
	)
	return err
}

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alertes (id, station_id, entreprise_id, type, severite, message, created_at, resolu)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		alert.ID, alert.StationID, alert.EnterpriseID,
		string(alert.Type), string(alert.Severity), alert.Message,
		alert.CreatedAt.UTC(), alert.Resolved,
	)
	return err
}

func (s *postgresStore) AlertByID(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, station_id, entreprise_id, type, severite, message, created_at, resolu, resolu_par, resolu_le
		FROM alertes WHERE id = $1`, id)
	var a model.Alert
	var typ, sev string
	var resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.StationID, &a.EnterpriseID, &typ, &sev, &a.Message, &a.CreatedAt, &a.Resolved, &resolvedBy, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Type = model.AlertType(typ)
	a.Severity = model.Severity(sev)
	a.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		a.ResolvedAt = resolvedAt.Time
	}
	return &a, nil
}

func (s *postgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, station_id, entreprise_id, type, severite, message, created_at, resolu, resolu_par, resolu_le
		FROM alertes`
	var conds []string
	var args []any
	if filter.EnterpriseID != "" {
		args = append(args, filter.EnterpriseID)
		conds = append(conds, "entreprise_id = $"+strconv.Itoa(len(args)))
	}
	if filter.StationID != "" {
		args = append(args, filter.StationID)
		conds = append(conds, "station_id = $"+strconv.Itoa(len(args)))
	}
	if filter.OnlyUnresolved {
		conds = append(conds, "resolu = FALSE")
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Alert, 0)
	for rows.Next() {
		var a model.Alert
		var typ, sev string
		var resolvedBy sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.StationID, &a.EnterpriseID, &typ, &sev, &a.Message, &a.CreatedAt, &a.Resolved, &resolvedBy, &resolvedAt); err != nil {
			return nil, err
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(sev)
		a.ResolvedBy = resolvedBy.String
		if resolvedAt.Valid {
			a.ResolvedAt = resolvedAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *postgresStore) ResolveAlert(ctx context.Context, id, resolvedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alertes SET resolu = TRUE, resolu_par = $1, resolu_le = $2 WHERE id = $3`,
		resolvedBy, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}
