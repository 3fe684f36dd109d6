package registry

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fuelwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:fuelwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			nom TEXT NOT NULL,
			entreprise_id TEXT NOT NULL,
			capacite_essence INTEGER NOT NULL DEFAULT 0,
			capacite_gasoil INTEGER NOT NULL DEFAULT 0,
			capacite_gpl INTEGER NOT NULL DEFAULT 0,
			capacite_lubrifiants INTEGER NOT NULL DEFAULT 0,
			stock_essence INTEGER NOT NULL DEFAULT 0,
			stock_gasoil INTEGER NOT NULL DEFAULT 0,
			stock_gpl INTEGER NOT NULL DEFAULT 0,
			stock_lubrifiants INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stations_entreprise ON stations(entreprise_id)`,
		`CREATE TABLE IF NOT EXISTS historique_stocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id TEXT NOT NULL,
			date TEXT NOT NULL,
			stock_essence INTEGER NOT NULL,
			stock_gasoil INTEGER NOT NULL,
			stock_gpl INTEGER NOT NULL,
			stock_lubrifiants INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_historique_station_date ON historique_stocks(station_id, date)`,
		`CREATE TABLE IF NOT EXISTS alertes (
			id TEXT PRIMARY KEY,
			station_id TEXT NOT NULL,
			entreprise_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severite TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL,
			resolu INTEGER NOT NULL DEFAULT 0,
			resolu_par TEXT,
			resolu_le TEXT
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

const stationColumns = `id, code, nom, entreprise_id,
	capacite_essence, capacite_gasoil, capacite_gpl, capacite_lubrifiants,
	stock_essence, stock_gasoil, stock_gpl, stock_lubrifiants`

func scanStation(row interface{ Scan(...any) error }) (*model.StationState, error) {
	var st model.StationState
	err := row.Scan(
		&st.ID, &st.Code, &st.Name, &st.EnterpriseID,
		&st.CapEssence, &st.CapGasoil, &st.CapGPL, &st.CapLubrifiant,
		&st.StockEssence, &st.StockGasoil, &st.StockGPL, &st.StockLubrifiant,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *sqliteStore) StationByCode(ctx context.Context, code string) (*model.StationState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE code = ?`, code)
	st, err := scanStation(row)
	if err == sql.ErrNoRows {
		return nil, ErrStationNotFound
	}
	return st, err
}

func (s *sqliteStore) ListStations(ctx context.Context, enterpriseID string) ([]model.StationState, error) {
	query := `SELECT ` + stationColumns + ` FROM stations`
	args := []any{}
	if enterpriseID != "" {
		query += ` WHERE entreprise_id = ?`
		args = append(args, enterpriseID)
	}
	query += ` ORDER BY nom COLLATE NOCASE`
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

func (s *sqliteStore) UpdateStock(ctx context.Context, stationID string, fuel model.FuelKind, liters int64) error {
	col, err := stockColumn(fuel)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET `+col+` = ? WHERE id = ?`, liters, stationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStationNotFound
	}
	return nil
}

func (s *sqliteStore) AppendHistory(ctx context.Context, point model.HistoryPoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO historique_stocks (station_id, date, stock_essence, stock_gasoil, stock_gpl, stock_lubrifiants)
		VALUES (?, ?, ?, ?, ?, ?)`,
		point.StationID, point.Date,
		point.StockEssence, point.StockGasoil, point.StockGPL, point.StockLubrifiant,
	)
	return err
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alertes (id, station_id, entreprise_id, type, severite, message, created_at, resolu)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.StationID, alert.EnterpriseID,
		string(alert.Type), string(alert.Severity), alert.Message,
		alert.CreatedAt.UTC().Format(time.RFC3339Nano), boolInt(alert.Resolved),
	)
	return err
}

func (s *sqliteStore) AlertByID(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, station_id, entreprise_id, type, severite, message, created_at, resolu, resolu_par, resolu_le
		FROM alertes WHERE id = ?`, id)
	var a model.Alert
	var typ, sev, created string
	var resolved int
	var resolvedBy, resolvedAt sql.NullString
	err := row.Scan(&a.ID, &a.StationID, &a.EnterpriseID, &typ, &sev, &a.Message, &created, &resolved, &resolvedBy, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Type = model.AlertType(typ)
	a.Severity = model.Severity(sev)
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		a.CreatedAt = ts
	}
	a.Resolved = resolved != 0
	a.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, resolvedAt.String); err == nil {
			a.ResolvedAt = ts
		}
	}
	return &a, nil
}

func (s *sqliteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, station_id, entreprise_id, type, severite, message, created_at, resolu, resolu_par, resolu_le
		FROM alertes`
	var conds []string
	var args []any
	if filter.EnterpriseID != "" {
		conds = append(conds, "entreprise_id = ?")
		args = append(args, filter.EnterpriseID)
	}
	if filter.StationID != "" {
		conds = append(conds, "station_id = ?")
		args = append(args, filter.StationID)
	}
	if filter.OnlyUnresolved {
		conds = append(conds, "resolu = 0")
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Alert, 0)
	for rows.Next() {
		var a model.Alert
		var typ, sev, created string
		var resolved int
		var resolvedBy, resolvedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.StationID, &a.EnterpriseID, &typ, &sev, &a.Message, &created, &resolved, &resolvedBy, &resolvedAt); err != nil {
			return nil, err
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(sev)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			a.CreatedAt = ts
		}
		a.Resolved = resolved != 0
		a.ResolvedBy = resolvedBy.String
		if resolvedAt.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, resolvedAt.String); err == nil {
				a.ResolvedAt = ts
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ResolveAlert(ctx context.Context, id, resolvedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alertes SET resolu = 1, resolu_par = ?, resolu_le = ? WHERE id = ?`,
		resolvedBy, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
