// Package api exposes the operator surface: station and alert queries, the
// resolution workflow and a live event stream over SSE.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fuelwatch/internal/alerts"
	"fuelwatch/internal/audit"
	"fuelwatch/internal/config"
	"fuelwatch/internal/feed"
	"fuelwatch/internal/model"
	"fuelwatch/internal/registry"
)

type Server struct {
	cfg     *config.Manager
	store   registry.Store
	recent  *alerts.Store
	broker  *feed.Broker
	audit   audit.Logger
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string        `json:"status"`
	Time       string        `json:"time"`
	Version    string        `json:"version"`
	ConfigPath string        `json:"config_path"`
	Ingest     ingestStatus  `json:"ingest"`
	API        apiStatus     `json:"api"`
	Storage    storageStatus `json:"storage"`
	Feed       feedStatus    `json:"feed"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type storageStatus struct {
	Driver string `json:"driver"`
}

type feedStatus struct {
	Buffer int  `json:"buffer"`
	Kafka  bool `json:"kafka"`
}

func Start(ctx context.Context, cfg *config.Manager, store registry.Store, recent *alerts.Store, broker *feed.Broker, auditLog audit.Logger, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	server := &Server{
		cfg:     cfg,
		store:   store,
		recent:  recent,
		broker:  broker,
		audit:   auditLog,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/stations", server.handleStations)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/alerts/resolve", server.handleResolve)
	mux.HandleFunc("/feed", server.handleFeed)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		API:     apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Storage: storageStatus{Driver: cfg.Storage.Driver},
		Feed:    feedStatus{Buffer: cfg.Feed.Buffer, Kafka: cfg.Feed.Kafka.Enabled},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list, err := s.store.ListStations(r.Context(), r.URL.Query().Get("entreprise_id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stations": list,
		"count":    len(list),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	// "since" serves the in-memory hot window; everything else hits the
	// registry.
	if sinceStr := q.Get("since"); sinceStr != "" {
		if s.recent == nil {
			writeJSON(w, http.StatusOK, map[string]any{"alerts": []model.Alert{}, "count": 0})
			return
		}
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list := s.recent.Since(ts)
		writeJSON(w, http.StatusOK, map[string]any{"alerts": list, "count": len(list)})
		return
	}

	filter := registry.AlertFilter{
		EnterpriseID: q.Get("entreprise_id"),
		StationID:    q.Get("station_id"),
	}
	if v := q.Get("unresolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		filter.OnlyUnresolved = b
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	list, err := s.store.ListAlerts(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

type resolveRequest struct {
	ID         string `json:"id"`
	ResolvedBy string `json:"resolved_by"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req resolveRequest
	if err := json.Unmarshal(body, &req); err != nil || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	if err := s.store.ResolveAlert(r.Context(), req.ID, req.ResolvedBy, now); err != nil {
		if errors.Is(err, registry.ErrAlertNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	resolved, err := s.store.AlertByID(r.Context(), req.ID)
	if err == nil && s.broker != nil {
		s.broker.Publish(feed.Event{Entity: feed.EntityAlerts, Kind: feed.KindUpdate, Alert: resolved})
	}
	s.audit.Record(r.Context(), audit.Entry{
		Action:    "alert_resolved",
		StationID: stationOf(resolved),
		Actor:     req.ResolvedBy,
		Detail:    req.ID,
		At:        now,
	})
	if s.logger != nil {
		s.logger.Info("alert resolved", "alert_id", req.ID, "resolved_by", req.ResolvedBy)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func stationOf(a *model.Alert) string {
	if a == nil {
		return ""
	}
	return a.StationID
}

// handleFeed bridges the change feed onto SSE. One subscription per request;
// the client picks the entity with ?entity=alertes|stations.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.broker == nil {
		http.Error(w, "feed not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	entity := feed.Entity(r.URL.Query().Get("entity"))
	switch entity {
	case "":
		entity = feed.EntityAlerts
	case feed.EntityAlerts, feed.EntityStations:
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	src := s.broker.Subscribe(entity)
	defer src.Close()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: change\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case st, ok := <-src.Statuses():
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: status\ndata: \"" + string(st) + "\"\n\n"))
			flusher.Flush()
			if st == feed.StatusClosed {
				return
			}
		case <-done:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
