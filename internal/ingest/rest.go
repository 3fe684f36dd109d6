package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"fuelwatch/internal/config"
	"fuelwatch/internal/metrics"
)

// minSensorKeyLength is the only credential rule: shorter keys are rejected
// before any reading is looked at.
const minSensorKeyLength = 8

type RESTServer struct {
	cfg        *config.Manager
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, dispatcher *Dispatcher, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, dispatcher: dispatcher, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", server.handleIngest)
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

type ingestRequest struct {
	SensorKey string           `json:"sensor_key"`
	Data      []map[string]any `json:"data"`
}

func (s *RESTServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.ObserveBatch("malformed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	key := r.Header.Get("x-sensor-key")
	if key == "" {
		key = req.SensorKey
	}
	if len(key) < minSensorKeyLength {
		metrics.ObserveBatch("unauthorized")
		if s.logger != nil {
			s.logger.Warn("rejected ingest batch: invalid sensor key")
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid sensor key"})
		return
	}

	res := s.dispatcher.ProcessRaw(r.Context(), req.Data)
	metrics.ObserveBatch("accepted")
	if s.logger != nil {
		s.logger.Info("ingest batch processed",
			"processed", res.Processed(),
			"errors", len(res.Errors),
		)
	}

	payload := map[string]any{
		"success":   true,
		"processed": res.Processed(),
		"results":   res.Results,
	}
	if len(res.Errors) > 0 {
		payload["errors"] = res.Errors
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, x-sensor-key")
	h.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
