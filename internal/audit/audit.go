// Package audit is a fire-and-forget side channel. A failing audit sink must
// never change an ingestion or synchronization outcome, so Record returns
// nothing and implementations swallow their own errors.
package audit

import (
	"context"
	"log/slog"
	"time"
)

type Entry struct {
	Action      string
	StationID   string
	StationCode string
	Actor       string
	Detail      string
	At          time.Time
}

type Logger interface {
	Record(ctx context.Context, entry Entry)
}

type nop struct{}

func (nop) Record(context.Context, Entry) {}

// Nop returns a logger that discards everything. Used in tests and wherever
// auditing is not configured.
func Nop() Logger { return nop{} }

type slogAudit struct {
	logger *slog.Logger
}

// NewSlog records audit entries on the process log.
func NewSlog(logger *slog.Logger) Logger {
	return &slogAudit{logger: logger}
}

func (a *slogAudit) Record(_ context.Context, entry Entry) {
	if a.logger == nil {
		return
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	a.logger.Info("audit",
		"action", entry.Action,
		"station_id", entry.StationID,
		"station_code", entry.StationCode,
		"actor", entry.Actor,
		"detail", entry.Detail,
		"at", at,
	)
}
