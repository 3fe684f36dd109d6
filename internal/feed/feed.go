// Package feed carries live insert/update/delete notifications for the
// station registry and the alert log. The in-process broker is the
// authoritative fan-out; a kafka mirror extends it across processes.
package feed

import "fuelwatch/internal/model"

type Entity string

const (
	EntityAlerts   Entity = "alertes"
	EntityStations Entity = "stations"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is one change notification. Insert/update carry the new record;
// delete carries only the record id.
type Event struct {
	Entity  Entity              `json:"entity"`
	Kind    Kind                `json:"kind"`
	Alert   *model.Alert        `json:"alerte,omitempty"`
	Station *model.StationState `json:"station,omitempty"`
	ID      string              `json:"id,omitempty"`
}

// RecordID resolves the id of the affected record regardless of event shape.
func (e Event) RecordID() string {
	switch {
	case e.Alert != nil:
		return e.Alert.ID
	case e.Station != nil:
		return e.Station.ID
	}
	return e.ID
}

type Status string

const (
	StatusSubscribed Status = "SUBSCRIBED"
	StatusClosed     Status = "CLOSED"
	StatusError      Status = "CHANNEL_ERROR"
)

// Source is a live event stream for one entity. Close releases the stream
// deterministically; it is safe to call more than once.
type Source interface {
	Events() <-chan Event
	Statuses() <-chan Status
	Close()
}
