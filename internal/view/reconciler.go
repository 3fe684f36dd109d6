// Package view maintains client-side replicas of the alert log and station
// list by folding change-feed events into ordered local collections.
package view

import (
	"sort"
	"strings"
	"sync"

	"fuelwatch/internal/feed"
	"fuelwatch/internal/model"
)

// Filter is the explicit predicate a subscription applies to every event.
// Zero values mean "no constraint".
type Filter struct {
	EnterpriseID   string
	StationID      string
	OnlyUnresolved bool
}

func (f Filter) MatchesAlert(a *model.Alert) bool {
	if a == nil {
		return false
	}
	if f.EnterpriseID != "" && a.EnterpriseID != f.EnterpriseID {
		return false
	}
	if f.StationID != "" && a.StationID != f.StationID {
		return false
	}
	if f.OnlyUnresolved && a.Resolved {
		return false
	}
	return true
}

func (f Filter) MatchesStation(s *model.StationState) bool {
	if s == nil {
		return false
	}
	if f.EnterpriseID != "" && s.EnterpriseID != f.EnterpriseID {
		return false
	}
	if f.StationID != "" && s.ID != f.StationID {
		return false
	}
	return true
}

// Notifier receives exactly one call per distinct alert id per subscription
// lifetime. Presentation severity derives from the alert's severity field.
type Notifier interface {
	Notify(alert model.Alert)
}

type NotifierFunc func(alert model.Alert)

func (f NotifierFunc) Notify(alert model.Alert) { f(alert) }

// Stats are recomputed from the view on demand rather than maintained
// incrementally, so they cannot drift from the entries.
type Stats struct {
	Critical int
	Warning  int
}

// AlertView is the reconciled local alert collection, newest first. The
// notified set belongs to this view instance: reset on reseed, gone when the
// subscription is discarded.
type AlertView struct {
	mu       sync.Mutex
	filter   Filter
	notifier Notifier
	items    []model.Alert
	notified map[string]struct{}
}

func NewAlertView(filter Filter, notifier Notifier) *AlertView {
	return &AlertView{
		filter:   filter,
		notifier: notifier,
		notified: make(map[string]struct{}),
	}
}

// Reseed replaces the whole view with a fresh authoritative fetch and clears
// the notified tracking, so a new session can legitimately notify again.
func (v *AlertView) Reseed(list []model.Alert) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = v.items[:0]
	for _, a := range list {
		if v.filter.MatchesAlert(&a) {
			v.items = append(v.items, a)
		}
	}
	v.notified = make(map[string]struct{})
}

// Apply folds one feed event into the view.
func (v *AlertView) Apply(ev feed.Event) {
	switch ev.Kind {
	case feed.KindInsert:
		v.applyInsert(ev.Alert)
	case feed.KindUpdate:
		v.applyUpdate(ev.Alert)
	case feed.KindDelete:
		v.applyDelete(ev.RecordID())
	}
}

func (v *AlertView) applyInsert(a *model.Alert) {
	if !v.filter.MatchesAlert(a) {
		return
	}
	var pending *model.Alert
	v.mu.Lock()
	if v.indexOf(a.ID) >= 0 {
		// Re-delivery of a known id: idempotent discard.
		v.mu.Unlock()
		return
	}
	v.items = append([]model.Alert{*a}, v.items...)
	if _, seen := v.notified[a.ID]; !seen {
		v.notified[a.ID] = struct{}{}
		pending = a
	}
	v.mu.Unlock()
	if pending != nil && v.notifier != nil {
		v.notifier.Notify(*pending)
	}
}

func (v *AlertView) applyUpdate(a *model.Alert) {
	if a == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.indexOf(a.ID)
	if i < 0 {
		return
	}
	if v.filter.OnlyUnresolved && a.Resolved {
		v.items = append(v.items[:i], v.items[i+1:]...)
		return
	}
	v.items[i] = *a
}

func (v *AlertView) applyDelete(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexOf(id); i >= 0 {
		v.items = append(v.items[:i], v.items[i+1:]...)
	}
}

// indexOf must be called with the lock held.
func (v *AlertView) indexOf(id string) int {
	for i := range v.items {
		if v.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *AlertView) Items() []model.Alert {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.Alert, len(v.items))
	copy(out, v.items)
	return out
}

func (v *AlertView) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	var st Stats
	for i := range v.items {
		switch v.items[i].Severity {
		case model.SeverityCritical:
			st.Critical++
		case model.SeverityWarning:
			st.Warning++
		}
	}
	return st
}

// StationView is the reconciled station list, kept sorted by name.
type StationView struct {
	mu     sync.Mutex
	filter Filter
	items  []model.StationState
}

func NewStationView(filter Filter) *StationView {
	return &StationView{filter: filter}
}

func (v *StationView) Reseed(list []model.StationState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = v.items[:0]
	for _, s := range list {
		if v.filter.MatchesStation(&s) {
			v.items = append(v.items, s)
		}
	}
	v.sortLocked()
}

func (v *StationView) Apply(ev feed.Event) {
	switch ev.Kind {
	case feed.KindInsert:
		if !v.filter.MatchesStation(ev.Station) {
			return
		}
		v.mu.Lock()
		if v.indexOf(ev.Station.ID) < 0 {
			v.items = append(v.items, *ev.Station)
			v.sortLocked()
		}
		v.mu.Unlock()
	case feed.KindUpdate:
		if ev.Station == nil {
			return
		}
		v.mu.Lock()
		if i := v.indexOf(ev.Station.ID); i >= 0 {
			v.items[i] = *ev.Station
			v.sortLocked()
		}
		v.mu.Unlock()
	case feed.KindDelete:
		v.mu.Lock()
		if i := v.indexOf(ev.RecordID()); i >= 0 {
			v.items = append(v.items[:i], v.items[i+1:]...)
		}
		v.mu.Unlock()
	}
}

func (v *StationView) indexOf(id string) int {
	for i := range v.items {
		if v.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *StationView) sortLocked() {
	sort.SliceStable(v.items, func(i, j int) bool {
		return strings.ToLower(v.items[i].Name) < strings.ToLower(v.items[j].Name)
	})
}

func (v *StationView) Items() []model.StationState {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.StationState, len(v.items))
	copy(out, v.items)
	return out
}
