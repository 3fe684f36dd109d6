package alerts

import (
	"context"
	"testing"
	"time"

	"fuelwatch/internal/feed"
	"fuelwatch/internal/model"
	"fuelwatch/internal/registry"
)

func TestEmitPersistsAndPublishes(t *testing.T) {
	store := registry.NewMemory()
	broker := feed.NewBroker(8)
	defer broker.Close()
	sub := broker.Subscribe(feed.EntityAlerts)
	defer sub.Close()

	station := &model.StationState{ID: "st-1", Code: "CON-001", Name: "Centre", EnterpriseID: "ent-1"}
	em := NewEmitter(store, NewStore(10), broker, nil, nil)

	alert, err := em.Emit(context.Background(), station, model.AlertSecurity, model.SeverityCritical, "ouverture non autorisée")
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if alert.ID == "" || alert.Resolved {
		t.Fatalf("bad alert: %+v", alert)
	}
	if alert.StationID != "st-1" || alert.EnterpriseID != "ent-1" {
		t.Fatalf("alert must reference station and enterprise: %+v", alert)
	}

	saved, err := store.ListAlerts(context.Background(), registry.AlertFilter{})
	if err != nil || len(saved) != 1 {
		t.Fatalf("expected one persisted alert, got %d (%v)", len(saved), err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != feed.KindInsert || ev.Alert == nil || ev.Alert.ID != alert.ID {
			t.Fatalf("unexpected feed event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no feed event published")
	}
}

func TestEmitNeverDeduplicates(t *testing.T) {
	store := registry.NewMemory()
	station := &model.StationState{ID: "st-1", Code: "CON-001", EnterpriseID: "ent-1"}
	em := NewEmitter(store, nil, nil, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := em.Emit(context.Background(), station, model.AlertSecurity, model.SeverityCritical, "température élevée"); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	saved, _ := store.ListAlerts(context.Background(), registry.AlertFilter{})
	if len(saved) != 3 {
		t.Fatalf("repeated signals must produce repeated alerts, got %d", len(saved))
	}
}

func TestStoreRingEviction(t *testing.T) {
	s := NewStore(2)
	for _, id := range []string{"a", "b", "c"} {
		s.Add(model.Alert{ID: id})
	}
	list := s.List(0)
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "c" {
		t.Fatalf("unexpected ring contents: %+v", list)
	}
}
