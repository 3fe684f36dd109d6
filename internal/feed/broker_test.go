package feed

import (
	"testing"
	"time"

	"fuelwatch/internal/model"
)

func recvEvent(t *testing.T, src Source) Event {
	t.Helper()
	select {
	case ev := <-src.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestBrokerFanOutPerEntity(t *testing.T) {
	b := NewBroker(8)
	defer b.Close()

	alertSub := b.Subscribe(EntityAlerts)
	defer alertSub.Close()
	stationSub := b.Subscribe(EntityStations)
	defer stationSub.Close()

	if st := <-alertSub.Statuses(); st != StatusSubscribed {
		t.Fatalf("expected SUBSCRIBED, got %s", st)
	}

	b.Publish(Event{Entity: EntityAlerts, Kind: KindInsert, Alert: &model.Alert{ID: "a1"}})

	ev := recvEvent(t, alertSub)
	if ev.RecordID() != "a1" || ev.Kind != KindInsert {
		t.Fatalf("unexpected event: %+v", ev)
	}
	select {
	case ev := <-stationSub.Events():
		t.Fatalf("station subscriber got alert event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker(8)
	defer b.Close()

	sub := b.Subscribe(EntityAlerts)
	<-sub.Statuses()
	sub.Close()
	sub.Close() // idempotent

	b.Publish(Event{Entity: EntityAlerts, Kind: KindInsert, Alert: &model.Alert{ID: "a1"}})
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed events channel")
	}
}

func TestBrokerSlowConsumerGetsErrorStatus(t *testing.T) {
	b := NewBroker(1)
	defer b.Close()

	sub := b.Subscribe(EntityAlerts)
	defer sub.Close()
	<-sub.Statuses()

	b.Publish(Event{Entity: EntityAlerts, Kind: KindInsert, Alert: &model.Alert{ID: "a1"}})
	b.Publish(Event{Entity: EntityAlerts, Kind: KindInsert, Alert: &model.Alert{ID: "a2"}})

	select {
	case st := <-sub.Statuses():
		if st != StatusError {
			t.Fatalf("expected CHANNEL_ERROR, got %s", st)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected error status for slow consumer")
	}
}

func TestBrokerCloseClosesSubscriptions(t *testing.T) {
	b := NewBroker(8)
	sub := b.Subscribe(EntityStations)
	<-sub.Statuses()
	b.Close()

	var sawClosed bool
	for st := range sub.Statuses() {
		if st == StatusClosed {
			sawClosed = true
		}
	}
	if !sawClosed {
		t.Fatalf("expected CLOSED status on broker shutdown")
	}
}

func TestEventRecordID(t *testing.T) {
	if id := (Event{Station: &model.StationState{ID: "s1"}}).RecordID(); id != "s1" {
		t.Fatalf("station id: %s", id)
	}
	if id := (Event{Kind: KindDelete, ID: "x"}).RecordID(); id != "x" {
		t.Fatalf("delete id: %s", id)
	}
}
