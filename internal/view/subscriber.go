package view

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fuelwatch/internal/feed"
	"fuelwatch/internal/model"
	"fuelwatch/internal/registry"
)

type State string

const (
	StateConnecting State = "connecting"
	StateSubscribed State = "subscribed"
	StateReceiving  State = "receiving"
	StateErrored    State = "errored"
	StateClosed     State = "closed"
)

// AlertSeedFunc fetches the current authoritative alerts for the active filter.
type AlertSeedFunc func(ctx context.Context) ([]model.Alert, error)

// AlertSubscription is one live synchronized alert view. Each subscription
// owns its own view and notified-id tracking; nothing is shared across
// subscriptions even when they ride the same transport.
//
// Feed failure is surfaced through State/Err, never retried silently: the
// consumer decides whether to open a fresh subscription.
type AlertSubscription struct {
	source feed.Source
	view   *AlertView
	seed   AlertSeedFunc
	logger *slog.Logger

	mu    sync.Mutex
	state State
	err   error

	closeOnce sync.Once
	done      chan struct{}
}

// SubscribeAlerts seeds the view from the store and starts consuming the
// feed. The caller must Close the subscription on every exit path.
func SubscribeAlerts(ctx context.Context, source feed.Source, filter Filter, seed AlertSeedFunc, notifier Notifier, logger *slog.Logger) (*AlertSubscription, error) {
	s := &AlertSubscription{
		source: source,
		view:   NewAlertView(filter, notifier),
		seed:   seed,
		logger: logger,
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
	if err := s.Refresh(ctx); err != nil {
		source.Close()
		s.setState(StateErrored, err)
		return nil, err
	}
	s.setState(StateSubscribed, nil)
	go s.run()
	return s, nil
}

// Refresh performs a full reseed from the authoritative store. The notified
// set is cleared as part of the reseed.
func (s *AlertSubscription) Refresh(ctx context.Context) error {
	list, err := s.seed(ctx)
	if err != nil {
		return err
	}
	s.view.Reseed(list)
	return nil
}

func (s *AlertSubscription) run() {
	defer close(s.done)
	events := s.source.Events()
	statuses := s.source.Statuses()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.setState(StateClosed, nil)
				return
			}
			s.setState(StateReceiving, nil)
			s.view.Apply(ev)
		case st, ok := <-statuses:
			if !ok {
				continue
			}
			switch st {
			case feed.StatusError:
				if s.logger != nil {
					s.logger.Warn("alert feed errored")
				}
				s.setState(StateErrored, errFeedChannel)
			case feed.StatusClosed:
				s.setState(StateClosed, nil)
			}
		}
	}
}

func (s *AlertSubscription) setState(st State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed && st != StateClosed {
		return
	}
	// An errored subscription stays errored until closed; receiving events
	// afterwards must not mask the surfaced failure.
	if s.state == StateErrored && st == StateReceiving {
		return
	}
	s.state = st
	if err != nil {
		s.err = err
	}
}

func (s *AlertSubscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *AlertSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *AlertSubscription) View() *AlertView {
	return s.view
}

// Close releases the feed resource. Idempotent; safe on every exit path.
func (s *AlertSubscription) Close() {
	s.closeOnce.Do(func() {
		s.source.Close()
		<-s.done
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
	})
}

// ResolveAndRefresh marks an alert resolved through the store, then reseeds
// the view from the authoritative list instead of waiting on the feed.
func (s *AlertSubscription) ResolveAndRefresh(ctx context.Context, store registry.Store, id, resolvedBy string) error {
	if err := store.ResolveAlert(ctx, id, resolvedBy, time.Now().UTC()); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

type feedChannelError struct{}

func (feedChannelError) Error() string { return "feed channel error" }

var errFeedChannel = feedChannelError{}

// StationSeedFunc fetches the station list for the active filter.
type StationSeedFunc func(ctx context.Context) ([]model.StationState, error)

// StationSubscription mirrors the station list; no notifications.
type StationSubscription struct {
	source feed.Source
	view   *StationView
	seed   StationSeedFunc
	logger *slog.Logger

	mu    sync.Mutex
	state State
	err   error

	closeOnce sync.Once
	done      chan struct{}
}

func SubscribeStations(ctx context.Context, source feed.Source, filter Filter, seed StationSeedFunc, logger *slog.Logger) (*StationSubscription, error) {
	s := &StationSubscription{
		source: source,
		view:   NewStationView(filter),
		seed:   seed,
		logger: logger,
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
	list, err := seed(ctx)
	if err != nil {
		source.Close()
		return nil, err
	}
	s.view.Reseed(list)
	s.state = StateSubscribed
	go s.run()
	return s, nil
}

func (s *StationSubscription) run() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.source.Events():
			if !ok {
				s.setState(StateClosed, nil)
				return
			}
			s.setState(StateReceiving, nil)
			s.view.Apply(ev)
		case st, ok := <-s.source.Statuses():
			if !ok {
				continue
			}
			switch st {
			case feed.StatusError:
				if s.logger != nil {
					s.logger.Warn("station feed errored")
				}
				s.setState(StateErrored, errFeedChannel)
			case feed.StatusClosed:
				s.setState(StateClosed, nil)
			}
		}
	}
}

func (s *StationSubscription) setState(st State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed && st != StateClosed {
		return
	}
	if s.state == StateErrored && st == StateReceiving {
		return
	}
	s.state = st
	if err != nil {
		s.err = err
	}
}

func (s *StationSubscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StationSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StationSubscription) View() *StationView {
	return s.view
}

func (s *StationSubscription) Close() {
	s.closeOnce.Do(func() {
		s.source.Close()
		<-s.done
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
	})
}
