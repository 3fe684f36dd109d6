// fuelwatch-monitor keeps a live terminal view of the alert log: it seeds
// from the operator API, then follows the kafka change feed and prints one
// notification per new alert.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fuelwatch/internal/config"
	"fuelwatch/internal/feed"
	"fuelwatch/internal/logging"
	"fuelwatch/internal/model"
	"fuelwatch/internal/view"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fuelwatch-monitor:", err)
		os.Exit(1)
	}
}

func run() error {
	apiBase := flag.String("api", "http://localhost:8081", "operator api base url")
	brokers := flag.String("brokers", "localhost:9092", "kafka brokers, comma separated")
	topic := flag.String("topic", "fuelwatch.feed", "feed topic")
	group := flag.String("group", "", "kafka consumer group (empty for standalone)")
	enterpriseID := flag.String("entreprise", "", "limit to one enterprise")
	stationID := flag.String("station", "", "limit to one station id")
	unresolved := flag.Bool("unresolved", false, "only unresolved alerts")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	_ = godotenv.Load()
	logger := logging.NewLogger(*logLevel)

	filter := view.Filter{
		EnterpriseID:   *enterpriseID,
		StationID:      *stationID,
		OnlyUnresolved: *unresolved,
	}

	seed := func(ctx context.Context) ([]model.Alert, error) {
		return fetchAlerts(ctx, *apiBase, filter)
	}
	notifier := view.NotifierFunc(func(a model.Alert) {
		fmt.Printf("[%s] %s %s: %s\n",
			a.CreatedAt.Local().Format("15:04:05"), strings.ToUpper(string(a.Severity)), a.Type, a.Message)
	})

	source := feed.NewKafkaSource(config.FeedKafkaConfig{
		Brokers: strings.Split(*brokers, ","),
		Topic:   *topic,
		GroupID: *group,
	}, feed.EntityAlerts, logger)

	ctx := context.Background()
	sub, err := view.SubscribeAlerts(ctx, source, filter, seed, notifier, logger)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	items := sub.View().Items()
	stats := sub.View().Stats()
	fmt.Printf("%d alerts (%d critical, %d warning)\n", len(items), stats.Critical, stats.Warning)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			return nil
		case <-ticker.C:
			if sub.State() == view.StateErrored {
				return fmt.Errorf("feed lost: %w", sub.Err())
			}
		}
	}
}

func fetchAlerts(ctx context.Context, base string, filter view.Filter) ([]model.Alert, error) {
	q := url.Values{}
	if filter.EnterpriseID != "" {
		q.Set("entreprise_id", filter.EnterpriseID)
	}
	if filter.StationID != "" {
		q.Set("station_id", filter.StationID)
	}
	if filter.OnlyUnresolved {
		q.Set("unresolved", "true")
	}
	u := strings.TrimRight(base, "/") + "/alerts"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alert seed: %s", resp.Status)
	}
	var payload struct {
		Alerts []model.Alert `json:"alerts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Alerts, nil
}
