package refresh

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gps-fleet-backend/config"
	"gps-fleet-backend/internal/derive"
	"gps-fleet-backend/internal/gpsbuddy"
	"gps-fleet-backend/internal/notification"
	"gps-fleet-backend/internal/store"
)

// ErrInFlight is returned when a cycle is skipped because its previous
// invocation has not finished yet.
var ErrInFlight = errors.New("previous cycle still in flight")

// Fetcher pulls the current fleet snapshot from the upstream API.
type Fetcher interface {
	FetchLiveVehicles(ctx context.Context) (*gpsbuddy.FetchResult, error)
}

// Result reports what one full refresh cycle did.
type Result struct {
	Meta      gpsbuddy.FetchMeta `json:"meta"`
	Persisted store.UpsertResult `json:"persisted"`
	Alerts    int                `json:"alerts"`
}

// Service runs the fetch-persist-signal pipeline on two independent
// cadences: a full history-saving refresh on a minutes scale and a lighter
// speed-only check on a seconds scale.
type Service struct {
	cfg     *config.Config
	fetcher Fetcher
	store   store.Store
	monitor *derive.Monitor
	pool    *notification.WorkerPool

	refreshMu sync.Mutex
	speedMu   sync.Mutex
}

// NewService creates the refresh orchestrator.
func NewService(cfg *config.Config, fetcher Fetcher, st store.Store, monitor *derive.Monitor, pool *notification.WorkerPool) *Service {
	return &Service{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		monitor: monitor,
		pool:    pool,
	}
}

// RefreshOnce runs one full cycle: fetch, persist last state plus history in
// one transaction, run the speed check, dispatch alerts, prune retention.
// A cycle that fails to persist reports the failure, never silent success.
func (s *Service) RefreshOnce(ctx context.Context) (*Result, error) {
	if !s.refreshMu.TryLock() {
		return nil, ErrInFlight
	}
	defer s.refreshMu.Unlock()

	res, err := s.fetcher.FetchLiveVehicles(ctx)
	if err != nil {
		return nil, err
	}

	persisted, err := s.store.UpsertLastAndHistory(ctx, res.Vehicles)
	if err != nil {
		return nil, err
	}

	alerts := s.dispatchAlerts(res.Vehicles)

	if deleted, err := s.store.DeleteHistoryOlderThan(ctx, s.cfg.Refresh.RetentionDays); err != nil {
		log.Printf("Error pruning history: %v", err)
	} else if deleted > 0 {
		log.Printf("Pruned %d history rows older than %d days", deleted, s.cfg.Refresh.RetentionDays)
	}

	return &Result{Meta: res.Meta, Persisted: persisted, Alerts: alerts}, nil
}

// CheckSpeedOnly fetches and runs only the speed check, intentionally
// skipping persistence, so it can run on a tight cadence without inflating
// the history table.
func (s *Service) CheckSpeedOnly(ctx context.Context) (int, error) {
	if !s.speedMu.TryLock() {
		return 0, ErrInFlight
	}
	defer s.speedMu.Unlock()

	res, err := s.fetcher.FetchLiveVehicles(ctx)
	if err != nil {
		return 0, err
	}
	return s.dispatchAlerts(res.Vehicles), nil
}

func (s *Service) dispatchAlerts(vehicles []gpsbuddy.VehicleTelemetry) int {
	alerts := s.monitor.Check(vehicles)
	for _, alert := range alerts {
		s.pool.Dispatch(alert)
	}
	return len(alerts)
}

// Run starts the notification workers and both polling loops, blocking
// until the context is cancelled. Each loop skips a tick when its previous
// cycle is still in flight.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Refresh.Enabled {
		log.Println("Refresh is disabled. Not starting.")
		return
	}
	log.Println("Starting refresh service...")

	s.pool.Start(ctx)

	go s.runSpeedLoop(ctx)

	s.runRefresh(ctx)

	timer := time.NewTimer(s.cfg.Refresh.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Refresh service shutting down.")
			return
		case <-timer.C:
			s.runRefresh(ctx)
			timer.Reset(s.cfg.Refresh.Interval)
		}
	}
}

func (s *Service) runRefresh(ctx context.Context) {
	result, err := s.RefreshOnce(ctx)
	switch {
	case errors.Is(err, ErrInFlight):
		log.Println("Skipping refresh cycle: previous cycle still running.")
	case err != nil:
		log.Printf("Refresh cycle failed: %v", err)
	default:
		log.Printf("Refresh cycle finished via %s: %d vehicles, %d history rows, %d alerts",
			result.Meta.FunctionName, result.Persisted.Updated, result.Persisted.HistoryInserted, result.Alerts)
	}
}

func (s *Service) runSpeedLoop(ctx context.Context) {
	timer := time.NewTimer(s.cfg.Refresh.SpeedInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.CheckSpeedOnly(ctx); err != nil && !errors.Is(err, ErrInFlight) {
				log.Printf("Speed check failed: %v", err)
			}
			timer.Reset(s.cfg.Refresh.SpeedInterval)
		}
	}
}
