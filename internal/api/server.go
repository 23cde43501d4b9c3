package api

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"fieldsched/internal/auth"
	"fieldsched/internal/config"
	"fieldsched/internal/geo"
	"fieldsched/internal/guard"
	"fieldsched/internal/model"
	"fieldsched/internal/sched"
	"fieldsched/internal/store"
	"fieldsched/internal/trigger"
	"fieldsched/internal/webhooks"
)

// ErrPassInProgress is returned when a pass is requested while another
// one holds the lock.
var ErrPassInProgress = errors.New("an optimization pass is already running")

type Server struct {
	Store    store.Store
	Engine   *sched.Engine
	Lock     guard.PassLock
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Debounce *trigger.Debouncer

	passBudget  time.Duration
	maxAttempts int
}

// NewServer wires storage, providers, the engine, and the pass guard
// from configuration. With no DATABASE_URL the in-memory store is used;
// with no REDIS_URL all coordination stays in-process.
func NewServer(cfg config.Config) (*Server, error) {
	var st store.Store
	if cfg.DatabaseURL == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		st = sp
	}

	var lock guard.PassLock
	var broker EventBroker
	var cache geo.TravelCache
	if cfg.RedisURL != "" {
		rl, err := guard.NewRedisLock(cfg.RedisURL, cfg.PassLockTTL)
		if err != nil {
			return nil, err
		}
		lock = rl
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		broker = rb
		rc, err := geo.NewRedisTravelCache(cfg.RedisURL, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		cache = rc
	} else {
		lock = guard.NewMemoryLock(cfg.PassLockTTL)
		broker = NewBroker()
		cache = geo.NewMemoryTravelCache()
	}

	var rp geo.RouteProvider
	if cfg.RoutingURL != "" {
		rp = geo.NewOSRMProvider(cfg.RoutingURL)
	}
	est := geo.NewEstimator(rp, cache, cfg.ProviderRPS, cfg.ProviderBurst, cfg.ProviderConcurrency)

	var gp geo.GeocodeProvider
	if cfg.GeocoderURL != "" {
		gp = geo.NewDAWAProvider(cfg.GeocoderURL)
	}
	gc := geo.NewGeocoder(gp, cfg.FallbackDepot, cfg.ProviderRPS, cfg.ProviderBurst)

	engine := sched.NewEngine(gc, est, sched.Options{
		Weights:            cfg.Weights,
		BufferMin:          cfg.BufferMin,
		MinViableMin:       cfg.MinViableMin,
		BaselineHourlyRate: cfg.BaselineHourlyRate,
		GeocodeConcurrency: cfg.ProviderConcurrency,
	})

	s := &Server{
		Store:       st,
		Engine:      engine,
		Lock:        lock,
		Pub:         webhooks.NewPublisher(st),
		Auth:        auth.NewVerifierFromEnv(),
		Broker:      broker,
		passBudget:  cfg.PassTimeBudget,
		maxAttempts: cfg.WebhookMaxAttempts,
	}
	s.Debounce = trigger.NewDebouncer(cfg.DebounceQuiet, s.debouncedPass)
	return s, nil
}

// RunPass executes one optimization pass under the guard. It returns
// ErrPassInProgress when the lock is held.
func (s *Server) RunPass(ctx context.Context, req model.PlanRequest) (model.PlanResult, error) {
	ok, err := s.Lock.Acquire(ctx)
	if err != nil {
		return model.PlanResult{}, err
	}
	if !ok {
		return model.PlanResult{}, ErrPassInProgress
	}
	defer func() { _ = s.Lock.Release(context.Background()) }()

	if s.passBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.passBudget)
		defer cancel()
	}
	if req.HorizonStart == "" {
		req.HorizonStart = time.Now().Format("2006-01-02")
	}

	s.Broker.Publish(planTopic, PlanEvent{Type: "plan.started"})
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		return model.PlanResult{}, err
	}
	res := s.Engine.Run(ctx, snap, req)
	if err := s.Store.SavePlan(ctx, res); err != nil {
		return model.PlanResult{}, err
	}

	if res.Failed {
		s.Broker.Publish(planTopic, PlanEvent{Type: webhooks.EventPlanFailed, Data: map[string]any{"planId": res.PlanID, "error": res.Error}})
		s.Pub.Emit(ctx, webhooks.EventPlanFailed, map[string]any{"planId": res.PlanID, "error": res.Error})
	} else {
		data := map[string]any{"planId": res.PlanID, "routes": res.Totals.Routes, "jobsPlaced": res.Totals.JobsPlaced, "unplaced": len(res.Unplaced)}
		s.Broker.Publish(planTopic, PlanEvent{Type: webhooks.EventPlanCompleted, Data: data})
		s.Pub.Emit(ctx, webhooks.EventPlanCompleted, data)
	}
	return res, nil
}

// debouncedPass runs a default-horizon pass after change notifications
// settle. A pass already in flight simply absorbs the trigger.
func (s *Server) debouncedPass() {
	_, err := s.RunPass(context.Background(), model.PlanRequest{})
	if err != nil && !errors.Is(err, ErrPassInProgress) {
		log.Printf("debounced pass failed: %v", err)
	}
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.maxAttempts)
}
