package store

import (
	"context"
	"errors"
	"time"

	"fieldsched/internal/model"
)

// Store is the persistence interface used by the API server and the
// planning loop.
type Store interface {
	// Jobs
	UpsertJobs(ctx context.Context, jobs []model.Job) (created, updated int, err error)
	ListJobs(ctx context.Context, status, cursor string, limit int) (items []model.Job, nextCursor string, err error)
	GetJob(ctx context.Context, id string) (model.Job, error)
	DeleteJob(ctx context.Context, id string) error

	// Workers and calendars
	UpsertWorker(ctx context.Context, w model.Worker, calendar []model.CalendarEntry) (model.Worker, error)
	ListWorkers(ctx context.Context) ([]model.Worker, error)
	GetWorker(ctx context.Context, id string) (model.Worker, []model.CalendarEntry, error)

	// Snapshot collects the full planning input in one call.
	Snapshot(ctx context.Context) (model.Snapshot, error)

	// Plans and routes
	SavePlan(ctx context.Context, res model.PlanResult) error
	GetPlan(ctx context.Context, id string) (model.PlanResult, error)
	LatestPlan(ctx context.Context) (model.PlanResult, error)
	ListRoutes(ctx context.Context, date, workerID string) ([]model.WorkerDayRoute, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook delivery queue
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error
}

var ErrNotFound = errors.New("not found")

// WebhookDelivery is one queued delivery attempt handed to the worker.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Attempts       int
}
