package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldsched/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	jobs      map[string]model.Job
	jobOrder  []string // insertion order, for cursor pagination
	workers   map[string]model.Worker
	calendars map[string][]model.CalendarEntry // workerID -> entries
	plans     map[string]model.PlanResult
	planOrder []string
	subs      map[string]model.Subscription
	subOrder  []string

	deliveries map[string]*memDelivery
	delOrder   []string
}

func NewMemory() *Memory {
	return &Memory{
		jobs:       map[string]model.Job{},
		workers:    map[string]model.Worker{},
		calendars:  map[string][]model.CalendarEntry{},
		plans:      map[string]model.PlanResult{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	Dead          bool
	DeliveredAt   *time.Time
}

func (m *Memory) UpsertJobs(ctx context.Context, jobs []model.Job) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created, updated := 0, 0
	for _, j := range jobs {
		if j.ID == "" {
			j.ID = uuid.NewString()
		}
		if _, ok := m.jobs[j.ID]; ok {
			updated++
		} else {
			m.jobOrder = append(m.jobOrder, j.ID)
			created++
		}
		m.jobs[j.ID] = j
	}
	return created, updated, nil
}

func (m *Memory) ListJobs(ctx context.Context, status, cursor string, limit int) ([]model.Job, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.jobOrder {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Job{}
	var next string
	for i := start; i < len(m.jobOrder) && len(out) < limit; i++ {
		j := m.jobs[m.jobOrder[i]]
		if status == "" || j.Status == status {
			out = append(out, j)
		}
		next = m.jobOrder[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return j, nil
}

func (m *Memory) DeleteJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	for i, jid := range m.jobOrder {
		if jid == id {
			m.jobOrder = append(m.jobOrder[:i], m.jobOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) UpsertWorker(ctx context.Context, w model.Worker, calendar []model.CalendarEntry) (model.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	m.workers[w.ID] = w
	if calendar != nil {
		for i := range calendar {
			calendar[i].WorkerID = w.ID
		}
		m.calendars[w.ID] = calendar
	}
	return w, nil
}

func (m *Memory) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	sortWorkers(out)
	return out, nil
}

func (m *Memory) GetWorker(ctx context.Context, id string) (model.Worker, []model.CalendarEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return model.Worker{}, nil, ErrNotFound
	}
	return w, m.calendars[id], nil
}

func (m *Memory) Snapshot(ctx context.Context) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snap model.Snapshot
	for _, id := range m.jobOrder {
		snap.Jobs = append(snap.Jobs, m.jobs[id])
	}
	for _, w := range m.workers {
		snap.Workers = append(snap.Workers, w)
	}
	sortWorkers(snap.Workers)
	for _, w := range snap.Workers {
		snap.Calendars = append(snap.Calendars, m.calendars[w.ID]...)
	}
	return snap, nil
}

func (m *Memory) SavePlan(ctx context.Context, res model.PlanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[res.PlanID]; !ok {
		m.planOrder = append(m.planOrder, res.PlanID)
	}
	m.plans[res.PlanID] = res
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (model.PlanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return model.PlanResult{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) LatestPlan(ctx context.Context) (model.PlanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.planOrder) - 1; i >= 0; i-- {
		if p := m.plans[m.planOrder[i]]; !p.Failed {
			return p, nil
		}
	}
	return model.PlanResult{}, ErrNotFound
}

func (m *Memory) ListRoutes(ctx context.Context, date, workerID string) ([]model.WorkerDayRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.WorkerDayRoute{}
	for i := len(m.planOrder) - 1; i >= 0; i-- {
		p := m.plans[m.planOrder[i]]
		if p.Failed {
			continue
		}
		for _, r := range p.Routes {
			if date != "" && r.Date != date {
				continue
			}
			if workerID != "" && r.WorkerID != workerID {
				continue
			}
			out = append(out, r)
		}
		break // routes come from the latest successful plan only
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.NewString(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[sub.ID] = sub
	m.subOrder = append(m.subOrder, sub.ID)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subOrder {
		s := m.subs[id]
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.subOrder {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Subscription{}
	var next string
	for i := start; i < len(m.subOrder) && len(out) < limit; i++ {
		out = append(out, m.subs[m.subOrder[i]])
		next = m.subOrder[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	for i, sid := range m.subOrder {
		if sid == id {
			m.subOrder = append(m.subOrder[:i], m.subOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID:             id,
			SubscriptionID: subscriptionID,
			EventType:      eventType,
			URL:            url,
			Secret:         secret,
			Payload:        payload,
		},
		NextAttemptAt: time.Now(),
	}
	m.delOrder = append(m.delOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.delOrder {
		d := m.deliveries[id]
		if d.Dead || d.DeliveredAt != nil || d.NextAttemptAt.After(now) {
			continue
		}
		d.Attempts++
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.LastError = lastError
	d.ResponseCode = responseCode
	if success {
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Dead = true
	d.LastError = lastError
	d.ResponseCode = responseCode
	return nil
}

func sortWorkers(ws []model.Worker) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
}
