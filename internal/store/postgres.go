package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldsched/internal/model"
)

// Postgres persists planning state. Structured job/worker fields live in
// columns used for filtering; nested payloads (locations, routes) are
// stored as JSONB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) UpsertJobs(ctx context.Context, jobs []model.Job) (int, int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created, updated := 0, 0
	for _, j := range jobs {
		if j.ID == "" {
			j.ID = uuid.NewString()
		}
		var inserted bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO jobs (id, status, scheduled_date, doc)
			VALUES ($1, $2, NULLIF($3,''), $4)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				scheduled_date = EXCLUDED.scheduled_date,
				doc = EXCLUDED.doc,
				updated_at = now()
			RETURNING (xmax = 0)`, j.ID, j.Status, j.ScheduledDate, toJSON(j)).Scan(&inserted)
		if err != nil {
			return 0, 0, err
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

func (p *Postgres) ListJobs(ctx context.Context, status, cursor string, limit int) ([]model.Job, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, doc FROM jobs
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id > $2)
		ORDER BY id LIMIT $3`, status, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := []model.Job{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, "", err
		}
		var j model.Job
		if err := json.Unmarshal(doc, &j); err != nil {
			return nil, "", err
		}
		out = append(out, j)
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetJob(ctx context.Context, id string) (model.Job, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM jobs WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, err
	}
	var j model.Job
	return j, json.Unmarshal(doc, &j)
}

func (p *Postgres) DeleteJob(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertWorker(ctx context.Context, w model.Worker, calendar []model.CalendarEntry) (model.Worker, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Worker{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workers (id, active, doc) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active, doc = EXCLUDED.doc`,
		w.ID, w.Active, toJSON(w))
	if err != nil {
		return model.Worker{}, err
	}
	if calendar != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM worker_calendars WHERE worker_id=$1`, w.ID); err != nil {
			return model.Worker{}, err
		}
		for _, c := range calendar {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO worker_calendars (worker_id, weekday, start_time, end_time, is_working_day)
				VALUES ($1, $2, $3, $4, $5)`,
				w.ID, c.Weekday, c.StartTime, c.EndTime, c.IsWorkingDay)
			if err != nil {
				return model.Worker{}, err
			}
		}
	}
	return w, tx.Commit()
}

func (p *Postgres) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT doc FROM workers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Worker{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var w model.Worker
		if err := json.Unmarshal(doc, &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) GetWorker(ctx context.Context, id string) (model.Worker, []model.CalendarEntry, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM workers WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Worker{}, nil, ErrNotFound
	}
	if err != nil {
		return model.Worker{}, nil, err
	}
	var w model.Worker
	if err := json.Unmarshal(doc, &w); err != nil {
		return model.Worker{}, nil, err
	}
	cal, err := p.workerCalendar(ctx, id)
	return w, cal, err
}

func (p *Postgres) workerCalendar(ctx context.Context, workerID string) ([]model.CalendarEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT worker_id, weekday, start_time, end_time, is_working_day
		FROM worker_calendars WHERE worker_id=$1 ORDER BY weekday`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CalendarEntry{}
	for rows.Next() {
		var c model.CalendarEntry
		if err := rows.Scan(&c.WorkerID, &c.Weekday, &c.StartTime, &c.EndTime, &c.IsWorkingDay); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	jobs, _, err := p.ListJobs(ctx, "", "", 1<<20)
	if err != nil {
		return snap, err
	}
	snap.Jobs = jobs
	workers, err := p.ListWorkers(ctx)
	if err != nil {
		return snap, err
	}
	snap.Workers = workers
	for _, w := range workers {
		cal, err := p.workerCalendar(ctx, w.ID)
		if err != nil {
			return snap, err
		}
		snap.Calendars = append(snap.Calendars, cal...)
	}
	return snap, nil
}

func (p *Postgres) SavePlan(ctx context.Context, res model.PlanResult) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO plans (id, failed, doc) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET failed = EXCLUDED.failed, doc = EXCLUDED.doc`,
		res.PlanID, res.Failed, toJSON(res))
	return err
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (model.PlanResult, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM plans WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanResult{}, ErrNotFound
	}
	if err != nil {
		return model.PlanResult{}, err
	}
	var res model.PlanResult
	return res, json.Unmarshal(doc, &res)
}

func (p *Postgres) LatestPlan(ctx context.Context) (model.PlanResult, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT doc FROM plans WHERE NOT failed ORDER BY created_at DESC LIMIT 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanResult{}, ErrNotFound
	}
	if err != nil {
		return model.PlanResult{}, err
	}
	var res model.PlanResult
	return res, json.Unmarshal(doc, &res)
}

func (p *Postgres) ListRoutes(ctx context.Context, date, workerID string) ([]model.WorkerDayRoute, error) {
	latest, err := p.LatestPlan(ctx)
	if errors.Is(err, ErrNotFound) {
		return []model.WorkerDayRoute{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []model.WorkerDayRoute{}
	for _, r := range latest.Routes {
		if date != "" && r.Date != date {
			continue
		}
		if workerID != "" && r.WorkerID != workerID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{ID: uuid.NewString(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, url, events, secret) VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.URL, toJSON(sub.Events), sub.Secret)
	return sub, err
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, url, events, secret FROM subscriptions
		WHERE events @> to_jsonb($1::text) OR events @> '"*"'::jsonb
		ORDER BY id`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, url, events, secret FROM subscriptions
		WHERE ($1 = '' OR id > $1) ORDER BY id LIMIT $2`, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	subs, err := scanSubscriptions(rows)
	if err != nil {
		return nil, "", err
	}
	var next string
	if len(subs) > limit {
		subs = subs[:limit]
		next = subs[limit-1].ID
	}
	return subs, next, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(events, &s.Events); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		id, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		UPDATE webhook_deliveries SET attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE delivered_at IS NULL AND NOT dead AND next_attempt_at <= now()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, subscription_id, event_type, url, secret, payload, attempts`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE webhook_deliveries SET delivered_at = now(), last_error = $2, response_code = $3 WHERE id=$1`,
			id, lastError, responseCode)
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET next_attempt_at = COALESCE($2, next_attempt_at), last_error = $3, response_code = $4 WHERE id=$1`,
		id, nextAttemptAt, lastError, responseCode)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET dead = true, last_error = $2, response_code = $3 WHERE id=$1`,
		id, lastError, responseCode)
	return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies the *.sql files in dir in lexical order. Dev
// helper; production deployments run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func toJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
