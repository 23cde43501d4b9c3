package sched

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"fieldsched/internal/geo"
	"fieldsched/internal/metrics"
	"fieldsched/internal/model"
)

const defaultHorizonDays = 14

// Options carries the engine's tuning knobs.
type Options struct {
	Weights            model.ScoreWeights
	BufferMin          int
	MinViableMin       int
	BaselineHourlyRate float64
	GeocodeConcurrency int
}

// Engine runs one optimization pass over a snapshot. It holds no
// per-pass state; a single Engine is safe for concurrent passes, though
// the pass guard normally serializes them.
type Engine struct {
	geocoder *geo.Geocoder
	travel   *geo.Estimator
	opts     Options
}

func NewEngine(geocoder *geo.Geocoder, travel *geo.Estimator, opts Options) *Engine {
	if opts.BufferMin <= 0 {
		opts.BufferMin = 15
	}
	if opts.MinViableMin <= 0 {
		opts.MinViableMin = 30
	}
	if opts.BaselineHourlyRate <= 0 {
		opts.BaselineHourlyRate = 300
	}
	if (opts.Weights == model.ScoreWeights{}) {
		opts.Weights = model.DefaultScoreWeights()
	}
	return &Engine{geocoder: geocoder, travel: travel, opts: opts}
}

// Run executes one pass. Fatal input conditions (no active workers,
// invalid horizon) produce a Failed result with no routes; individual
// unschedulable jobs are reported per-job instead.
func (e *Engine) Run(ctx context.Context, snap model.Snapshot, req model.PlanRequest) model.PlanResult {
	started := time.Now()
	res := model.PlanResult{
		PlanID:    uuid.NewString(),
		StartedAt: started.UTC().Format(time.RFC3339),
	}
	fail := func(msg string) model.PlanResult {
		res.Failed = true
		res.Error = msg
		res.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		metrics.PlanPasses.WithLabelValues("failed").Inc()
		return res
	}

	active := 0
	for _, w := range snap.Workers {
		if w.Active {
			active++
		}
	}
	if active == 0 {
		return fail("no active workers")
	}

	days := req.HorizonDays
	if days <= 0 {
		days = defaultHorizonDays
	}
	dates, err := HorizonDates(req.HorizonStart, days)
	if err != nil {
		return fail("invalid horizon: " + err.Error())
	}

	weights := e.opts.Weights
	if req.Weights != nil {
		weights = *req.Weights
	}

	// Drop completed jobs and jobs with no way to get coordinates before
	// spending geocoder budget on the rest.
	var jobs []model.Job
	for _, j := range snap.Jobs {
		if j.Done() {
			continue
		}
		if j.Location == nil && j.Address == "" {
			res.Unplaced = append(res.Unplaced, model.UnplacedJob{JobID: j.ID, Reason: model.ReasonNoCoordinates})
			continue
		}
		jobs = append(jobs, j)
	}
	snap.Jobs = jobs
	fellBack := e.geocoder.ResolveSnapshot(ctx, &snap, e.opts.GeocodeConcurrency)
	for id := range fellBack {
		res.GeocodeFallbacks = append(res.GeocodeFallbacks, id)
	}
	sort.Strings(res.GeocodeFallbacks)

	normalizeDurations(snap.Jobs)
	fixed, flexible := Classify(snap.Jobs)

	// Fixed jobs dated outside the horizon stay where they are; they are
	// neither moved nor reported.
	inHorizon := map[string]bool{}
	for _, d := range dates {
		inHorizon[d] = true
	}
	kept := fixed[:0]
	for _, j := range fixed {
		if inHorizon[j.ScheduledDate] {
			kept = append(kept, j)
		}
	}
	fixed = kept

	avail := BuildAvailability(snap.Workers, snap.Calendars, dates)
	pl := newPlanner(avail, weights, e.opts.BufferMin, e.opts.BaselineHourlyRate)
	res.Unplaced = append(res.Unplaced, pl.placeFixed(fixed)...)
	res.Unplaced = append(res.Unplaced, pl.placeFlexible(flexible)...)

	workers := map[string]model.Worker{}
	for _, w := range snap.Workers {
		workers[w.ID] = w
	}
	for _, b := range pl.buckets {
		if len(b.jobs) == 0 {
			continue
		}
		placed, overflow := sequenceDay(ctx, b, workers[b.workerID], e.travel, e.opts.BufferMin, e.opts.MinViableMin)
		r := buildRoute(b, workers[b.workerID], placed, overflow, dates)
		r.ID = uuid.NewString()
		res.Routes = append(res.Routes, r)
	}
	sort.Slice(res.Routes, func(i, j int) bool {
		a, b := res.Routes[i], res.Routes[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.WorkerID < b.WorkerID
	})
	sort.Slice(res.Unplaced, func(i, j int) bool { return res.Unplaced[i].JobID < res.Unplaced[j].JobID })

	for _, r := range res.Routes {
		res.Totals.Routes++
		res.Totals.JobsPlaced += len(r.Jobs)
		res.Totals.Revenue += r.TotalRevenue
		res.Totals.DistanceKm += r.TotalDistanceKm
		res.Totals.AvgScore += r.Score
	}
	if res.Totals.Routes > 0 {
		res.Totals.AvgScore /= float64(res.Totals.Routes)
	}

	res.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	metrics.PlanPasses.WithLabelValues("ok").Inc()
	metrics.PlanPassDuration.Observe(time.Since(started).Seconds())
	metrics.JobsPlaced.Add(float64(res.Totals.JobsPlaced))
	for _, u := range res.Unplaced {
		metrics.JobsUnplaced.WithLabelValues(u.Reason).Inc()
	}
	log.Printf("plan %s: %d routes, %d placed, %d unplaced in %s",
		res.PlanID, res.Totals.Routes, res.Totals.JobsPlaced, len(res.Unplaced), time.Since(started).Round(time.Millisecond))
	return res
}
