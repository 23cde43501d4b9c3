package sched

import (
	"sort"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

// dayBucket tracks one worker-day's committed jobs and remaining budget
// during assignment.
type dayBucket struct {
	workerID  string
	date      string
	window    DayWindow
	remaining int
	jobs      []model.Job
}

// planner runs the two-phase assignment heuristic: fixed jobs reserve
// capacity first, then flexible jobs are committed to their best-scoring
// (worker, date) candidate.
type planner struct {
	weights      model.ScoreWeights
	bufferMin    int
	baselineRate float64
	buckets      []*dayBucket // sorted by (date, workerID) for determinism
}

func newPlanner(avail Availability, weights model.ScoreWeights, bufferMin int, baselineRate float64) *planner {
	p := &planner{weights: weights, bufferMin: bufferMin, baselineRate: baselineRate}
	for workerID, days := range avail {
		for date, win := range days {
			p.buckets = append(p.buckets, &dayBucket{
				workerID:  workerID,
				date:      date,
				window:    win,
				remaining: win.AvailMin,
			})
		}
	}
	sort.Slice(p.buckets, func(i, j int) bool {
		a, b := p.buckets[i], p.buckets[j]
		if a.date != b.date {
			return a.date < b.date
		}
		return a.workerID < b.workerID
	})
	return p
}

// placeFixed commits every fixed job to a worker-day bucket on its exact
// date. Fixed jobs are never moved to another date or time; when no
// worker has capacity on that date the job is reported, not dropped.
func (p *planner) placeFixed(fixed []model.Job) []model.UnplacedJob {
	sort.Slice(fixed, func(i, j int) bool {
		a, b := fixed[i], fixed[j]
		if a.ScheduledDate != b.ScheduledDate {
			return a.ScheduledDate < b.ScheduledDate
		}
		if a.ScheduledTime != b.ScheduledTime {
			return a.ScheduledTime < b.ScheduledTime
		}
		return a.ID < b.ID
	})
	var unplaced []model.UnplacedJob
	for _, j := range fixed {
		var target *dayBucket
		for _, b := range p.buckets {
			if b.date == j.ScheduledDate && b.remaining >= j.DurationMin {
				target = b
				break
			}
		}
		if target == nil {
			unplaced = append(unplaced, model.UnplacedJob{JobID: j.ID, Reason: model.ReasonNoCapacity})
			continue
		}
		target.jobs = append(target.jobs, j)
		target.remaining -= j.DurationMin
	}
	return unplaced
}

// placeFlexible iterates flexible jobs in priority/value order and
// commits each to the highest-scoring feasible candidate. Ties break by
// earliest date then lowest worker id; the bucket sort order makes the
// strict comparison below do both.
func (p *planner) placeFlexible(flexible []model.Job) []model.UnplacedJob {
	sort.Slice(flexible, func(i, j int) bool {
		a, b := flexible[i], flexible[j]
		wa, wb := model.PriorityWeight(a.Priority), model.PriorityWeight(b.Priority)
		if wa != wb {
			return wa > wb
		}
		if a.Price != b.Price {
			return a.Price > b.Price
		}
		return a.ID < b.ID
	})
	var unplaced []model.UnplacedJob
	for _, j := range flexible {
		need := j.DurationMin + p.bufferMin
		var best *dayBucket
		bestScore := 0.0
		for _, b := range p.buckets {
			if b.remaining < need {
				continue
			}
			score := p.placementScore(j, b)
			if best == nil || score > bestScore {
				best = b
				bestScore = score
			}
		}
		if best == nil {
			unplaced = append(unplaced, model.UnplacedJob{JobID: j.ID, Reason: model.ReasonNoFeasibleWorker})
			continue
		}
		best.jobs = append(best.jobs, j)
		best.remaining -= need
	}
	return unplaced
}

// placementScore combines revenue density, workload balance, priority,
// and geographic clustering under the configured weights.
func (p *planner) placementScore(j model.Job, b *dayBucket) float64 {
	hours := float64(j.DurationMin) / 60
	density := 0.0
	if hours > 0 && p.baselineRate > 0 {
		density = (j.Price / hours) / p.baselineRate
		if density > 2.0 {
			density = 2.0
		}
	}

	loadRatio := 0.0
	if b.window.AvailMin > 0 {
		loadRatio = float64(b.window.AvailMin-b.remaining) / float64(b.window.AvailMin)
	}
	balance := 1.0 - loadRatio

	priority := float64(model.PriorityWeight(j.Priority)) / 4

	geography := 0.0
	if j.Location != nil && len(b.jobs) > 0 {
		sum, n := 0.0, 0
		for _, other := range b.jobs {
			if other.Location == nil {
				continue
			}
			sum += geo.HaversineKm(*j.Location, *other.Location)
			n++
		}
		if n > 0 {
			avg := sum / float64(n)
			if avg < 50 {
				geography = (50 - avg) / 50
			}
		}
	}

	w := p.weights
	return w.Revenue*density + w.Balance*balance + w.Priority*priority + w.Geography*geography
}
