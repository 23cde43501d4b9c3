package sched

import (
	"context"
	"sort"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

type timeSpan struct {
	start int
	end   int
}

// sequenceDay orders one worker-day bucket into a timed stop list. Fixed
// jobs keep their pinned start times; flexible jobs are walked
// nearest-neighbor from the worker's home and slotted into the gaps
// around the fixed intervals, each start delayed into the job's time
// window when one is set. Returns the placed stops in start-time order
// and whether the day ran past the worker's window or a job missed its
// own.
func sequenceDay(ctx context.Context, b *dayBucket, w model.Worker, est *geo.Estimator, bufferMin, minViableMin int) ([]model.PlacedJob, bool) {
	var fixed, flexible []model.Job
	for _, j := range b.jobs {
		if j.Fixed() {
			fixed = append(fixed, j)
		} else {
			flexible = append(flexible, j)
		}
	}

	var pinned []timeSpan
	for _, j := range fixed {
		start, err := ClockToMinutes(j.ScheduledTime)
		if err != nil {
			start = b.window.StartMin
		}
		pinned = append(pinned, timeSpan{start: start, end: start + j.DurationMin})
	}
	sort.Slice(pinned, func(i, j int) bool { return pinned[i].start < pinned[j].start })

	overflow := false
	clock := b.window.StartMin
	cursor := w.Location
	var placed []model.PlacedJob

	for _, j := range nearestNeighborOrder(flexible, cursor) {
		travel := travelMinutes(ctx, est, cursor, j.Location)
		start := clock + travel + bufferMin
		winStart, winEnd := windowBounds(j)
		if winStart >= 0 && start < winStart {
			start = winStart
		}
		// Push the start past any fixed interval it would collide with.
		for _, iv := range pinned {
			if start < iv.end && start+j.DurationMin > iv.start {
				start = iv.end + bufferMin
			}
		}
		if winEnd >= 0 && start+j.DurationMin > winEnd {
			// Give up the slack after the previous stop and take the
			// latest start that still meets the window, if one exists.
			latest := winEnd - j.DurationMin
			if latest >= clock && (winStart < 0 || latest >= winStart) && !collides(pinned, latest, latest+j.DurationMin) {
				start = latest
			} else {
				overflow = true
			}
		}
		if start+j.DurationMin > b.window.EndMin {
			// Compress: take the latest start that still finishes by day
			// end, provided a viable block remains and neither a fixed
			// job nor the time window is hit.
			latest := b.window.EndMin - j.DurationMin
			if latest >= clock && (winStart < 0 || latest >= winStart) && b.window.EndMin-clock >= minViableMin && !collides(pinned, latest, latest+j.DurationMin) {
				start = latest
			} else {
				overflow = true
			}
		}
		j.ScheduledDate = b.date
		j.ScheduledTime = MinutesToClock(start)
		placed = append(placed, model.PlacedJob{
			Job:               j,
			AssignedWorkerID:  w.ID,
			TravelMinFromPrev: travel,
			CompletionTime:    MinutesToClock(start + j.DurationMin),
		})
		clock = start + j.DurationMin
		if j.Location != nil {
			cursor = j.Location
		}
	}

	for _, j := range fixed {
		start, err := ClockToMinutes(j.ScheduledTime)
		if err != nil {
			start = b.window.StartMin
		}
		if start+j.DurationMin > b.window.EndMin {
			overflow = true
		}
		placed = append(placed, model.PlacedJob{
			Job:              j,
			AssignedWorkerID: w.ID,
			CompletionTime:   MinutesToClock(start + j.DurationMin),
		})
	}

	sort.Slice(placed, func(i, j int) bool {
		a, c := placed[i], placed[j]
		if a.ScheduledTime != c.ScheduledTime {
			return a.ScheduledTime < c.ScheduledTime
		}
		return a.ID < c.ID
	})

	// Recompute travel from the previous stop so fixed jobs get a travel
	// leg too, now that the final order is known.
	prev := w.Location
	for i := range placed {
		placed[i].SequenceIdx = i
		placed[i].TravelMinFromPrev = travelMinutes(ctx, est, prev, placed[i].Location)
		if placed[i].Location != nil {
			prev = placed[i].Location
		}
	}
	return placed, overflow
}

// nearestNeighborOrder walks jobs greedily from the start point. Jobs
// without coordinates sort after located ones, by priority then id, so
// the walk stays deterministic.
func nearestNeighborOrder(jobs []model.Job, start *model.GeoPoint) []model.Job {
	remaining := append([]model.Job(nil), jobs...)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].ID < remaining[j].ID })

	var ordered []model.Job
	cursor := start
	for len(remaining) > 0 {
		best := -1
		bestDist := 0.0
		for i, j := range remaining {
			if cursor == nil || j.Location == nil {
				continue
			}
			d := geo.HaversineKm(*cursor, *j.Location)
			if best == -1 || d < bestDist {
				best = i
				bestDist = d
			}
		}
		if best == -1 {
			// No located candidates left; fall back to priority order.
			sort.SliceStable(remaining, func(i, j int) bool {
				wi, wj := model.PriorityWeight(remaining[i].Priority), model.PriorityWeight(remaining[j].Priority)
				if wi != wj {
					return wi > wj
				}
				return remaining[i].ID < remaining[j].ID
			})
			ordered = append(ordered, remaining...)
			break
		}
		pick := remaining[best]
		ordered = append(ordered, pick)
		remaining = append(remaining[:best], remaining[best+1:]...)
		if pick.Location != nil {
			cursor = pick.Location
		}
	}
	return ordered
}

// windowBounds returns the job's time-window bounds in minutes from
// midnight, -1 for a bound that is absent or malformed.
func windowBounds(j model.Job) (int, int) {
	ws, we := -1, -1
	if j.WindowStart != "" {
		if v, err := ClockToMinutes(j.WindowStart); err == nil {
			ws = v
		}
	}
	if j.WindowEnd != "" {
		if v, err := ClockToMinutes(j.WindowEnd); err == nil {
			we = v
		}
	}
	return ws, we
}

func collides(spans []timeSpan, start, end int) bool {
	for _, iv := range spans {
		if start < iv.end && end > iv.start {
			return true
		}
	}
	return false
}

func travelMinutes(ctx context.Context, est *geo.Estimator, from, to *model.GeoPoint) int {
	if from == nil || to == nil {
		return 0
	}
	e, err := est.Estimate(ctx, *from, *to)
	if err != nil {
		return 0
	}
	return (e.DurationSec + 30) / 60
}
