package sched

import (
	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

// buildRoute assembles the route record for one sequenced worker-day and
// grades it on a 0-100 scale.
func buildRoute(b *dayBucket, w model.Worker, placed []model.PlacedJob, overflow bool, dates []string) model.WorkerDayRoute {
	r := model.WorkerDayRoute{
		WorkerID: w.ID,
		Date:     b.date,
		Jobs:     placed,
		Overflow: overflow,
	}
	for _, pj := range placed {
		r.TotalDurationMin += pj.DurationMin + pj.TravelMinFromPrev
		r.TotalRevenue += pj.Price
	}

	prev := w.Location
	interStop := []float64{}
	for _, pj := range placed {
		if pj.Location == nil {
			continue
		}
		if prev != nil {
			d := geo.HaversineKm(*prev, *pj.Location)
			r.TotalDistanceKm += d
			interStop = append(interStop, d)
		}
		prev = pj.Location
	}

	r.Score = scoreRoute(r, interStop, dates)
	return r
}

// scoreRoute grades a route: base 50, bonuses for revenue per hour,
// urgent work landing early in the horizon, and tight geographic
// clustering. Clamped to [0,100].
func scoreRoute(r model.WorkerDayRoute, interStop []float64, dates []string) float64 {
	score := 50.0

	if r.TotalDurationMin > 0 {
		revPerHour := r.TotalRevenue / (float64(r.TotalDurationMin) / 60)
		switch {
		case revPerHour > 500:
			score += 20
		case revPerHour > 300:
			score += 10
		}
	}

	if len(r.Jobs) > 0 && inFirstThird(r.Date, dates) {
		critical := 0
		for _, pj := range r.Jobs {
			if pj.Priority == model.PriorityCritical {
				critical++
			}
		}
		score += 15 * float64(critical) / float64(len(r.Jobs))
	}

	if len(interStop) > 0 {
		sum := 0.0
		for _, d := range interStop {
			sum += d
		}
		switch avg := sum / float64(len(interStop)); {
		case avg < 5:
			score += 15
		case avg < 10:
			score += 10
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func inFirstThird(date string, dates []string) bool {
	if len(dates) == 0 {
		return false
	}
	cut := (len(dates) + 2) / 3
	for i, d := range dates {
		if d == date {
			return i < cut
		}
	}
	return false
}
