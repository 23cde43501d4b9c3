package sched

import (
	"strings"

	"fieldsched/internal/model"
)

// Classify partitions jobs into fixed (date and time already bound) and
// flexible (awaiting placement). This split runs before any placement so
// fixed jobs reserve capacity first; a flexible job can never bump a
// fixed one.
func Classify(jobs []model.Job) (fixed, flexible []model.Job) {
	for _, j := range jobs {
		if j.Fixed() {
			fixed = append(fixed, j)
		} else {
			flexible = append(flexible, j)
		}
	}
	return fixed, flexible
}

// keywordDurations maps service keywords found in the customer label or
// address to default service minutes.
var keywordDurations = []struct {
	keyword string
	minutes int
}{
	{"window", 90},
	{"vindue", 90},
	{"gutter", 60},
	{"tagrende", 60},
	{"clean", 120},
	{"rengøring", 120},
	{"garden", 180},
	{"have", 180},
}

// DefaultDuration returns the service minutes for a job whose estimated
// duration is missing or non-positive: keyword lookup first, then price
// bands.
func DefaultDuration(j model.Job) int {
	label := strings.ToLower(j.Customer + " " + j.Address)
	for _, kd := range keywordDurations {
		if strings.Contains(label, kd.keyword) {
			return kd.minutes
		}
	}
	switch {
	case j.Price < 500:
		return 60
	case j.Price < 1000:
		return 120
	case j.Price < 2000:
		return 180
	default:
		return 240
	}
}

// normalizeDurations applies DefaultDuration where needed.
func normalizeDurations(jobs []model.Job) {
	for i := range jobs {
		if jobs[i].DurationMin <= 0 {
			jobs[i].DurationMin = DefaultDuration(jobs[i])
		}
	}
}
