// Package sched implements the multi-day scheduling engine: availability
// modeling, job classification, the assignment heuristic, day sequencing,
// and route metrics. Everything here is pure computation over a snapshot;
// providers and persistence live elsewhere.
package sched

import (
	"fmt"
	"time"

	"fieldsched/internal/model"
)

const dateLayout = "2006-01-02"

// DayWindow is one worker's working window on one date, in minutes from
// midnight. AvailMin is the placement budget (window length capped by the
// worker's daily maximum).
type DayWindow struct {
	StartMin int
	EndMin   int
	AvailMin int
}

// Availability maps workerID -> date -> window. A missing date means the
// worker is unavailable and excluded from placement that day.
type Availability map[string]map[string]DayWindow

// HorizonDates expands a start date into n business days (Mon-Fri),
// starting at the first business day on or after start.
func HorizonDates(start string, days int) ([]string, error) {
	t, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid horizon start %q: %w", start, err)
	}
	if days <= 0 {
		return nil, fmt.Errorf("horizon days must be > 0")
	}
	out := make([]string, 0, days)
	for len(out) < days {
		wd := t.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			out = append(out, t.Format(dateLayout))
		}
		t = t.AddDate(0, 0, 1)
	}
	return out, nil
}

// BuildAvailability computes each active worker's window for each horizon
// date from its calendar entries. Dates whose weekday has no entry, or an
// entry with IsWorkingDay=false, are omitted.
func BuildAvailability(workers []model.Worker, calendars []model.CalendarEntry, dates []string) Availability {
	byWorkerDay := map[string]map[int]model.CalendarEntry{}
	for _, c := range calendars {
		if byWorkerDay[c.WorkerID] == nil {
			byWorkerDay[c.WorkerID] = map[int]model.CalendarEntry{}
		}
		byWorkerDay[c.WorkerID][c.Weekday] = c
	}

	avail := Availability{}
	for _, w := range workers {
		if !w.Active {
			continue
		}
		entries := byWorkerDay[w.ID]
		if entries == nil {
			continue
		}
		for _, d := range dates {
			t, err := time.Parse(dateLayout, d)
			if err != nil {
				continue
			}
			entry, ok := entries[int(t.Weekday())]
			if !ok || !entry.IsWorkingDay {
				continue
			}
			start, err1 := ClockToMinutes(entry.StartTime)
			end, err2 := ClockToMinutes(entry.EndTime)
			if err1 != nil || err2 != nil || end <= start {
				continue
			}
			mins := end - start
			if w.MaxDailyMin > 0 && mins > w.MaxDailyMin {
				mins = w.MaxDailyMin
			}
			if avail[w.ID] == nil {
				avail[w.ID] = map[string]DayWindow{}
			}
			avail[w.ID][d] = DayWindow{StartMin: start, EndMin: end, AvailMin: mins}
		}
	}
	return avail
}

// ClockToMinutes parses "HH:MM" (or "HH:MM:SS") into minutes from midnight.
func ClockToMinutes(s string) (int, error) {
	var h, m int
	if len(s) >= 8 {
		var sec int
		if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
			return 0, fmt.Errorf("invalid clock %q", s)
		}
	} else if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}

// MinutesToClock renders minutes from midnight as "HH:MM".
func MinutesToClock(min int) string {
	if min < 0 {
		min = 0
	}
	return fmt.Sprintf("%02d:%02d", (min/60)%24, min%60)
}
