package sched

import (
	"context"
	"testing"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

var aarhus = model.GeoPoint{Lat: 56.1629, Lng: 10.2039}

func testEngine() *Engine {
	gc := geo.NewGeocoder(nil, aarhus, 1000, 1000)
	est := geo.NewEstimator(nil, geo.NewMemoryTravelCache(), 1000, 1000, 4)
	return NewEngine(gc, est, Options{})
}

// mondayWorker returns one active worker with an 08:00-16:00 Mon-Fri
// calendar, based at the Aarhus depot.
func mondayWorker(id string) ([]model.Worker, []model.CalendarEntry) {
	w := model.Worker{ID: id, Name: id, Active: true, Location: &aarhus}
	var cal []model.CalendarEntry
	for wd := 1; wd <= 5; wd++ {
		cal = append(cal, model.CalendarEntry{WorkerID: id, Weekday: wd, StartTime: "08:00", EndTime: "16:00", IsWorkingDay: true})
	}
	return []model.Worker{w}, cal
}

func flexJob(id string, durationMin int, price float64) model.Job {
	return model.Job{ID: id, Customer: "Hansen", Location: &aarhus, DurationMin: durationMin, Price: price, Priority: model.PriorityNormal}
}

func TestRunCapacityLimit(t *testing.T) {
	workers, cals := mondayWorker("w1")
	// Five 90-minute jobs against a 480-minute day: each costs 105 with
	// the service buffer, so exactly four fit.
	var jobs []model.Job
	for _, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		jobs = append(jobs, flexJob(id, 90, 500))
	}
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})

	if res.Failed {
		t.Fatalf("pass failed: %s", res.Error)
	}
	if res.Totals.JobsPlaced != 4 {
		t.Fatalf("placed %d jobs, want 4", res.Totals.JobsPlaced)
	}
	if len(res.Unplaced) != 1 || res.Unplaced[0].Reason != model.ReasonNoFeasibleWorker {
		t.Fatalf("unplaced = %+v", res.Unplaced)
	}
}

func TestRunCapacityAcrossDays(t *testing.T) {
	workers, cals := mondayWorker("w1")
	// The same five jobs spread over a working week all find a slot.
	var jobs []model.Job
	for _, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		jobs = append(jobs, flexJob(id, 90, 500))
	}
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 5})

	if res.Failed {
		t.Fatalf("pass failed: %s", res.Error)
	}
	if res.Totals.JobsPlaced != 5 {
		t.Fatalf("placed %d jobs, want 5", res.Totals.JobsPlaced)
	}
	if len(res.Unplaced) != 0 {
		t.Fatalf("unplaced = %+v", res.Unplaced)
	}
	if len(res.Routes) < 2 {
		t.Fatalf("expected the jobs to spill onto a second day, routes = %d", len(res.Routes))
	}
}

func TestRunHonorsTimeWindows(t *testing.T) {
	workers, cals := mondayWorker("w1")
	win := flexJob("win", 60, 300)
	win.WindowStart, win.WindowEnd = "12:00", "14:00"
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: []model.Job{win}, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})

	if res.Totals.JobsPlaced != 1 {
		t.Fatalf("placed %d, want 1", res.Totals.JobsPlaced)
	}
	pj := res.Routes[0].Jobs[0]
	if pj.ScheduledTime != "12:00" || pj.CompletionTime != "13:00" {
		t.Fatalf("windowed job scheduled %s-%s, want inside 12:00-14:00", pj.ScheduledTime, pj.CompletionTime)
	}
	if res.Routes[0].Overflow {
		t.Fatal("route flagged overflow for a satisfiable window")
	}

	// A window too small for the job flags the day.
	tight := flexJob("tight", 90, 300)
	tight.WindowStart, tight.WindowEnd = "08:00", "08:30"
	res = testEngine().Run(context.Background(), model.Snapshot{Jobs: []model.Job{tight}, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})
	if len(res.Routes) != 1 || !res.Routes[0].Overflow {
		t.Fatalf("expected overflow for an unsatisfiable window, routes = %+v", res.Routes)
	}
}

func TestRunFirstStopBuffered(t *testing.T) {
	workers, cals := mondayWorker("w1")
	res := testEngine().Run(context.Background(),
		model.Snapshot{Jobs: []model.Job{flexJob("only", 90, 400)}, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})

	pj := res.Routes[0].Jobs[0]
	if pj.ScheduledTime != "08:15" || pj.CompletionTime != "09:45" {
		t.Fatalf("first stop %s-%s, want the service buffer before it: 08:15-09:45", pj.ScheduledTime, pj.CompletionTime)
	}
}

func TestRunFixedJobsNeverMove(t *testing.T) {
	workers, cals := mondayWorker("w1")
	jobs := []model.Job{
		{ID: "fixed", Customer: "Hansen", Location: &aarhus, DurationMin: 120, Price: 800,
			ScheduledDate: "2025-03-03", ScheduledTime: "10:00"},
		flexJob("f1", 150, 1000),
		flexJob("f2", 150, 1000),
		flexJob("f3", 150, 1000),
	}
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})

	// Fixed reserves 120 of 480; two of the three 150+15 flexible jobs fit.
	if res.Totals.JobsPlaced != 3 {
		t.Fatalf("placed %d jobs, want 3", res.Totals.JobsPlaced)
	}
	if len(res.Unplaced) != 1 {
		t.Fatalf("unplaced = %+v", res.Unplaced)
	}
	found := false
	for _, r := range res.Routes {
		for _, pj := range r.Jobs {
			if pj.ID != "fixed" {
				continue
			}
			found = true
			if pj.ScheduledDate != "2025-03-03" || pj.ScheduledTime != "10:00" {
				t.Fatalf("fixed job moved to %s %s", pj.ScheduledDate, pj.ScheduledTime)
			}
			if pj.CompletionTime != "12:00" {
				t.Fatalf("fixed completion = %s", pj.CompletionTime)
			}
		}
	}
	if !found {
		t.Fatal("fixed job not in any route")
	}
}

func TestRunNoDoubleBooking(t *testing.T) {
	workers, cals := mondayWorker("w1")
	jobs := []model.Job{
		{ID: "fixed", Customer: "Hansen", Location: &aarhus, DurationMin: 60, Price: 500,
			ScheduledDate: "2025-03-03", ScheduledTime: "11:00"},
		flexJob("a", 90, 400),
		flexJob("b", 60, 400),
		flexJob("c", 45, 400),
	}
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})

	for _, r := range res.Routes {
		prevEnd := -1
		for _, pj := range r.Jobs {
			start, err := ClockToMinutes(pj.ScheduledTime)
			if err != nil {
				t.Fatalf("bad start time %q", pj.ScheduledTime)
			}
			if start < prevEnd {
				t.Fatalf("stop %s starts %s before previous stop ends %s", pj.ID, pj.ScheduledTime, MinutesToClock(prevEnd))
			}
			prevEnd = start + pj.DurationMin
		}
	}
}

func TestRunPriorityBeatsPrice(t *testing.T) {
	workers, cals := mondayWorker("w1")
	// Only one 240-minute job fits in the day; the critical one must win
	// even though the low-priority job pays far more.
	jobs := []model.Job{
		{ID: "urgent", Customer: "Hansen", Location: &aarhus, DurationMin: 240, Price: 100, Priority: model.PriorityCritical},
		{ID: "rich", Customer: "Hansen", Location: &aarhus, DurationMin: 240, Price: 9999, Priority: model.PriorityLow},
	}
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})

	if res.Totals.JobsPlaced != 1 {
		t.Fatalf("placed %d, want 1", res.Totals.JobsPlaced)
	}
	if res.Routes[0].Jobs[0].ID != "urgent" {
		t.Fatalf("placed %s, want urgent", res.Routes[0].Jobs[0].ID)
	}
	if len(res.Unplaced) != 1 || res.Unplaced[0].JobID != "rich" {
		t.Fatalf("unplaced = %+v", res.Unplaced)
	}
}

func TestRunDeterministic(t *testing.T) {
	workers, cals := mondayWorker("w1")
	workers = append(workers, model.Worker{ID: "w2", Name: "w2", Active: true, Location: &aarhus})
	for wd := 1; wd <= 5; wd++ {
		cals = append(cals, model.CalendarEntry{WorkerID: "w2", Weekday: wd, StartTime: "08:00", EndTime: "16:00", IsWorkingDay: true})
	}
	var jobs []model.Job
	for _, id := range []string{"j1", "j2", "j3", "j4", "j5", "j6"} {
		jobs = append(jobs, flexJob(id, 120, 700))
	}
	snap := model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals}
	req := model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 2}

	a := testEngine().Run(context.Background(), snap, req)
	b := testEngine().Run(context.Background(), snap, req)

	if len(a.Routes) != len(b.Routes) {
		t.Fatalf("route counts differ: %d vs %d", len(a.Routes), len(b.Routes))
	}
	for i := range a.Routes {
		ra, rb := a.Routes[i], b.Routes[i]
		if ra.WorkerID != rb.WorkerID || ra.Date != rb.Date || len(ra.Jobs) != len(rb.Jobs) {
			t.Fatalf("route %d differs: %s/%s vs %s/%s", i, ra.Date, ra.WorkerID, rb.Date, rb.WorkerID)
		}
		for k := range ra.Jobs {
			if ra.Jobs[k].ID != rb.Jobs[k].ID || ra.Jobs[k].ScheduledTime != rb.Jobs[k].ScheduledTime {
				t.Fatalf("route %d stop %d differs: %s@%s vs %s@%s", i, k,
					ra.Jobs[k].ID, ra.Jobs[k].ScheduledTime, rb.Jobs[k].ID, rb.Jobs[k].ScheduledTime)
			}
		}
	}
}

func TestRunFatalConditions(t *testing.T) {
	_, cals := mondayWorker("w1")
	res := testEngine().Run(context.Background(),
		model.Snapshot{Jobs: []model.Job{flexJob("j1", 60, 100)}, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})
	if !res.Failed || len(res.Routes) != 0 {
		t.Fatalf("expected failed pass with no routes, got %+v", res)
	}

	workers, cals := mondayWorker("w1")
	res = testEngine().Run(context.Background(),
		model.Snapshot{Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "03/03/2025", HorizonDays: 1})
	if !res.Failed {
		t.Fatal("expected failure for malformed horizon start")
	}
}

func TestRunUnresolvableJob(t *testing.T) {
	workers, cals := mondayWorker("w1")
	jobs := []model.Job{
		{ID: "blank", Customer: "Hansen", DurationMin: 60, Price: 100}, // no address, no coords
		{ID: "addr", Customer: "Hansen", Address: "Somewhere 1, 8000 Aarhus", DurationMin: 60, Price: 100},
	}
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})

	if len(res.Unplaced) != 1 || res.Unplaced[0].JobID != "blank" || res.Unplaced[0].Reason != model.ReasonNoCoordinates {
		t.Fatalf("unplaced = %+v", res.Unplaced)
	}
	// The addressed job geocodes to the fallback depot and still runs,
	// and the result names it.
	if res.Totals.JobsPlaced != 1 {
		t.Fatalf("placed %d, want 1", res.Totals.JobsPlaced)
	}
	if len(res.GeocodeFallbacks) != 1 || res.GeocodeFallbacks[0] != "addr" {
		t.Fatalf("geocodeFallbacks = %v, want [addr]", res.GeocodeFallbacks)
	}
}

func TestRunSkipsCompletedJobs(t *testing.T) {
	workers, cals := mondayWorker("w1")
	jobs := []model.Job{
		flexJob("open", 60, 100),
		{ID: "done", Customer: "Hansen", Location: &aarhus, DurationMin: 60, Price: 100, Status: "completed"},
	}
	res := testEngine().Run(context.Background(), model.Snapshot{Jobs: jobs, Workers: workers, Calendars: cals},
		model.PlanRequest{HorizonStart: "2025-03-03", HorizonDays: 1})
	if res.Totals.JobsPlaced != 1 || len(res.Unplaced) != 0 {
		t.Fatalf("totals = %+v unplaced = %+v", res.Totals, res.Unplaced)
	}
}
