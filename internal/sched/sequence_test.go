package sched

import (
	"context"
	"reflect"
	"testing"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

func testEstimator() *geo.Estimator {
	return geo.NewEstimator(nil, geo.NewMemoryTravelCache(), 1000, 1000, 4)
}

func day(jobs ...model.Job) *dayBucket {
	return &dayBucket{
		workerID: "w1",
		date:     "2025-03-03",
		window:   DayWindow{StartMin: 480, EndMin: 960, AvailMin: 480},
		jobs:     jobs,
	}
}

func TestSequenceDayWalksNearestNeighbor(t *testing.T) {
	home := model.GeoPoint{Lat: 56.16, Lng: 10.20}
	near := model.GeoPoint{Lat: 56.17, Lng: 10.21}
	far := model.GeoPoint{Lat: 56.30, Lng: 10.40}
	w := model.Worker{ID: "w1", Location: &home}

	b := day(
		model.Job{ID: "far", Customer: "A", DurationMin: 60, Location: &far},
		model.Job{ID: "near", Customer: "B", DurationMin: 60, Location: &near},
	)
	placed, overflow := sequenceDay(context.Background(), b, w, testEstimator(), 15, 30)
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if len(placed) != 2 || placed[0].ID != "near" || placed[1].ID != "far" {
		t.Fatalf("order = %s, %s", placed[0].ID, placed[1].ID)
	}
	if placed[0].SequenceIdx != 0 || placed[1].SequenceIdx != 1 {
		t.Fatalf("sequence idx = %d, %d", placed[0].SequenceIdx, placed[1].SequenceIdx)
	}
	if placed[1].TravelMinFromPrev <= 0 {
		t.Fatalf("second stop has no travel leg: %+v", placed[1])
	}
}

func TestSequenceDayIdempotent(t *testing.T) {
	loc := model.GeoPoint{Lat: 56.16, Lng: 10.20}
	w := model.Worker{ID: "w1", Location: &loc}
	mk := func() *dayBucket {
		return day(
			model.Job{ID: "a", Customer: "A", DurationMin: 90, Location: &loc},
			model.Job{ID: "b", Customer: "B", DurationMin: 60, Location: &loc},
			model.Job{ID: "fx", Customer: "C", DurationMin: 60, Location: &loc, ScheduledDate: "2025-03-03", ScheduledTime: "11:00"},
		)
	}
	p1, o1 := sequenceDay(context.Background(), mk(), w, testEstimator(), 15, 30)
	p2, o2 := sequenceDay(context.Background(), mk(), w, testEstimator(), 15, 30)
	if o1 != o2 || !reflect.DeepEqual(p1, p2) {
		t.Fatalf("sequencing not reproducible:\n%+v\nvs\n%+v", p1, p2)
	}
}

func TestSequenceDayHonorsWindow(t *testing.T) {
	loc := model.GeoPoint{Lat: 56.16, Lng: 10.20}
	w := model.Worker{ID: "w1", Location: &loc}

	// A lone windowed job waits for its window to open.
	win := model.Job{ID: "win", Customer: "A", DurationMin: 60, Location: &loc, WindowStart: "12:00", WindowEnd: "14:00"}
	placed, overflow := sequenceDay(context.Background(), day(win), w, testEstimator(), 15, 30)
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if placed[0].ScheduledTime != "12:00" || placed[0].CompletionTime != "13:00" {
		t.Fatalf("windowed job at %s-%s, want 12:00-13:00", placed[0].ScheduledTime, placed[0].CompletionTime)
	}

	// A closing window pulls the start back over the buffer slack.
	b := day(
		model.Job{ID: "a", Customer: "A", DurationMin: 60, Location: &loc},
		model.Job{ID: "b", Customer: "B", DurationMin: 60, Location: &loc, WindowEnd: "10:20"},
	)
	placed, overflow = sequenceDay(context.Background(), b, w, testEstimator(), 15, 30)
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if placed[1].ID != "b" || placed[1].ScheduledTime != "09:20" || placed[1].CompletionTime != "10:20" {
		t.Fatalf("compressed stop = %+v, want b at 09:20-10:20", placed[1])
	}

	// A window the job cannot fit flags the day.
	tight := model.Job{ID: "tight", Customer: "A", DurationMin: 90, Location: &loc, WindowStart: "08:00", WindowEnd: "08:30"}
	if _, overflow = sequenceDay(context.Background(), day(tight), w, testEstimator(), 15, 30); !overflow {
		t.Fatal("expected overflow for an unsatisfiable window")
	}
}

func TestSequenceDayOverflow(t *testing.T) {
	loc := model.GeoPoint{Lat: 56.16, Lng: 10.20}
	w := model.Worker{ID: "w1", Location: &loc}
	// Three 200-minute jobs cannot finish inside a 480-minute window.
	b := day(
		model.Job{ID: "a", Customer: "A", DurationMin: 200, Location: &loc},
		model.Job{ID: "b", Customer: "B", DurationMin: 200, Location: &loc},
		model.Job{ID: "c", Customer: "C", DurationMin: 200, Location: &loc},
	)
	placed, overflow := sequenceDay(context.Background(), b, w, testEstimator(), 15, 30)
	if !overflow {
		t.Fatal("expected overflow")
	}
	if len(placed) != 3 {
		t.Fatalf("placed %d stops, want all 3 reported", len(placed))
	}
}

func TestScoreRouteBonusesAndClamp(t *testing.T) {
	dates := []string{"2025-03-03", "2025-03-04", "2025-03-05"}
	r := model.WorkerDayRoute{
		Date:             "2025-03-03",
		TotalRevenue:     600,
		TotalDurationMin: 60,
		Jobs: []model.PlacedJob{
			{Job: model.Job{Priority: model.PriorityCritical}},
		},
	}
	// rev/hr = 600 (+20), all jobs critical on a first-third day (+15),
	// tight clustering (+15): 50+20+15+15 = 100, at the clamp.
	got := scoreRoute(r, []float64{1.0}, dates)
	if got != 100 {
		t.Fatalf("score = %f, want 100", got)
	}

	// Same route later in the horizon loses the urgency bonus.
	r.Date = "2025-03-05"
	if got := scoreRoute(r, []float64{1.0}, dates); got != 85 {
		t.Fatalf("late score = %f, want 85", got)
	}

	// Empty route scores the base.
	if got := scoreRoute(model.WorkerDayRoute{Date: "2025-03-05"}, nil, dates); got != 50 {
		t.Fatalf("empty score = %f, want 50", got)
	}
}
