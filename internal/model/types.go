package model

// Core domain types for the scheduling engine.

// GeoPoint is a WGS-84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Priority levels, highest first. Unknown values fall back to Normal.
const (
	PriorityCritical = "Critical"
	PriorityHigh     = "High"
	PriorityNormal   = "Normal"
	PriorityLow      = "Low"
)

// PriorityWeight maps a priority label to its ordering weight (4..1).
func PriorityWeight(p string) int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Job is a unit of billable work awaiting (or holding) a schedule slot.
type Job struct {
	ID            string    `json:"id"`
	Customer      string    `json:"customer"`
	Address       string    `json:"address,omitempty"`
	Location      *GeoPoint `json:"location,omitempty"`
	DurationMin   int       `json:"durationMin"`
	Priority      string    `json:"priority,omitempty"`
	Price         float64   `json:"price"`
	ScheduledDate string    `json:"scheduledDate,omitempty"` // YYYY-MM-DD
	ScheduledTime string    `json:"scheduledTime,omitempty"` // HH:MM
	WindowStart   string    `json:"windowStart,omitempty"`   // HH:MM
	WindowEnd     string    `json:"windowEnd,omitempty"`     // HH:MM
	Status        string    `json:"status,omitempty"`
}

// Fixed reports whether the job is pinned to a date and time. Fixed jobs
// are placed exactly where they are and never moved by the engine.
func (j Job) Fixed() bool { return j.ScheduledDate != "" && j.ScheduledTime != "" }

// Done reports whether the job has reached a terminal status and must be
// excluded from scheduling passes.
func (j Job) Done() bool { return j.Status == "completed" }

// Worker is a person who performs jobs, bound by a daily work calendar.
type Worker struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HomeAddress string    `json:"homeAddress,omitempty"`
	Location    *GeoPoint `json:"location,omitempty"`
	MaxDailyMin int       `json:"maxDailyMin,omitempty"`
	HourlyRate  float64   `json:"hourlyRate,omitempty"`
	Active      bool      `json:"active"`
}

// CalendarEntry defines a worker's hours for one weekday (0=Sunday..6).
// A missing entry means the worker is unavailable that weekday.
type CalendarEntry struct {
	WorkerID     string `json:"workerId"`
	Weekday      int    `json:"weekday"`
	StartTime    string `json:"startTime"` // HH:MM
	EndTime      string `json:"endTime"`   // HH:MM
	IsWorkingDay bool   `json:"isWorkingDay"`
}

// PlacedJob is a job committed to a worker-day with materialized times.
type PlacedJob struct {
	Job
	SequenceIdx       int    `json:"sequenceIdx"`
	AssignedWorkerID  string `json:"assignedWorkerId"`
	TravelMinFromPrev int    `json:"travelMinFromPrev"`
	CompletionTime    string `json:"completionTime"` // HH:MM
}

// WorkerDayRoute is the engine's output unit: one worker, one date, an
// ordered job list with times, plus aggregate totals and a score.
type WorkerDayRoute struct {
	ID               string      `json:"id,omitempty"`
	WorkerID         string      `json:"workerId"`
	Date             string      `json:"date"` // YYYY-MM-DD
	Jobs             []PlacedJob `json:"jobs"`
	TotalDurationMin int         `json:"totalDurationMin"`
	TotalDistanceKm  float64     `json:"totalDistanceKm"`
	TotalRevenue     float64     `json:"totalRevenue"`
	Score            float64     `json:"score"`
	Overflow         bool        `json:"overflow,omitempty"`
}

// Unplaced reason codes.
const (
	ReasonNoCapacity       = "no_capacity"
	ReasonNoFeasibleWorker = "no_feasible_worker"
	ReasonNoCoordinates    = "missing_coordinates_unresolvable"
)

// UnplacedJob reports a job the pass could not schedule, with a reason.
type UnplacedJob struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason"`
}

// PlanRequest describes one optimization pass over a planning horizon.
type PlanRequest struct {
	HorizonStart string        `json:"horizonStart"` // YYYY-MM-DD
	HorizonDays  int           `json:"horizonDays,omitempty"`
	Weights      *ScoreWeights `json:"weights,omitempty"`
}

// ScoreWeights are the four placement-score weights. They must be
// explicit configuration, never package-level mutable state.
type ScoreWeights struct {
	Revenue   float64 `json:"revenue" yaml:"revenue"`
	Balance   float64 `json:"balance" yaml:"balance"`
	Priority  float64 `json:"priority" yaml:"priority"`
	Geography float64 `json:"geography" yaml:"geography"`
}

// DefaultScoreWeights mirrors the production tuning.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Revenue: 0.4, Balance: 0.3, Priority: 0.2, Geography: 0.1}
}

// PlanTotals aggregates a whole pass.
type PlanTotals struct {
	Routes     int     `json:"routes"`
	JobsPlaced int     `json:"jobsPlaced"`
	Revenue    float64 `json:"revenue"`
	DistanceKm float64 `json:"distanceKm"`
	AvgScore   float64 `json:"avgScore"`
}

// PlanResult is the output of one pass. Failed indicates a fatal input
// condition (no workers, bad horizon); no partial routes are emitted.
// GeocodeFallbacks lists jobs whose address did not geocode and were
// planned at the fallback depot instead.
type PlanResult struct {
	PlanID           string           `json:"planId"`
	Routes           []WorkerDayRoute `json:"routes"`
	Unplaced         []UnplacedJob    `json:"unplaced"`
	GeocodeFallbacks []string         `json:"geocodeFallbacks,omitempty"`
	Totals           PlanTotals       `json:"totals"`
	StartedAt        string           `json:"startedAt,omitempty"`
	FinishedAt       string           `json:"finishedAt,omitempty"`
	Failed           bool             `json:"failed,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// SubscriptionRequest registers a webhook endpoint for plan events.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// Subscription is a registered webhook endpoint.
type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// Snapshot is the immutable input set one pass consumes.
type Snapshot struct {
	Jobs      []Job
	Workers   []Worker
	Calendars []CalendarEntry
}
