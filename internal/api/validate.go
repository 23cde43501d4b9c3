package api

import (
	"fmt"
	"time"

	"fieldsched/internal/model"
	"fieldsched/internal/sched"
)

const dateLayout = "2006-01-02"

func validateJob(j *model.Job) error {
	if j.Customer == "" {
		return fmt.Errorf("customer is required")
	}
	if j.Price < 0 {
		return fmt.Errorf("price must be >= 0")
	}
	if j.DurationMin < 0 {
		return fmt.Errorf("durationMin must be >= 0")
	}
	switch j.Priority {
	case "", model.PriorityCritical, model.PriorityHigh, model.PriorityNormal, model.PriorityLow:
	default:
		return fmt.Errorf("unknown priority: %s", j.Priority)
	}
	if j.ScheduledDate != "" {
		if _, err := time.Parse(dateLayout, j.ScheduledDate); err != nil {
			return fmt.Errorf("invalid scheduledDate: %s", j.ScheduledDate)
		}
	}
	if j.ScheduledTime != "" {
		if _, err := sched.ClockToMinutes(j.ScheduledTime); err != nil {
			return fmt.Errorf("invalid scheduledTime: %s", j.ScheduledTime)
		}
	}
	if j.ScheduledTime != "" && j.ScheduledDate == "" {
		return fmt.Errorf("scheduledTime requires scheduledDate")
	}
	ws, we := -1, -1
	if j.WindowStart != "" {
		v, err := sched.ClockToMinutes(j.WindowStart)
		if err != nil {
			return fmt.Errorf("invalid windowStart: %s", j.WindowStart)
		}
		ws = v
	}
	if j.WindowEnd != "" {
		v, err := sched.ClockToMinutes(j.WindowEnd)
		if err != nil {
			return fmt.Errorf("invalid windowEnd: %s", j.WindowEnd)
		}
		we = v
	}
	if ws >= 0 && we >= 0 && we <= ws {
		return fmt.Errorf("windowEnd must be after windowStart")
	}
	return nil
}

func validateWorker(w *model.Worker, calendar []model.CalendarEntry) error {
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	if w.MaxDailyMin < 0 {
		return fmt.Errorf("maxDailyMin must be >= 0")
	}
	for _, c := range calendar {
		if c.Weekday < 0 || c.Weekday > 6 {
			return fmt.Errorf("weekday must be 0..6")
		}
		if !c.IsWorkingDay {
			continue
		}
		start, err := sched.ClockToMinutes(c.StartTime)
		if err != nil {
			return fmt.Errorf("invalid startTime: %s", c.StartTime)
		}
		end, err := sched.ClockToMinutes(c.EndTime)
		if err != nil {
			return fmt.Errorf("invalid endTime: %s", c.EndTime)
		}
		if end <= start {
			return fmt.Errorf("endTime must be after startTime")
		}
	}
	return nil
}

func validatePlanRequest(req *model.PlanRequest) error {
	if req.HorizonStart != "" {
		if _, err := time.Parse(dateLayout, req.HorizonStart); err != nil {
			return fmt.Errorf("invalid horizonStart: %s", req.HorizonStart)
		}
	}
	if req.HorizonDays < 0 {
		return fmt.Errorf("horizonDays must be >= 0")
	}
	if req.HorizonDays > 60 {
		return fmt.Errorf("horizonDays must be <= 60")
	}
	if w := req.Weights; w != nil {
		if w.Revenue < 0 || w.Balance < 0 || w.Priority < 0 || w.Geography < 0 {
			return fmt.Errorf("weights must be >= 0")
		}
		if w.Revenue+w.Balance+w.Priority+w.Geography == 0 {
			return fmt.Errorf("at least one weight must be positive")
		}
	}
	return nil
}
