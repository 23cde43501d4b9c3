package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"fieldsched/internal/metrics"
	"fieldsched/internal/model"
)

// TravelEstimate is a distance/duration pair between two points.
type TravelEstimate struct {
	DistanceM   int `json:"distanceM"`
	DurationSec int `json:"durationSec"`
}

// RouteProvider answers road-network routing queries.
type RouteProvider interface {
	Route(ctx context.Context, from, to model.GeoPoint) (TravelEstimate, error)
}

// Estimator returns travel estimates, preferring a routing provider and
// falling back to the geometric estimate on failure or absence. Provider
// calls are rate-limited and bounded; results are cached.
type Estimator struct {
	Provider RouteProvider // nil means fallback-only
	Cache    TravelCache
	limiter  *rate.Limiter
	sem      chan struct{}
}

// NewEstimator builds an Estimator. rps/burst bound the provider call
// rate, concurrency bounds in-flight calls; a pass may need O(stops²)
// lookups so both matter.
func NewEstimator(p RouteProvider, cache TravelCache, rps float64, burst, concurrency int) *Estimator {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps)
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	if cache == nil {
		cache = NewMemoryTravelCache()
	}
	return &Estimator{
		Provider: p,
		Cache:    cache,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		sem:      make(chan struct{}, concurrency),
	}
}

// Estimate returns the travel estimate from from to to. It never returns
// an error for the geometric path; only context cancellation aborts it.
func (e *Estimator) Estimate(ctx context.Context, from, to model.GeoPoint) (TravelEstimate, error) {
	if from == to {
		return TravelEstimate{}, nil
	}
	key := pairKey(from, to)
	if est, ok := e.Cache.Get(ctx, key); ok {
		return est, nil
	}
	if e.Provider != nil {
		est, err := e.routeLimited(ctx, from, to)
		if err == nil {
			e.Cache.Put(ctx, key, est)
			return est, nil
		}
		if ctx.Err() != nil {
			return TravelEstimate{}, ctx.Err()
		}
		log.Printf("travel provider failed (%v), using geometric fallback", err)
		metrics.TravelFallbacks.Inc()
	}
	est := FallbackEstimate(from, to)
	e.Cache.Put(ctx, key, est)
	return est, nil
}

func (e *Estimator) routeLimited(ctx context.Context, from, to model.GeoPoint) (TravelEstimate, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return TravelEstimate{}, err
	}
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return TravelEstimate{}, ctx.Err()
	}
	defer func() { <-e.sem }()
	return e.Provider.Route(ctx, from, to)
}

func pairKey(a, b model.GeoPoint) string {
	return fmt.Sprintf("%.5f,%.5f|%.5f,%.5f", a.Lat, a.Lng, b.Lat, b.Lng)
}

// OSRMProvider queries an OSRM-compatible routing service.
type OSRMProvider struct {
	BaseURL string
	HTTP    *http.Client
}

func NewOSRMProvider(baseURL string) *OSRMProvider {
	return &OSRMProvider{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (p *OSRMProvider) Route(ctx context.Context, from, to model.GeoPoint) (TravelEstimate, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		p.BaseURL, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TravelEstimate{}, err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return TravelEstimate{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return TravelEstimate{}, fmt.Errorf("routing status %d", resp.StatusCode)
	}
	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TravelEstimate{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return TravelEstimate{}, fmt.Errorf("routing code %q", out.Code)
	}
	r := out.Routes[0]
	return TravelEstimate{DistanceM: int(r.Distance), DurationSec: int(r.Duration)}, nil
}
