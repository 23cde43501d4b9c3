package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fieldsched/internal/metrics"
	"fieldsched/internal/model"
)

// GeocodeProvider resolves a free-text address to coordinates, returning
// nil when the address cannot be resolved.
type GeocodeProvider interface {
	Geocode(ctx context.Context, address string) (*model.GeoPoint, error)
}

// Geocoder resolves addresses with a fixed fallback point. Resolution
// failure never aborts scheduling: the fallback depot stands in, flagged
// so the caller can report missing_coordinates_unresolvable.
type Geocoder struct {
	Provider GeocodeProvider // nil means fallback-only
	Fallback model.GeoPoint
	limiter  *rate.Limiter

	mu    sync.Mutex
	cache map[string]*model.GeoPoint // address -> result (nil = known miss)
}

func NewGeocoder(p GeocodeProvider, fallback model.GeoPoint, rps float64, burst int) *Geocoder {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps)
	}
	return &Geocoder{
		Provider: p,
		Fallback: fallback,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		cache:    map[string]*model.GeoPoint{},
	}
}

// Resolve returns coordinates for address. resolved is false when the
// fallback depot was substituted.
func (g *Geocoder) Resolve(ctx context.Context, address string) (pt model.GeoPoint, resolved bool) {
	if address == "" {
		return g.Fallback, false
	}
	g.mu.Lock()
	cached, ok := g.cache[address]
	g.mu.Unlock()
	if ok {
		if cached == nil {
			return g.Fallback, false
		}
		return *cached, true
	}
	var res *model.GeoPoint
	if g.Provider != nil {
		if err := g.limiter.Wait(ctx); err == nil {
			p, err := g.Provider.Geocode(ctx, address)
			if err != nil {
				log.Printf("geocode %q failed: %v", address, err)
			} else {
				res = p
			}
		}
	}
	g.mu.Lock()
	g.cache[address] = res
	g.mu.Unlock()
	if res == nil {
		log.Printf("geocode %q unresolved, using fallback depot", address)
		metrics.GeocodeFallbacks.Inc()
		return g.Fallback, false
	}
	return *res, true
}

// ResolveSnapshot fills in missing coordinates for all jobs and workers
// in the snapshot with bounded concurrency. It mutates the snapshot's
// slices in place and returns the set of job IDs that fell back.
func (g *Geocoder) ResolveSnapshot(ctx context.Context, snap *model.Snapshot, concurrency int) map[string]bool {
	if concurrency <= 0 {
		concurrency = 8
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fellBack := map[string]bool{}

	for i := range snap.Jobs {
		if snap.Jobs[i].Location != nil {
			continue
		}
		wg.Add(1)
		go func(j *model.Job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			pt, resolved := g.Resolve(ctx, j.Address)
			j.Location = &model.GeoPoint{Lat: pt.Lat, Lng: pt.Lng}
			if !resolved {
				mu.Lock()
				fellBack[j.ID] = true
				mu.Unlock()
			}
		}(&snap.Jobs[i])
	}
	for i := range snap.Workers {
		if snap.Workers[i].Location != nil {
			continue
		}
		wg.Add(1)
		go func(w *model.Worker) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			pt, _ := g.Resolve(ctx, w.HomeAddress)
			w.Location = &model.GeoPoint{Lat: pt.Lat, Lng: pt.Lng}
		}(&snap.Workers[i])
	}
	wg.Wait()
	return fellBack
}

// DAWAProvider geocodes against the Danish address API (or a compatible
// endpoint).
type DAWAProvider struct {
	BaseURL string
	HTTP    *http.Client
}

func NewDAWAProvider(baseURL string) *DAWAProvider {
	return &DAWAProvider{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

type dawaAddress struct {
	Adresse struct {
		Adgangspunkt struct {
			Koordinater []float64 `json:"koordinater"` // [lng, lat]
		} `json:"adgangspunkt"`
	} `json:"adresse"`
}

func (p *DAWAProvider) Geocode(ctx context.Context, address string) (*model.GeoPoint, error) {
	u := fmt.Sprintf("%s/adresser?q=%s&struktur=mini", p.BaseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}
	var out []dawaAddress
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	coords := out[0].Adresse.Adgangspunkt.Koordinater
	if len(coords) != 2 {
		return nil, nil
	}
	return &model.GeoPoint{Lat: coords[1], Lng: coords[0]}, nil
}
