package pvsim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/tidwall/gjson"

	"github.com/raterudder/solarconsumer/pkg/common"
	"github.com/raterudder/solarconsumer/pkg/log"
	"github.com/raterudder/solarconsumer/pkg/types"
)

// DefaultPVWattsURL is NREL's hosted PVWatts v8 endpoint.
const DefaultPVWattsURL = "https://developer.nrel.gov/api/pvwatts/v8.json"

// Array defaults: fixed open rack facing south with 3% system losses
// (a 0.97 derate) and tilt equal to the site latitude.
const (
	pvwattsAzimuth    = "180"
	pvwattsArrayType  = "0"
	pvwattsModuleType = "0"
	pvwattsLosses     = "3"
)

// PVWatts simulates generation with NREL's PVWatts API.
type PVWatts struct {
	apiURL string
	apiKey string
	client *http.Client

	mu        sync.Mutex
	latitudes map[string]float64
}

// NewPVWatts returns a PVWatts client for the given endpoint.
func NewPVWatts(apiURL, apiKey string, client *http.Client) *PVWatts {
	if client == nil {
		client = common.HTTPClient(30 * time.Second)
	}
	return &PVWatts{
		apiURL:    apiURL,
		apiKey:    apiKey,
		client:    client,
		latitudes: make(map[string]float64),
	}
}

func configuredPVWatts() *PVWatts {
	p := NewPVWatts("", "", nil)
	apiURL := lflag.String("pvwatts-api-url", DefaultPVWattsURL, "URL for the PVWatts API")
	apiKey := lflag.String("pvwatts-api-key", "DEMO_KEY", "API key for the NREL developer network")
	timeout := lflag.Duration("pvwatts-timeout", 30*time.Second, "Timeout for PVWatts requests")

	lflag.Do(func() {
		p.apiURL = *apiURL
		p.apiKey = *apiKey
		p.client.Timeout = *timeout
	})
	return p
}

// Validate ensures the configuration is valid.
func (p *PVWatts) Validate() error {
	if p.apiURL == "" {
		return fmt.Errorf("pvwatts-api-url is required")
	}
	if _, err := url.Parse(p.apiURL); err != nil {
		return fmt.Errorf("failed to parse pvwatts url (%s): %w", p.apiURL, err)
	}
	if p.apiKey == "" {
		return fmt.Errorf("pvwatts-api-key is required")
	}
	return nil
}

func (p *PVWatts) fetch(ctx context.Context, q url.Values) ([]byte, error) {
	q.Set("api_key", p.apiKey)
	u := p.apiURL + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pvwatts request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.UpstreamData(err, "pvwatts request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.UpstreamData(err, "failed to read pvwatts response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.UpstreamData(nil, "pvwatts status %d: %s", resp.StatusCode, snippet(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, types.UpstreamData(nil, "pvwatts returned invalid json")
	}
	if errs := gjson.GetBytes(body, "errors"); len(errs.Array()) > 0 {
		msgs := make([]string, 0, len(errs.Array()))
		for _, e := range errs.Array() {
			msgs = append(msgs, e.String())
		}
		return nil, types.UpstreamData(nil, "pvwatts errors: %s", strings.Join(msgs, "; "))
	}
	return body, nil
}

func snippet(body []byte) string {
	if len(body) > 256 {
		body = body[:256]
	}
	return strings.TrimSpace(string(body))
}

func (p *PVWatts) baseQuery(req Request, tilt float64, timeframe string) url.Values {
	q := url.Values{}
	q.Set("system_capacity", strconv.FormatFloat(req.SystemSize, 'f', -1, 64))
	q.Set("azimuth", pvwattsAzimuth)
	q.Set("tilt", strconv.FormatFloat(tilt, 'f', -1, 64))
	q.Set("array_type", pvwattsArrayType)
	q.Set("module_type", pvwattsModuleType)
	q.Set("losses", pvwattsLosses)
	q.Set("address", req.ZipCode)
	q.Set("timeframe", timeframe)
	return q
}

// latitude resolves the station latitude for zip, which is the array tilt.
// Results are cached for the life of the client.
func (p *PVWatts) latitude(ctx context.Context, req Request) (float64, error) {
	p.mu.Lock()
	lat, ok := p.latitudes[req.ZipCode]
	p.mu.Unlock()
	if ok {
		return lat, nil
	}

	body, err := p.fetch(ctx, p.baseQuery(req, 0, "monthly"))
	if err != nil {
		return 0, err
	}
	res := gjson.GetBytes(body, "station_info.lat")
	if res.Type != gjson.Number {
		return 0, types.UpstreamData(nil, "pvwatts response missing station_info.lat")
	}
	lat = res.Float()

	p.mu.Lock()
	p.latitudes[req.ZipCode] = lat
	p.mu.Unlock()
	return lat, nil
}

// Simulate implements Simulator.
func (p *PVWatts) Simulate(ctx context.Context, req Request) (types.Simulation, error) {
	if !(req.SystemSize > 0) {
		return types.Simulation{}, types.InvalidInput("systemSize must be > 0, got %v", req.SystemSize)
	}
	if req.ZipCode == "" {
		return types.Simulation{}, types.InvalidInput("zipCode is required for pvwatts")
	}

	lat, err := p.latitude(ctx, req)
	if err != nil {
		return types.Simulation{}, err
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"requesting pvwatts hourly simulation",
		slog.String("zipCode", req.ZipCode),
		slog.Float64("systemSize", req.SystemSize),
		slog.Float64("tilt", lat),
	)

	body, err := p.fetch(ctx, p.baseQuery(req, lat, "hourly"))
	if err != nil {
		return types.Simulation{}, err
	}
	return parsePVWatts(body)
}

func parsePVWatts(body []byte) (types.Simulation, error) {
	ac := gjson.GetBytes(body, "outputs.ac")
	if !ac.IsArray() {
		return types.Simulation{}, types.UpstreamData(nil, "pvwatts response missing outputs.ac")
	}
	values := ac.Array()
	watts := make([]float64, len(values))
	for i, v := range values {
		if v.Type != gjson.Number {
			return types.Simulation{}, types.UpstreamData(nil, "outputs.ac[%d] is not a number: %s", i, v.Raw)
		}
		watts[i] = v.Float()
	}
	samples, err := samplesFromAC(watts)
	if err != nil {
		return types.Simulation{}, err
	}

	station := gjson.GetBytes(body, "station_info")
	return types.Simulation{
		Site: types.Site{
			City:      station.Get("city").String(),
			State:     station.Get("state").String(),
			Lat:       station.Get("lat").Float(),
			Lon:       station.Get("lon").Float(),
			Elevation: station.Get("elev").Float(),
		},
		Samples: samples,
	}, nil
}
