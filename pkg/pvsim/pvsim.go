// Package pvsim provides the photovoltaic simulators that produce one year of
// hourly AC output for a system.
package pvsim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// Request describes the system to simulate.
type Request struct {
	// SystemSize is the DC capacity in kW.
	SystemSize float64
	// ZipCode locates the system.
	ZipCode string
}

// Simulator produces 8760 hourly samples of AC output for a system.
type Simulator interface {
	Simulate(ctx context.Context, req Request) (types.Simulation, error)
}

// Configured registers the simulator flags and returns a Map containing
// every simulator.
func Configured() *Map {
	m := NewMap()
	provider := lflag.String("pvsim-provider", "pvwatts", "PV simulator used for runs (pvwatts or csv)")
	m.Set("pvwatts", configuredPVWatts())
	m.Set("csv", configuredCSV())

	lflag.Do(func() {
		m.provider = *provider
	})
	return m
}

// Map holds named simulators and delegates to the selected one.
type Map struct {
	mu         sync.Mutex
	provider   string
	simulators map[string]Simulator
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{
		simulators: make(map[string]Simulator),
	}
}

// Set registers s under name. The first simulator registered becomes the
// selected provider unless one was chosen.
func (m *Map) Set(name string, s Simulator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulators[name] = s
	if m.provider == "" {
		m.provider = name
	}
}

// Select changes the provider Simulate delegates to.
func (m *Map) Select(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.simulators[name]; !ok {
		return types.Configuration("unknown pv simulator: %s", name)
	}
	m.provider = name
	return nil
}

// Names returns the registered simulator names in sorted order.
func (m *Map) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.simulators))
	for n := range m.simulators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the simulator registered under name.
func (m *Map) Get(name string) (Simulator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.simulators[name]
	if !ok {
		return nil, types.Configuration("unknown pv simulator: %s", name)
	}
	return s, nil
}

// Validate ensures the selected simulator is usable.
func (m *Map) Validate() error {
	s, err := m.Get(m.selected())
	if err != nil {
		return err
	}
	if v, ok := s.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", m.selected(), err)
		}
	}
	return nil
}

func (m *Map) selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}

// Simulate implements Simulator using the selected provider.
func (m *Map) Simulate(ctx context.Context, req Request) (types.Simulation, error) {
	s, err := m.Get(m.selected())
	if err != nil {
		return types.Simulation{}, err
	}
	return s.Simulate(ctx, req)
}

// samplesFromAC stamps hourly AC output with the hours of the
// representative year.
func samplesFromAC(ac []float64) ([]types.GenerationSample, error) {
	if len(ac) != types.HoursPerYear {
		return nil, types.UpstreamData(nil, "expected %d hourly values, got %d", types.HoursPerYear, len(ac))
	}
	samples := make([]types.GenerationSample, len(ac))
	for h, w := range ac {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, types.UpstreamData(nil, "hour %d: non-finite output %v", h, w)
		}
		samples[h] = types.GenerationSample{TS: types.HourTimestamp(h), Watts: w}
	}
	return samples, nil
}
