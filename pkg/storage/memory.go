package storage

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// Memory keeps runs in process. It is the default provider and what tests and
// the CLI use.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]types.Run
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]types.Run)}
}

func (m *Memory) CreateRun(ctx context.Context, run types.Run) error {
	if err := validateNewRun(run); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	run.RawInputs = maps.Clone(run.RawInputs)
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) update(id string, apply func(*types.Run) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err := apply(&run); err != nil {
		return err
	}
	m.runs[id] = run
	return nil
}

func (m *Memory) CompleteRun(ctx context.Context, id string, c Completion) error {
	return m.update(id, c.apply)
}

func (m *Memory) FailRun(ctx context.Context, id string, f Failure) error {
	return m.update(id, f.apply)
}

func (m *Memory) GetRun(ctx context.Context, id string) (types.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	run.RawInputs = maps.Clone(run.RawInputs)
	return run, nil
}

func (m *Memory) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	m.mu.RLock()
	runs := make([]types.Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Created.Equal(runs[j].Created) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].Created.After(runs[j].Created)
	})
	if l := listLimit(limit); len(runs) > l {
		runs = runs[:l]
	}
	return runs, nil
}

func (m *Memory) Close() error {
	return nil
}
