// Package storage persists runs and their outcomes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/solarconsumer/pkg/types"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunExists   = errors.New("run already exists")
	ErrRunFinished = errors.New("run already finished")
)

// DefaultListLimit is used when ListRuns is called with a non-positive limit.
const DefaultListLimit = 50

// Database defines the interface for persisting runs.
type Database interface {
	// CreateRun stores a new run. The run's status must be running.
	CreateRun(ctx context.Context, run types.Run) error
	// CompleteRun records the outcome of a successful run.
	CompleteRun(ctx context.Context, id string, c Completion) error
	// FailRun records why a run failed. No projection is stored.
	FailRun(ctx context.Context, id string, f Failure) error

	GetRun(ctx context.Context, id string) (types.Run, error)
	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)

	// Lifecycle
	Close() error
}

// Completion is what a successful run records.
type Completion struct {
	Inputs  types.RunInputs
	Site    types.Site
	Result  *types.Projection
	RunTime time.Duration
}

func (c Completion) apply(run *types.Run) error {
	if run.Status != types.RunStatusRunning {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, run.ID, run.Status)
	}
	if c.Result == nil {
		return fmt.Errorf("completion of %s missing result", run.ID)
	}
	in, site := c.Inputs, c.Site
	run.Status = types.RunStatusCompleted
	run.Inputs = &in
	run.Site = &site
	run.Result = c.Result
	run.RunTime = c.RunTime
	return nil
}

// Failure is what a failed run records.
type Failure struct {
	// Inputs is set when the inputs parsed before the failure.
	Inputs  *types.RunInputs
	Err     error
	RunTime time.Duration
}

func (f Failure) apply(run *types.Run) error {
	if run.Status != types.RunStatusRunning {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, run.ID, run.Status)
	}
	run.Status = types.RunStatusFailed
	run.Inputs = f.Inputs
	run.Result = nil
	run.RunTime = f.RunTime
	if f.Err != nil {
		run.Error = f.Err.Error()
		run.ErrorKind = types.KindOf(f.Err)
	} else {
		run.Error = "unknown error"
		run.ErrorKind = types.ErrorKindInternal
	}
	return nil
}

func validateNewRun(run types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if run.Status != types.RunStatusRunning {
		return fmt.Errorf("new run %s must be running, got %s", run.ID, run.Status)
	}
	if run.Created.IsZero() {
		return fmt.Errorf("new run %s missing created time", run.ID)
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "memory", "Storage provider to use (available: memory, firestore, redis)")

	var p struct{ Database }

	fs := configuredFirestore()
	rs := configuredRedis()

	lflag.Do(func() {
		switch *provider {
		case "memory":
			p.Database = NewMemory()
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "redis":
			if err := rs.Validate(); err != nil {
				panic(fmt.Sprintf("redis validation failed: %v", err))
			}
			p.Database = rs
			if err := rs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("redis init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
