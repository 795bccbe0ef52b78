// Package runner executes projection runs end to end: parse the inputs,
// simulate the PV system, compute the projection and persist the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/raterudder/solarconsumer/pkg/inputs"
	"github.com/raterudder/solarconsumer/pkg/log"
	"github.com/raterudder/solarconsumer/pkg/metrics"
	"github.com/raterudder/solarconsumer/pkg/pvsim"
	"github.com/raterudder/solarconsumer/pkg/solar"
	"github.com/raterudder/solarconsumer/pkg/storage"
	"github.com/raterudder/solarconsumer/pkg/types"
)

// Runner executes runs against a simulator and persists them.
type Runner struct {
	sim     pvsim.Simulator
	db      storage.Database
	metrics *metrics.Metrics

	newID func() string
	now   func() time.Time
}

// New returns a Runner. m may be nil to skip instrumentation.
func New(sim pvsim.Simulator, db storage.Database, m *metrics.Metrics) *Runner {
	return &Runner{
		sim:     sim,
		db:      db,
		metrics: m,
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// Request is a run submission.
type Request struct {
	// Inputs is the flat text configuration of the run.
	Inputs map[string]string
}

// Run executes a run and returns it as persisted. If the run fails after it
// was created, the failed run is returned alongside the error so callers can
// report its ID.
func (r *Runner) Run(ctx context.Context, req Request) (types.Run, error) {
	run := types.Run{
		ID:        r.newID(),
		Status:    types.RunStatusRunning,
		Created:   r.now().UTC(),
		RawInputs: maps.Clone(req.Inputs),
	}
	ctx = log.WithRun(ctx, run.ID)

	if err := r.db.CreateRun(ctx, run); err != nil {
		return types.Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordStart()
	}
	log.Ctx(ctx).InfoContext(ctx, "run started")

	// the outcome is persisted even if the caller goes away mid-run
	persistCtx := context.WithoutCancel(ctx)

	start := r.now()
	in, site, result, err := r.execute(ctx, req)
	runTime := r.now().Sub(start)

	if err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"run failed",
			slog.String("kind", string(types.KindOf(err))),
			slog.Any("error", err),
		)
		f := storage.Failure{Err: err, RunTime: runTime}
		if in.MeteringType != "" {
			f.Inputs = &in
		}
		r.recordFailure(persistCtx, run.ID, f)
		r.finish(types.RunStatusFailed, err)
		return r.failed(run, f), err
	}

	c := storage.Completion{Inputs: in, Site: site, Result: result, RunTime: runTime}
	if err := r.db.CompleteRun(persistCtx, run.ID, c); err != nil {
		err = fmt.Errorf("failed to complete run %s: %w", run.ID, err)
		log.Ctx(ctx).ErrorContext(ctx, "failed to record run completion", slog.Any("error", err))
		f := storage.Failure{Err: err, Inputs: &in, RunTime: runTime}
		r.recordFailure(persistCtx, run.ID, f)
		r.finish(types.RunStatusFailed, err)
		return r.failed(run, f), err
	}
	r.finish(types.RunStatusCompleted, nil)
	log.Ctx(ctx).InfoContext(ctx, "run completed", slog.Duration("runTime", runTime))

	run.Status = types.RunStatusCompleted
	run.Inputs = &in
	run.Site = &site
	run.Result = result
	run.RunTime = runTime
	return run, nil
}

func (r *Runner) execute(ctx context.Context, req Request) (types.RunInputs, types.Site, *types.Projection, error) {
	in, err := inputs.Parse(req.Inputs)
	if err != nil {
		return types.RunInputs{}, types.Site{}, nil, err
	}

	simStart := r.now()
	sim, err := r.sim.Simulate(ctx, pvsim.Request{SystemSize: in.SystemSize, ZipCode: in.ZipCode})
	if r.metrics != nil {
		r.metrics.RecordSimulate(r.now().Sub(simStart))
	}
	if err != nil {
		return in, types.Site{}, nil, fmt.Errorf("simulating generation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return in, sim.Site, nil, err
	}

	computeStart := r.now()
	result, err := solar.Compute(sim.Samples, in)
	if r.metrics != nil {
		r.metrics.RecordCompute(r.now().Sub(computeStart))
	}
	if err != nil {
		return in, sim.Site, nil, err
	}
	return in, sim.Site, result, nil
}

func (r *Runner) recordFailure(ctx context.Context, id string, f storage.Failure) {
	if err := r.db.FailRun(ctx, id, f); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to record run failure", slog.Any("error", err))
	}
}

func (r *Runner) finish(status types.RunStatus, err error) {
	if r.metrics != nil {
		r.metrics.RecordFinish(status, err)
	}
}

func (r *Runner) failed(run types.Run, f storage.Failure) types.Run {
	run.Status = types.RunStatusFailed
	run.Inputs = f.Inputs
	run.RunTime = f.RunTime
	run.Error = f.Err.Error()
	run.ErrorKind = types.KindOf(f.Err)
	return run
}

// Get returns a persisted run.
func (r *Runner) Get(ctx context.Context, id string) (types.Run, error) {
	return r.db.GetRun(ctx, id)
}

// List returns the newest runs first.
func (r *Runner) List(ctx context.Context, limit int) ([]types.Run, error) {
	return r.db.ListRuns(ctx, limit)
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrRunNotFound)
}
