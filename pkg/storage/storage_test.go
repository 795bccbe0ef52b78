package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/solarconsumer/pkg/types"
)

func newTestRun(id string, created time.Time) types.Run {
	return types.Run{
		ID:        id,
		Status:    types.RunStatusRunning,
		Created:   created,
		RawInputs: map[string]string{"years": "1", "meteringType": "production"},
	}
}

func testProjection() *types.Projection {
	payback := 7.25
	return &types.Projection{
		Years:           1,
		MonthlySolarGen: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		BaseCase:        types.ScenarioResult{Scenario: types.ScenarioBaseCase, TotalCost: 1200},
		Roof:            types.ScenarioResult{Scenario: types.ScenarioRoof, TotalCost: 900, PaybackYears: &payback},
		GreenElectrons:  42,
	}
}

// testDatabase exercises the behavior every provider shares. prefix keeps
// IDs unique against providers that outlive the test.
func testDatabase(t *testing.T, db Database, prefix string) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("CreateAndGet", func(t *testing.T) {
		run := newTestRun(prefix+"create", base)
		require.NoError(t, db.CreateRun(ctx, run))

		got, err := db.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, types.RunStatusRunning, got.Status)
		assert.True(t, run.Created.Equal(got.Created))
		assert.Equal(t, run.RawInputs, got.RawInputs)
		assert.Nil(t, got.Result)

		err = db.CreateRun(ctx, run)
		assert.ErrorIs(t, err, ErrRunExists)
	})

	t.Run("CreateInvalid", func(t *testing.T) {
		assert.Error(t, db.CreateRun(ctx, newTestRun("", base)))
		r := newTestRun(prefix+"invalid", base)
		r.Status = types.RunStatusCompleted
		assert.Error(t, db.CreateRun(ctx, r))
		assert.Error(t, db.CreateRun(ctx, newTestRun(prefix+"invalid", time.Time{})))
	})

	t.Run("Complete", func(t *testing.T) {
		run := newTestRun(prefix+"complete", base)
		require.NoError(t, db.CreateRun(ctx, run))

		in := types.RunInputs{Years: 1, MeteringType: types.MeteringProduction}
		require.NoError(t, db.CompleteRun(ctx, run.ID, Completion{
			Inputs:  in,
			Site:    types.Site{City: "Nevada", State: "MO"},
			Result:  testProjection(),
			RunTime: 1500 * time.Millisecond,
		}))

		got, err := db.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, types.RunStatusCompleted, got.Status)
		assert.Equal(t, 1500*time.Millisecond, got.RunTime)
		require.NotNil(t, got.Inputs)
		assert.Equal(t, types.MeteringProduction, got.Inputs.MeteringType)
		require.NotNil(t, got.Site)
		assert.Equal(t, "Nevada", got.Site.City)
		require.NotNil(t, got.Result)
		assert.Equal(t, 1200.0, got.Result.BaseCase.TotalCost)
		require.NotNil(t, got.Result.Roof.PaybackYears)
		assert.Equal(t, 7.25, *got.Result.Roof.PaybackYears)
		assert.Nil(t, got.Result.BaseCase.PaybackYears)
		assert.Empty(t, got.Error)

		err = db.FailRun(ctx, run.ID, Failure{Err: errors.New("late")})
		assert.ErrorIs(t, err, ErrRunFinished)
	})

	t.Run("Fail", func(t *testing.T) {
		run := newTestRun(prefix+"fail", base)
		require.NoError(t, db.CreateRun(ctx, run))

		require.NoError(t, db.FailRun(ctx, run.ID, Failure{
			Err:     fmt.Errorf("simulating: %w", types.UpstreamData(nil, "expected 8760 hourly values, got 12")),
			RunTime: time.Second,
		}))

		got, err := db.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, types.RunStatusFailed, got.Status)
		assert.Equal(t, types.ErrorKindUpstreamData, got.ErrorKind)
		assert.Contains(t, got.Error, "got 12")
		assert.Nil(t, got.Result)
		assert.Nil(t, got.Inputs)

		err = db.CompleteRun(ctx, run.ID, Completion{Result: testProjection()})
		assert.ErrorIs(t, err, ErrRunFinished)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := db.GetRun(ctx, prefix+"missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
		err = db.CompleteRun(ctx, prefix+"missing", Completion{Result: testProjection()})
		assert.ErrorIs(t, err, ErrRunNotFound)
		err = db.FailRun(ctx, prefix+"missing", Failure{})
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("List", func(t *testing.T) {
		future := base.Add(time.Hour)
		for i := 0; i < 3; i++ {
			require.NoError(t, db.CreateRun(ctx, newTestRun(fmt.Sprintf("%slist-%d", prefix, i), future.Add(time.Duration(i)*time.Minute))))
		}
		runs, err := db.ListRuns(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, prefix+"list-2", runs[0].ID)
		assert.Equal(t, prefix+"list-1", runs[1].ID)

		all, err := db.ListRuns(ctx, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 6)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].Created.After(all[i-1].Created))
		}
	})
}

func TestFailureApply(t *testing.T) {
	run := newTestRun("x", time.Now())
	require.NoError(t, Failure{}.apply(&run))
	assert.Equal(t, types.ErrorKindInternal, run.ErrorKind)
	assert.Equal(t, "unknown error", run.Error)

	run = newTestRun("y", time.Now())
	require.Error(t, Completion{}.apply(&run))
	assert.Equal(t, types.RunStatusRunning, run.Status)
}
