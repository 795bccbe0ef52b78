package pvsim

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/solarconsumer/pkg/types"
)

func csvYear(hours int) string {
	var b strings.Builder
	b.WriteString("hour,ac_watts\n")
	for h := hours - 1; h >= 0; h-- {
		fmt.Fprintf(&b, "%d,%d\n", h, h%24*10)
	}
	return b.String()
}

func TestReadCSV(t *testing.T) {
	samples, err := ReadCSV(strings.NewReader(csvYear(types.HoursPerYear)))
	require.NoError(t, err)
	require.Len(t, samples, types.HoursPerYear)
	// rows were written in reverse, samples come back in hour order
	assert.Equal(t, types.HourTimestamp(0), samples[0].TS)
	assert.Equal(t, 120.0, samples[12].Watts)
	assert.Equal(t, 230.0, samples[8759].Watts)

	t.Run("round trip", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, samples))
		again, err := ReadCSV(&buf)
		require.NoError(t, err)
		assert.Equal(t, samples, again)
	})
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"short", csvYear(100), "got 100"},
		{"duplicate", strings.Replace(csvYear(types.HoursPerYear), "\n5,50\n", "\n6,50\n", 1), "more than once"},
		{"out of range", strings.Replace(csvYear(types.HoursPerYear), "\n5,50\n", "\n9000,50\n", 1), "outside the year"},
		{"non-numeric", strings.Replace(csvYear(types.HoursPerYear), "\n5,50\n", "\n5,lots\n", 1), "parse generation csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.Equal(t, types.ErrorKindUpstreamData, types.KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCSVFileSimulate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvYear(types.HoursPerYear)), 0o644))

	c := NewCSVFile(path)
	require.NoError(t, c.Validate())
	sim, err := c.Simulate(context.Background(), Request{SystemSize: 9})
	require.NoError(t, err)
	assert.Len(t, sim.Samples, types.HoursPerYear)

	_, err = NewCSVFile(filepath.Join(t.TempDir(), "missing.csv")).Simulate(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindUpstreamData, types.KindOf(err))

	assert.Error(t, NewCSVFile("").Validate())
}

func TestMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvYear(types.HoursPerYear)), 0o644))

	m := NewMap()
	m.Set("csv", NewCSVFile(path))
	m.Set("pvwatts", NewPVWatts("", "", nil))
	assert.Equal(t, []string{"csv", "pvwatts"}, m.Names())

	// first registered is selected
	require.NoError(t, m.Validate())
	sim, err := m.Simulate(context.Background(), Request{SystemSize: 9})
	require.NoError(t, err)
	assert.Len(t, sim.Samples, types.HoursPerYear)

	require.NoError(t, m.Select("pvwatts"))
	assert.Error(t, m.Validate())

	err = m.Select("sam")
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindConfiguration, types.KindOf(err))

	_, err = m.Get("sam")
	assert.Error(t, err)
}
