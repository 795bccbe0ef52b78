package pvsim

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// csvRow is one line of an hourly generation file.
type csvRow struct {
	Hour    int     `csv:"hour"`
	ACWatts float64 `csv:"ac_watts"`
}

// CSVFile replays a previously exported simulation from disk. The request is
// ignored since the file already describes a single system.
type CSVFile struct {
	path string
}

// NewCSVFile returns a simulator that reads path on every call.
func NewCSVFile(path string) *CSVFile {
	return &CSVFile{path: path}
}

func configuredCSV() *CSVFile {
	c := &CSVFile{}
	path := lflag.String("pvsim-csv-path", "", "Path to an hourly generation CSV with hour,ac_watts columns")
	lflag.Do(func() {
		c.path = *path
	})
	return c
}

// Validate ensures the configuration is valid.
func (c *CSVFile) Validate() error {
	if c.path == "" {
		return fmt.Errorf("pvsim-csv-path is required")
	}
	return nil
}

// Simulate implements Simulator.
func (c *CSVFile) Simulate(ctx context.Context, req Request) (types.Simulation, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return types.Simulation{}, types.UpstreamData(err, "failed to open generation file")
	}
	defer f.Close()

	samples, err := ReadCSV(f)
	if err != nil {
		return types.Simulation{}, err
	}
	return types.Simulation{Samples: samples}, nil
}

// ReadCSV reads a full year of hourly generation. Every hour of the year
// must appear exactly once; rows may be in any order.
func ReadCSV(r io.Reader) ([]types.GenerationSample, error) {
	var rows []csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, types.UpstreamData(err, "failed to parse generation csv")
	}
	if len(rows) != types.HoursPerYear {
		return nil, types.UpstreamData(nil, "expected %d hourly rows, got %d", types.HoursPerYear, len(rows))
	}

	ac := make([]float64, types.HoursPerYear)
	seen := make([]bool, types.HoursPerYear)
	for _, row := range rows {
		if row.Hour < 0 || row.Hour >= types.HoursPerYear {
			return nil, types.UpstreamData(nil, "hour %d is outside the year", row.Hour)
		}
		if seen[row.Hour] {
			return nil, types.UpstreamData(nil, "hour %d appears more than once", row.Hour)
		}
		seen[row.Hour] = true
		ac[row.Hour] = row.ACWatts
	}
	return samplesFromAC(ac)
}

// WriteCSV writes samples in the format ReadCSV accepts.
func WriteCSV(w io.Writer, samples []types.GenerationSample) error {
	rows := make([]csvRow, len(samples))
	for i, s := range samples {
		rows[i] = csvRow{
			Hour:    int(s.TS.Sub(types.HourTimestamp(0)).Hours()),
			ACWatts: s.Watts,
		}
	}
	return gocsv.Marshal(rows, w)
}
