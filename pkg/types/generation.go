package types

import "time"

// HoursPerYear is the number of hourly samples a PV simulation of the
// representative non-leap year must contain.
const HoursPerYear = 8760

// RepresentativeYear is the fixed non-leap year every simulated hour is
// stamped with.
const RepresentativeYear = 2013

// GenerationSample is one hour of simulated AC output.
type GenerationSample struct {
	TS    time.Time `json:"ts"`
	Watts float64   `json:"watts"`
}

// HourTimestamp returns the timestamp of hour h of the representative year.
func HourTimestamp(h int) time.Time {
	return time.Date(RepresentativeYear, time.January, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
}

// Site is the metadata a PV simulator reports alongside its output. The
// projection engine does not use it.
type Site struct {
	City      string  `json:"city"`
	State     string  `json:"state"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation float64 `json:"elevation"`
}

// Simulation is the output of a PV simulator run.
type Simulation struct {
	Site    Site               `json:"site"`
	Samples []GenerationSample `json:"-"`
}
