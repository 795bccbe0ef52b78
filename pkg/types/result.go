package types

import "time"

// Scenario is one of the four solar-acquisition options being compared.
type Scenario string

const (
	ScenarioBaseCase   Scenario = "baseCase"
	ScenarioCommunity  Scenario = "communitySolar"
	ScenarioRoof       Scenario = "purchasedRooftop"
	ScenarioThirdParty Scenario = "thirdPartyRooftop"
)

// Scenarios lists every scenario in report order.
var Scenarios = []Scenario{ScenarioBaseCase, ScenarioCommunity, ScenarioRoof, ScenarioThirdParty}

// Label returns the human-readable name used in reports.
func (s Scenario) Label() string {
	switch s {
	case ScenarioBaseCase:
		return "No Solar"
	case ScenarioCommunity:
		return "Community Solar"
	case ScenarioRoof:
		return "Purchased Rooftop"
	case ScenarioThirdParty:
		return "Leased Rooftop"
	default:
		return string(s)
	}
}

// ScenarioResult holds the bill series of one scenario and the metrics
// derived from it.
type ScenarioResult struct {
	Scenario       Scenario  `json:"scenario"`
	MonthlyBills   []float64 `json:"monthlyBills"`
	Cumulative     []float64 `json:"cumulative"`
	TotalCost      float64   `json:"totalCost"`
	AvgMonthlyBill float64   `json:"avgMonthlyBill"`
	CostPerKWH     float64   `json:"costPerKWH"`
	TotalSaved     float64   `json:"totalSaved"`

	// PaybackYears is the simple payback period versus the base case. It is
	// nil when the scenario never pays back, and always nil for the base case.
	PaybackYears *float64 `json:"paybackYears"`
}

// Projection is the full output of one projection.
//
// Every monthly series has Years*12 entries; index i is year i/12+1 and month
// i%12+1.
type Projection struct {
	Years           int       `json:"years"`
	MonthlySolarGen []float64 `json:"monthlySolarGen"`
	TotalSolarGen   []float64 `json:"totalSolarGen"`
	TotalEnergyUse  []float64 `json:"totalEnergyUse"`

	BaseCase   ScenarioResult `json:"baseCase"`
	Community  ScenarioResult `json:"communitySolar"`
	Roof       ScenarioResult `json:"purchasedRooftop"`
	ThirdParty ScenarioResult `json:"thirdPartyRooftop"`

	GreenElectrons float64  `json:"greenElectrons"`
	Assumptions    []string `json:"assumptions"`
}

// Scenario returns the result for s.
func (p *Projection) Scenario(s Scenario) *ScenarioResult {
	switch s {
	case ScenarioBaseCase:
		return &p.BaseCase
	case ScenarioCommunity:
		return &p.Community
	case ScenarioRoof:
		return &p.Roof
	case ScenarioThirdParty:
		return &p.ThirdParty
	default:
		return nil
	}
}

// RunStatus is the lifecycle state of a persisted run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the projection with its inputs and outcome.
type Run struct {
	ID        string            `json:"id"`
	Status    RunStatus         `json:"status"`
	Created   time.Time         `json:"created"`
	RunTime   time.Duration     `json:"runTime"`
	RawInputs map[string]string `json:"rawInputs"`
	Inputs    *RunInputs        `json:"inputs,omitempty"`
	Site      *Site             `json:"site,omitempty"`
	Result    *Projection       `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorKind ErrorKind         `json:"errorKind,omitempty"`
}
