// Package solar projects multi-year electricity costs for a household
// choosing between no solar, community solar, a leased rooftop system and a
// purchased rooftop system.
//
// The computation is pure: it performs no I/O, keeps no state between calls
// and is safe to call concurrently.
package solar

import (
	"github.com/raterudder/solarconsumer/pkg/types"
)

// Assumptions documented in every projection.
var Assumptions = []string{
	"monthly demand is held constant across all years; only generation degrades and rates escalate",
	"panel output degrades by 0.5% per year",
	"retail and third-party rates escalate once per year starting in year 2",
	"excess energy metering charges full retail on demand when demand exceeds generation",
	"upfront costs are charged in the first month",
}

// Compute runs the full projection from hourly generation samples.
func Compute(samples []types.GenerationSample, in types.RunInputs) (*types.Projection, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	monthly, err := AggregateMonthly(samples)
	if err != nil {
		return nil, err
	}
	return ComputeMonthly(monthly, in)
}

// ComputeMonthly runs the projection from year-one monthly generation in kWh.
func ComputeMonthly(monthlyGen []float64, in types.RunInputs) (*types.Projection, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if len(monthlyGen) != 12 {
		return nil, types.InvalidInput("monthly generation must have 12 entries, got %d", len(monthlyGen))
	}

	totalSolarGen, totalEnergyUse := Project(monthlyGen, in.MonthlyDemand, in.Years)
	bills, err := Bill(totalEnergyUse, totalSolarGen, in)
	if err != nil {
		return nil, err
	}

	var demand float64
	for _, d := range in.MonthlyDemand {
		demand += d
	}
	totalDemand := demand * float64(in.Years)

	p := &types.Projection{
		Years:           in.Years,
		MonthlySolarGen: append([]float64(nil), monthlyGen...),
		TotalSolarGen:   totalSolarGen,
		TotalEnergyUse:  totalEnergyUse,
		Assumptions:     Assumptions,
	}
	if p.BaseCase, err = summarize(types.ScenarioBaseCase, bills.BaseCase, nil, totalDemand); err != nil {
		return nil, err
	}
	if p.Community, err = summarize(types.ScenarioCommunity, bills.Community, bills.BaseCase, totalDemand); err != nil {
		return nil, err
	}
	if p.Roof, err = summarize(types.ScenarioRoof, bills.Roof, bills.BaseCase, totalDemand); err != nil {
		return nil, err
	}
	if p.ThirdParty, err = summarize(types.ScenarioThirdParty, bills.ThirdParty, bills.BaseCase, totalDemand); err != nil {
		return nil, err
	}
	if p.GreenElectrons, err = GreenElectrons(totalSolarGen, in.MonthlyDemand, in.Years, in.GreenFuelMix); err != nil {
		return nil, err
	}
	return p, nil
}
