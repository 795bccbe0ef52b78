package solar

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// Cumulative returns the running sum of xs.
func Cumulative(xs []float64) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		out[i] = sum
	}
	return out
}

// SimplePayback scans the monthly savings in cashflow and returns the number
// of months until their running sum first becomes non-negative, interpolated
// within the month that crosses zero. ok is false if it never does.
func SimplePayback(cashflow []float64) (months float64, ok bool) {
	var prev float64
	for i, v := range cashflow {
		cum := prev + v
		if cum >= 0 {
			if i == 0 {
				return 0, true
			}
			// prev < 0 and v > -prev, so the fraction is within (0, 1]
			return float64(i-1) + math.Abs(prev)/v, true
		}
		prev = cum
	}
	return 0, false
}

// summarize derives the scalar metrics of a scenario. base is nil for the
// base case itself.
func summarize(s types.Scenario, bills, base []float64, totalDemand float64) (types.ScenarioResult, error) {
	total, err := stats.Sum(bills)
	if err != nil {
		return types.ScenarioResult{}, types.InvalidInput("%s: cannot total an empty bill series", s)
	}
	avg, err := stats.Mean(bills)
	if err != nil {
		return types.ScenarioResult{}, types.InvalidInput("%s: cannot average an empty bill series", s)
	}
	if totalDemand == 0 {
		return types.ScenarioResult{}, types.InvalidInput("%s: total demand is zero", s)
	}
	res := types.ScenarioResult{
		Scenario:       s,
		MonthlyBills:   bills,
		Cumulative:     Cumulative(bills),
		TotalCost:      total,
		AvgMonthlyBill: avg,
		CostPerKWH:     total / totalDemand,
	}
	if base == nil {
		return res, nil
	}

	baseTotal, err := stats.Sum(base)
	if err != nil {
		return types.ScenarioResult{}, types.InvalidInput("%s: empty base case series", s)
	}
	res.TotalSaved = baseTotal - total

	savings := make([]float64, len(bills))
	for i := range bills {
		savings[i] = base[i] - bills[i]
	}
	if months, ok := SimplePayback(savings); ok {
		years := months / 12
		res.PaybackYears = &years
	}
	return res, nil
}

// GreenElectrons returns the percentage of lifetime consumption supplied by
// green sources: solar counts as fully green, the remainder at the grid's
// greenFuelMix.
func GreenElectrons(totalSolarGen, monthlyDemand []float64, years int, greenFuelMix float64) (float64, error) {
	sumDemand := 0.0
	for _, d := range monthlyDemand {
		sumDemand += d
	}
	sumDemand *= float64(years)
	if sumDemand == 0 {
		return 0, types.InvalidInput("lifetime demand is zero")
	}
	sumSolar := 0.0
	for _, g := range totalSolarGen {
		sumSolar += g
	}
	if sumSolar >= sumDemand {
		return 100, nil
	}
	green := (sumDemand-sumSolar)/sumDemand*greenFuelMix + sumSolar/sumDemand*100
	return math.Max(0, math.Min(100, green)), nil
}
