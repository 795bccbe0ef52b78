package solar

import (
	"math"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// rates are the per-kWh prices in effect for one year.
type rates struct {
	Retail     float64
	ThirdParty float64
}

// escalate returns the rates for the following year.
func (r rates) escalate(in types.RunInputs) rates {
	return rates{
		Retail:     r.Retail * (1 + in.RateIncrease/100),
		ThirdParty: r.ThirdParty * (1 + in.ThirdPartyRateIncrease/100),
	}
}

// month is the energy picture of a single billed month.
type month struct {
	Demand   float64
	NetUse   float64
	SolarGen float64
}

// bill is one month's bill for every scenario.
type bill struct {
	BaseCase   float64
	Community  float64
	Roof       float64
	ThirdParty float64
}

// policy computes the bills of one month under a metering policy.
type policy func(m month, r rates, in types.RunInputs) bill

var policies = map[types.MeteringType]policy{
	types.MeteringNet:        netEnergyMetering,
	types.MeteringProduction: productionMetering,
	types.MeteringExcess:     excessEnergyMetering,
}

// thirdPartyBill is the same under every policy: the customer pays retail for
// net use, the provider's rate for everything the panels produce and the
// utility's solar charge.
func thirdPartyBill(m month, r rates, in types.RunInputs) float64 {
	return r.Retail*m.NetUse + r.ThirdParty*m.SolarGen + in.UtilitySolarMonthlyCharge
}

func netEnergyMetering(m month, r rates, in types.RunInputs) bill {
	return bill{
		BaseCase:   r.Retail * m.Demand,
		Community:  r.Retail*m.NetUse + in.ComMonthlyCharge,
		Roof:       r.Retail*m.NetUse + in.UtilitySolarMonthlyCharge,
		ThirdParty: thirdPartyBill(m, r, in),
	}
}

// creditedBill charges full retail on demand less a value-of-solar credit for
// creditedKWH.
func creditedBill(m month, r rates, in types.RunInputs, creditedKWH float64) bill {
	credit := in.ValueOfSolarRate * creditedKWH
	return bill{
		BaseCase:   r.Retail * m.Demand,
		Community:  r.Retail*m.Demand + in.ComMonthlyCharge - credit,
		Roof:       r.Retail*m.Demand + in.UtilitySolarMonthlyCharge - credit,
		ThirdParty: thirdPartyBill(m, r, in),
	}
}

func productionMetering(m month, r rates, in types.RunInputs) bill {
	return creditedBill(m, r, in, m.SolarGen)
}

// excessEnergyMetering behaves like production metering while demand exceeds
// generation. Otherwise only the excess over demand earns the credit.
func excessEnergyMetering(m month, r rates, in types.RunInputs) bill {
	if m.NetUse > 0 {
		return creditedBill(m, r, in, m.SolarGen)
	}
	return creditedBill(m, r, in, math.Abs(m.NetUse))
}

// Bills are the monthly bill series of every scenario.
type Bills struct {
	BaseCase   []float64
	Community  []float64
	Roof       []float64
	ThirdParty []float64
}

func (b *Bills) append(x bill) {
	b.BaseCase = append(b.BaseCase, x.BaseCase)
	b.Community = append(b.Community, x.Community)
	b.Roof = append(b.Roof, x.Roof)
	b.ThirdParty = append(b.ThirdParty, x.ThirdParty)
}

// billYear bills the twelve months of year y (zero-based) at rates r and
// returns the rates for the next year.
func billYear(y int, r rates, p policy, totalEnergyUse, totalSolarGen []float64, in types.RunInputs) ([]bill, rates) {
	out := make([]bill, 12)
	for m := 0; m < 12; m++ {
		i := y*12 + m
		out[m] = p(month{
			Demand:   in.MonthlyDemand[m],
			NetUse:   totalEnergyUse[i],
			SolarGen: totalSolarGen[i],
		}, r, in)
	}
	return out, r.escalate(in)
}

// Bill computes the monthly bills of every scenario across the horizon.
// Rates escalate after each full year and upfront costs are charged in the
// first month.
func Bill(totalEnergyUse, totalSolarGen []float64, in types.RunInputs) (Bills, error) {
	p, ok := policies[in.MeteringType]
	if !ok {
		return Bills{}, types.Configuration("unrecognized metering type %q", in.MeteringType)
	}
	n := in.Years * 12
	if len(totalEnergyUse) != n || len(totalSolarGen) != n {
		return Bills{}, types.InvalidInput("projection length mismatch: want %d, got %d use and %d generation", n, len(totalEnergyUse), len(totalSolarGen))
	}
	if len(in.MonthlyDemand) != 12 {
		return Bills{}, types.InvalidInput("monthlyDemand must have 12 entries, got %d", len(in.MonthlyDemand))
	}

	b := Bills{
		BaseCase:   make([]float64, 0, n),
		Community:  make([]float64, 0, n),
		Roof:       make([]float64, 0, n),
		ThirdParty: make([]float64, 0, n),
	}
	r := rates{Retail: in.RetailRate, ThirdParty: in.ThirdPartyRate}
	for y := 0; y < in.Years; y++ {
		var year []bill
		year, r = billYear(y, r, p, totalEnergyUse, totalSolarGen, in)
		for _, x := range year {
			b.append(x)
		}
	}
	if n > 0 {
		b.Community[0] += in.ComUpfrontCosts
		b.Roof[0] += in.RoofUpfrontCosts
	}
	return b, nil
}
