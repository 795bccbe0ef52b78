package types

import "math"

// MeteringType is the billing policy that determines how solar generation is
// credited against consumption.
type MeteringType string

const (
	// MeteringNet credits generation 1:1 at the retail rate.
	MeteringNet MeteringType = "netEnergyMetering"
	// MeteringProduction credits all generation at the value-of-solar rate.
	MeteringProduction MeteringType = "production"
	// MeteringExcess credits only generation in excess of same-month demand
	// at the value-of-solar rate.
	MeteringExcess MeteringType = "excessEnergyMetering"
)

// MeteringTypes lists every recognized metering type.
var MeteringTypes = []MeteringType{MeteringNet, MeteringProduction, MeteringExcess}

// Valid reports whether m is one of the recognized metering types.
func (m MeteringType) Valid() bool {
	for _, v := range MeteringTypes {
		if m == v {
			return true
		}
	}
	return false
}

// MeteringTypeInfo describes a metering type for listing endpoints.
type MeteringTypeInfo struct {
	ID          MeteringType `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
}

// ListMeteringTypes describes every recognized metering type.
func ListMeteringTypes() []MeteringTypeInfo {
	return []MeteringTypeInfo{
		{
			ID:          MeteringNet,
			Name:        "Net Energy Metering",
			Description: "Generation offsets consumption 1:1 at the retail rate.",
		},
		{
			ID:          MeteringProduction,
			Name:        "Production Metering",
			Description: "All generation is credited at the value-of-solar rate.",
		},
		{
			ID:          MeteringExcess,
			Name:        "Excess Energy Metering",
			Description: "Only generation above same-month demand is credited at the value-of-solar rate.",
		},
	}
}

// MaxYears bounds the projection horizon.
const MaxYears = 100

// RunInputs is the validated parameter set for one projection.
//
// Rates are in $/kWh, increases in percent per year, charges and costs in $,
// GreenFuelMix in percent.
type RunInputs struct {
	SystemSize    float64      `json:"systemSize" yaml:"systemSize"`
	Years         int          `json:"years" yaml:"years"`
	MonthlyDemand []float64    `json:"monthlyDemand" yaml:"monthlyDemand"`
	MeteringType  MeteringType `json:"meteringType" yaml:"meteringType"`
	ZipCode       string       `json:"zipCode,omitempty" yaml:"zipCode"`

	RetailRate                float64 `json:"retailRate" yaml:"retailRate"`
	RateIncrease              float64 `json:"rateIncrease" yaml:"rateIncrease"`
	ThirdPartyRate            float64 `json:"thirdPartyRate" yaml:"thirdPartyRate"`
	ThirdPartyRateIncrease    float64 `json:"thirdPartyRateIncrease" yaml:"thirdPartyRateIncrease"`
	ValueOfSolarRate          float64 `json:"valueOfSolarRate" yaml:"valueOfSolarRate"`
	ComMonthlyCharge          float64 `json:"comMonthlyCharge" yaml:"comMonthlyCharge"`
	ComUpfrontCosts           float64 `json:"comUpfrontCosts" yaml:"comUpfrontCosts"`
	UtilitySolarMonthlyCharge float64 `json:"utilitySolarMonthlyCharge" yaml:"utilitySolarMonthlyCharge"`
	RoofUpfrontCosts          float64 `json:"roofUpfrontCosts" yaml:"roofUpfrontCosts"`
	GreenFuelMix              float64 `json:"greenFuelMix" yaml:"greenFuelMix"`
}

// Validate checks the invariants of RunInputs. An unknown metering type is a
// configuration error, everything else is an invalid input.
func (in RunInputs) Validate() error {
	if !in.MeteringType.Valid() {
		return Configuration("unrecognized metering type %q", in.MeteringType)
	}
	if !(in.SystemSize > 0) {
		return InvalidInput("systemSize must be > 0, got %v", in.SystemSize)
	}
	if in.Years <= 0 {
		return InvalidInput("years must be > 0, got %d", in.Years)
	}
	if in.Years > MaxYears {
		return InvalidInput("years must be <= %d, got %d", MaxYears, in.Years)
	}
	if len(in.MonthlyDemand) != 12 {
		return InvalidInput("monthlyDemand must have 12 entries, got %d", len(in.MonthlyDemand))
	}
	for i, d := range in.MonthlyDemand {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return InvalidInput("monthlyDemand[%d] must be a non-negative number, got %v", i, d)
		}
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"retailRate", in.RetailRate},
		{"rateIncrease", in.RateIncrease},
		{"thirdPartyRate", in.ThirdPartyRate},
		{"thirdPartyRateIncrease", in.ThirdPartyRateIncrease},
		{"valueOfSolarRate", in.ValueOfSolarRate},
		{"comMonthlyCharge", in.ComMonthlyCharge},
		{"comUpfrontCosts", in.ComUpfrontCosts},
		{"utilitySolarMonthlyCharge", in.UtilitySolarMonthlyCharge},
		{"roofUpfrontCosts", in.RoofUpfrontCosts},
		{"greenFuelMix", in.GreenFuelMix},
	}
	for _, f := range fields {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return InvalidInput("%s must be a non-negative number, got %v", f.name, f.v)
		}
	}
	if in.GreenFuelMix > 100 {
		return InvalidInput("greenFuelMix must be within [0, 100], got %v", in.GreenFuelMix)
	}
	return nil
}
