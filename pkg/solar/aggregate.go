package solar

import (
	"github.com/raterudder/solarconsumer/pkg/types"
)

// AggregateMonthly sums the hourly AC output of samples by calendar month and
// converts it to kWh. Each sample covers one hour so summed watts equal
// watt-hours. Months without samples are zero.
func AggregateMonthly(samples []types.GenerationSample) ([]float64, error) {
	if len(samples) == 0 {
		return nil, types.InvalidInput("no generation samples")
	}
	monthly := make([]float64, 12)
	for i, s := range samples {
		if s.TS.IsZero() {
			return nil, types.InvalidInput("generation sample %d has no timestamp", i)
		}
		monthly[s.TS.Month()-1] += s.Watts
	}
	for m := range monthly {
		monthly[m] /= 1000
	}
	return monthly, nil
}
