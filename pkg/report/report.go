// Package report turns a projection into the tables shown to users: a
// monthly ledger and the "Costs By Purchase Type" summary.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// NotAvailable is shown where a metric does not apply to a scenario.
const NotAvailable = "Not Available"

// Amount is a quantity rounded half away from zero to two decimal places.
type Amount struct {
	d decimal.Decimal
}

// NewAmount rounds f to two decimal places.
func NewAmount(f float64) Amount {
	return Amount{d: decimal.NewFromFloat(f).Round(2)}
}

func (a Amount) String() string {
	return a.d.StringFixed(2)
}

// Float64 returns the rounded value.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (a Amount) MarshalCSV() (string, error) {
	return a.String(), nil
}

// MarshalJSON writes the amount as a bare number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// LedgerRow is one month of a projection.
type LedgerRow struct {
	Year     int    `csv:"year" json:"year"`
	Month    int    `csv:"month" json:"month"`
	SolarGen Amount `csv:"solar_gen_kwh" json:"solarGenKWh"`
	NetUse   Amount `csv:"net_use_kwh" json:"netUseKWh"`

	BaseCase   Amount `csv:"no_solar" json:"baseCase"`
	Community  Amount `csv:"community_solar" json:"communitySolar"`
	Roof       Amount `csv:"purchased_rooftop" json:"purchasedRooftop"`
	ThirdParty Amount `csv:"leased_rooftop" json:"thirdPartyRooftop"`

	CumulativeBaseCase   Amount `csv:"cumulative_no_solar" json:"cumulativeBaseCase"`
	CumulativeCommunity  Amount `csv:"cumulative_community_solar" json:"cumulativeCommunitySolar"`
	CumulativeRoof       Amount `csv:"cumulative_purchased_rooftop" json:"cumulativePurchasedRooftop"`
	CumulativeThirdParty Amount `csv:"cumulative_leased_rooftop" json:"cumulativeThirdPartyRooftop"`
}

// Ledger returns one row per projected month.
func Ledger(p *types.Projection) []LedgerRow {
	n := len(p.TotalSolarGen)
	rows := make([]LedgerRow, n)
	for i := 0; i < n; i++ {
		rows[i] = LedgerRow{
			Year:     i/12 + 1,
			Month:    i%12 + 1,
			SolarGen: NewAmount(p.TotalSolarGen[i]),
			NetUse:   NewAmount(at(p.TotalEnergyUse, i)),

			BaseCase:   NewAmount(at(p.BaseCase.MonthlyBills, i)),
			Community:  NewAmount(at(p.Community.MonthlyBills, i)),
			Roof:       NewAmount(at(p.Roof.MonthlyBills, i)),
			ThirdParty: NewAmount(at(p.ThirdParty.MonthlyBills, i)),

			CumulativeBaseCase:   NewAmount(at(p.BaseCase.Cumulative, i)),
			CumulativeCommunity:  NewAmount(at(p.Community.Cumulative, i)),
			CumulativeRoof:       NewAmount(at(p.Roof.Cumulative, i)),
			CumulativeThirdParty: NewAmount(at(p.ThirdParty.Cumulative, i)),
		}
	}
	return rows
}

func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

// WriteLedgerCSV writes rows with a header line.
func WriteLedgerCSV(w io.Writer, rows []LedgerRow) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write ledger csv: %w", err)
	}
	return nil
}

// SummaryRow is one scenario of the "Costs By Purchase Type" table.
type SummaryRow struct {
	Scenario       types.Scenario `json:"scenario"`
	Label          string         `json:"label"`
	TotalCost      Amount         `json:"totalCost"`
	TotalSaved     string         `json:"totalSaved"`
	AvgMonthlyBill Amount         `json:"avgMonthlyBill"`
	CostPerKWH     string         `json:"costPerKWh"`
	Payback        string         `json:"payback"`
	GreenElectrons string         `json:"greenElectrons"`
}

// SummaryTable returns the summary rows in report order. The base case has
// no savings or payback, and its green share is the grid's greenFuelMix.
func SummaryTable(p *types.Projection, greenFuelMix float64) []SummaryRow {
	rows := make([]SummaryRow, 0, len(types.Scenarios))
	for _, s := range types.Scenarios {
		res := p.Scenario(s)
		row := SummaryRow{
			Scenario:       s,
			Label:          s.Label(),
			TotalCost:      NewAmount(res.TotalCost),
			AvgMonthlyBill: NewAmount(res.AvgMonthlyBill),
			CostPerKWH:     decimal.NewFromFloat(res.CostPerKWH).StringFixed(4),
		}
		if s == types.ScenarioBaseCase {
			row.TotalSaved = NotAvailable
			row.Payback = NotAvailable
			row.GreenElectrons = percent(greenFuelMix)
		} else {
			row.TotalSaved = NewAmount(res.TotalSaved).String()
			row.Payback = payback(res.PaybackYears)
			row.GreenElectrons = percent(p.GreenElectrons)
		}
		rows = append(rows, row)
	}
	return rows
}

func payback(years *float64) string {
	if years == nil {
		return "Never"
	}
	return decimal.NewFromFloat(*years).StringFixed(1) + " years"
}

func percent(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(1) + "%"
}

// WriteSummary writes rows as an aligned text table.
func WriteSummary(w io.Writer, rows []SummaryRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tTotal Cost\tTotal Saved\tAverage Monthly Cost\t$/kWh\tSimple Payback Period\tGreen Electrons\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Label, r.TotalCost, r.TotalSaved, r.AvgMonthlyBill, r.CostPerKWH, r.Payback, r.GreenElectrons)
	}
	return tw.Flush()
}
