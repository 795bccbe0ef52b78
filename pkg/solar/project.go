package solar

// DegradationFactor is the fraction of the previous year's output a panel
// still produces each year.
const DegradationFactor = 0.995

// projectYear returns one year of generation and net energy use for the given
// generation vector, plus the degraded vector for the following year.
func projectYear(gen, demand []float64) (solar, use, next []float64) {
	solar = make([]float64, 12)
	use = make([]float64, 12)
	next = make([]float64, 12)
	for m := 0; m < 12; m++ {
		solar[m] = gen[m]
		use[m] = demand[m] - gen[m]
		next[m] = gen[m] * DegradationFactor
	}
	return solar, use, next
}

// Project extends year-one monthly generation over years, degrading output
// each year while demand stays constant. It returns the generation and the
// net energy use (demand minus generation) series, each years*12 long.
func Project(monthlyGen, demand []float64, years int) (totalSolarGen, totalEnergyUse []float64) {
	totalSolarGen = make([]float64, 0, years*12)
	totalEnergyUse = make([]float64, 0, years*12)
	gen := monthlyGen
	for y := 0; y < years; y++ {
		var solar, use []float64
		solar, use, gen = projectYear(gen, demand)
		totalSolarGen = append(totalSolarGen, solar...)
		totalEnergyUse = append(totalEnergyUse, use...)
	}
	return totalSolarGen, totalEnergyUse
}
