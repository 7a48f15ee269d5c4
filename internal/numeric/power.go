package numeric

import "math"

// MilliwattToDBm converts optical power; non-positive input yields -Inf
func MilliwattToDBm(mw float64) float64 {
	if mw <= 0 || math.IsNaN(mw) {
		return math.Inf(-1)
	}
	return 10 * math.Log10(mw)
}

// DBmToMilliwatt converts optical power back to milliwatts
func DBmToMilliwatt(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// Finite reports whether f is neither NaN nor infinite
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Round rounds f to the given number of decimal places
func Round(f float64, places int) float64 {
	if !Finite(f) {
		return f
	}
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
