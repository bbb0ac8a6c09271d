package heat

import "sort"

// BoilingThreshold is the heat score at which a post or kettle is boiling.
const BoilingThreshold = 100

// IsBoiling reports whether a heat score has reached the boiling threshold.
func IsBoiling(heatScore int) bool {
	return heatScore >= BoilingThreshold
}

// DisplayHeat clamps transiently negative scores to zero for display.
func DisplayHeat(heatScore int) int {
	if heatScore < 0 {
		return 0
	}
	return heatScore
}

// KettleHeat is the minimal view the directory sort needs.
type KettleHeat interface {
	Heat() int
}

// SortKettlesByHeat orders a kettle directory for display: boiling kettles
// first (stable among themselves by descending heat), then the rest by
// descending heat. This is a two-key sort; the boiling flag is compared
// before the numeric score so a 100/99 pair never ties.
func SortKettlesByHeat[T KettleHeat](kettles []T) {
	sort.SliceStable(kettles, func(i, j int) bool {
		left, right := kettles[i].Heat(), kettles[j].Heat()
		leftBoiling, rightBoiling := IsBoiling(left), IsBoiling(right)
		if leftBoiling != rightBoiling {
			return leftBoiling
		}
		return left > right
	})
}
