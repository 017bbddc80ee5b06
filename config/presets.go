package config

// RefreshPresets are the tick cadences offered to the user, in milliseconds
var RefreshPresets = []int{
	500,
	1000,
	1000 * 2,
	1000 * 5,
	1000 * 10,
	1000 * 30,
	1000 * 60,
	1000 * 60 * 5,
}

// NotifyCooldownPresets are the notification gaps offered to the user, in milliseconds
var NotifyCooldownPresets = []int{
	1000 * 60,
	1000 * 60 * 5,
	1000 * 60 * 10,
	1000 * 60 * 15,
	1000 * 60 * 30,
	1000 * 60 * 60,
	1000 * 60 * 60 * 2,
	1000 * 60 * 60 * 4,
	1000 * 60 * 60 * 6,
}

// Nearest returns the preset closest to value and its index.
// Ties resolve to the earlier preset. An empty list yields (value, -1).
func Nearest(value int, presets []int) (int, int) {
	if len(presets) == 0 {
		return value, -1
	}
	best := 0
	bestDiff := abs(presets[0] - value)
	for i, p := range presets[1:] {
		if d := abs(p - value); d < bestDiff {
			best, bestDiff = i+1, d
		}
	}
	return presets[best], best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
