package retrieval

// Rescale maps a store's raw similarity (1 - cosine_distance) onto the
// reported similarity. Both steps are kept as written.
func Rescale(raw float64) float64 {
	distance := 1 - raw
	return 1 - distance/2
}
