package world

const ChunkSize = 16

// floorDiv rounds toward negative infinity, so block -1 lands in chunk -1.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
