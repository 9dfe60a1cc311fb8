package ticket

// priorityMatrix maps urgency (row) and impact (column), both 1..5 with
// 1 the most severe, to an incident priority P1..P5. The policy is the
// table itself: changing how priorities are assigned means editing it,
// not a formula. Values never decrease along a row or column.
var priorityMatrix = [5][5]int{
	{1, 1, 1, 2, 3}, // urgency 1
	{1, 1, 2, 3, 3}, // urgency 2
	{1, 2, 3, 3, 4}, // urgency 3
	{2, 3, 3, 4, 4}, // urgency 4
	{3, 3, 4, 4, 5}, // urgency 5
}

// Priority returns the matrix priority for the given urgency and impact.
// Inputs outside 1..5 are a caller bug; they are clamped rather than
// allowed to panic on a live ticket path.
func Priority(urgency, impact int) int {
	return priorityMatrix[clamp(urgency)-1][clamp(impact)-1]
}

func clamp(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}
