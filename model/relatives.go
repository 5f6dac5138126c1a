package model

// RelativesDiff reports the ids present in next but not prev, and vice versa.
// Order within each result follows the input order; duplicates are ignored.
func RelativesDiff(prev, next []int64) (added, removed []int64) {
	prevSet := toSet(prev)
	nextSet := toSet(next)

	for _, id := range next {
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
			prevSet[id] = struct{}{} // swallow duplicates
		}
	}

	for _, id := range prev {
		if _, ok := nextSet[id]; !ok {
			removed = append(removed, id)
			nextSet[id] = struct{}{}
		}
	}

	return added, removed
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
