package utils

// UniqueUint removes duplicate values from a slice of uints, keeping first occurrences in order.
func UniqueUint(slice []uint) []uint {
	seen := make(map[uint]struct{}, len(slice))
	list := make([]uint, 0, len(slice))
	for _, v := range slice {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		list = append(list, v)
	}
	return list
}
