package notifications

// Partition splits ids into consecutive batches of at most size elements,
// preserving order. The last batch holds the remainder. Batches share the
// backing array of ids but cannot append into each other.
func Partition(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		batches = append(batches, ids[i:end:end])
	}
	return batches
}
