package partition

import "hash/fnv"

// DefaultCount is the number of source partitions when none is configured.
// Changing it after records have been ingested remaps source keys, so it is a
// deployment decision, not a scaling knob.
const DefaultCount = 16

// For returns the partition ID for a given source key.
// Stable and deterministic: same sourceKey always maps to the same partition.
// Uses FNV-32a (stdlib, fast, well-distributed).
func For(sourceKey string, count int) int {
	if count <= 0 {
		count = DefaultCount
	}
	h := fnv.New32a()
	h.Write([]byte(sourceKey))
	return int(h.Sum32() % uint32(count))
}

// IDs returns the partition IDs [0, count).
func IDs(count int) []int {
	if count <= 0 {
		count = DefaultCount
	}
	ids := make([]int, count)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
