package engine

// MaterialEntry caches a single material/material-cache evaluation for a
// position hash. Shogi has no chess-style pawn-structure evaluation term
// in this engine (material + NNUE only, spec §4.2), so the teacher's pawn
// hash table is repurposed as a small material-sum cache keyed the same
// way, saving the PopCount loop in EvaluateMaterial for repeated probes
// of the same position (common under LazySMP, where helpers revisit
// positions the primary already evaluated).
type MaterialEntry struct {
	Key   uint64
	Score int32
}

// MaterialCache is a hash table for caching material evaluations.
type MaterialCache struct {
	entries []MaterialEntry
	mask    uint64
}

// NewMaterialCache creates a cache sized in MB.
func NewMaterialCache(sizeMB int) *MaterialCache {
	entrySize := 12
	numEntries := (sizeMB * 1024 * 1024) / entrySize

	size := 1
	for size*2 <= numEntries {
		size *= 2
	}
	if size < 1 {
		size = 1
	}

	return &MaterialCache{
		entries: make([]MaterialEntry, size),
		mask:    uint64(size - 1),
	}
}

// Probe looks up a cached material evaluation.
func (mc *MaterialCache) Probe(key uint64) (score int, found bool) {
	entry := &mc.entries[key&mc.mask]
	if entry.Key == key {
		return int(entry.Score), true
	}
	return 0, false
}

// Store saves a material evaluation.
func (mc *MaterialCache) Store(key uint64, score int) {
	entry := &mc.entries[key&mc.mask]
	entry.Key = key
	entry.Score = int32(score)
}

// Clear empties the cache.
func (mc *MaterialCache) Clear() {
	for i := range mc.entries {
		mc.entries[i] = MaterialEntry{}
	}
}
