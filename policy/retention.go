package policy

import (
	"sort"

	"github.com/polydawn/capsule/api/def"
)

// Apply decides which snapshots a RetentionRule would delete out of
// all, given which bucket each one belongs to. KeepForever snapshots
// are never returned. Within each bucket the newest KeepPerBucket[bucket]
// survive; across the whole set, if the survivor count still exceeds
// CapTotal, the globally oldest survivors are deleted until it doesn't.
func (r RetentionRule) Apply(all []def.Snapshot, bucketOf func(def.Snapshot) TimerInterval) []def.SnapshotKey {
	byBucket := map[TimerInterval][]def.Snapshot{}
	for _, s := range all {
		if s.KeepForever {
			continue
		}
		b := bucketOf(s)
		byBucket[b] = append(byBucket[b], s)
	}

	var survivors []def.Snapshot
	var toDelete []def.SnapshotKey
	for bucket, snaps := range byBucket {
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].TakenAt.After(snaps[j].TakenAt) })
		keep := r.KeepPerBucket[bucket]
		for i, s := range snaps {
			if i < keep {
				survivors = append(survivors, s)
			} else {
				toDelete = append(toDelete, s.Key())
			}
		}
	}

	if r.CapTotal > 0 && len(survivors) > r.CapTotal {
		sort.Slice(survivors, func(i, j int) bool { return survivors[i].TakenAt.After(survivors[j].TakenAt) })
		for _, s := range survivors[r.CapTotal:] {
			toDelete = append(toDelete, s.Key())
		}
	}
	return toDelete
}
