package policy

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

func snapAt(t time.Time, bucket TimerInterval, keepForever bool) def.Snapshot {
	return def.Snapshot{
		CapsuleID:   "cap-1",
		TakenAt:     t,
		Metadata:    map[string]string{"bucket": string(bucket)},
		KeepForever: keepForever,
	}
}

func TestRetentionApply(t *testing.T) {
	Convey("Given 3 hourly snapshots with KeepPerBucket[Hourly] = 1", t, func() {
		now := time.Now()
		snaps := []def.Snapshot{
			snapAt(now.Add(-2*time.Hour), Hourly, false),
			snapAt(now.Add(-1*time.Hour), Hourly, false),
			snapAt(now, Hourly, false),
		}
		rule := RetentionRule{KeepPerBucket: map[TimerInterval]int{Hourly: 1}}

		Convey("Apply deletes all but the newest", func() {
			toDelete := rule.Apply(snaps, bucketOf)
			So(toDelete, ShouldHaveLength, 2)
			for _, k := range toDelete {
				So(k.TakenAt, ShouldNotEqual, now)
			}
		})

		Convey("A KeepForever snapshot is never deleted even past its bucket quota", func() {
			snaps[0].KeepForever = true
			toDelete := rule.Apply(snaps, bucketOf)
			So(toDelete, ShouldHaveLength, 1)
			So(toDelete[0].TakenAt, ShouldEqual, snaps[1].TakenAt)
		})
	})

	Convey("Given survivors across buckets exceeding CapTotal", t, func() {
		now := time.Now()
		snaps := []def.Snapshot{
			snapAt(now.Add(-3*time.Hour), Hourly, false),
			snapAt(now.Add(-2*time.Hour), Daily, false),
			snapAt(now.Add(-1*time.Hour), Weekly, false),
		}
		rule := RetentionRule{
			KeepPerBucket: map[TimerInterval]int{Hourly: 1, Daily: 1, Weekly: 1},
			CapTotal:      2,
		}

		Convey("the globally oldest survivor is deleted to respect CapTotal", func() {
			toDelete := rule.Apply(snaps, bucketOf)
			So(toDelete, ShouldHaveLength, 1)
			So(toDelete[0].TakenAt, ShouldEqual, snaps[0].TakenAt)
		})
	})
}
