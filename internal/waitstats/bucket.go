package waitstats

import "time"

// Time-of-day buckets, keyed off the ticket's registration time in the
// branch time zone.
//
//	lunch     → open until 14:00 (early mornings count as lunch)
//	afternoon → 14:00 to 17:00
//	dinner    → 17:00 to 21:00
//	late      → 21:00 to closing
const (
	BucketLunch     = "lunch"
	BucketAfternoon = "afternoon"
	BucketDinner    = "dinner"
	BucketLate      = "late"
)

// BucketFor maps a timestamp to its time-of-day bucket in loc.
func BucketFor(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	totalMin := local.Hour()*60 + local.Minute()

	// 14:00 = 840, 17:00 = 1020, 21:00 = 1260
	switch {
	case totalMin < 840:
		return BucketLunch
	case totalMin < 1020:
		return BucketAfternoon
	case totalMin < 1260:
		return BucketDinner
	default:
		return BucketLate
	}
}

// DayKey renders the stats partition key for a timestamp in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
