package recurrence

import "time"

// maxDays bounds how far past the anchor a schedule is walked.
const maxDays = 366 * 10

// Occurrences returns the due instants of r in [from, to), in order. The first
// occurrence is the anchor itself when it matches the rule; COUNT is counted
// from the anchor, not from from.
func Occurrences(r Rule, anchor, from, to time.Time) []time.Time {
	if !to.After(from) {
		return nil
	}
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	var out []time.Time
	n := 0
	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
	for i := 0; i < maxDays; i++ {
		d := day.AddDate(0, 0, i)
		at := time.Date(d.Year(), d.Month(), d.Day(), anchor.Hour(), anchor.Minute(), anchor.Second(), 0, anchor.Location())
		if !at.Before(to) {
			break
		}
		if r.Until != nil && at.After(*r.Until) {
			break
		}
		if at.Before(anchor) || !r.matches(anchor, d, i, interval) {
			continue
		}
		n++
		if r.Count > 0 && n > r.Count {
			break
		}
		if !at.Before(from) {
			out = append(out, at)
		}
	}
	return out
}

// matches reports whether day d, offset days after the anchor's date, is on
// the schedule.
func (r Rule) matches(anchor, d time.Time, offset, interval int) bool {
	switch r.Freq {
	case Daily:
		return offset%interval == 0
	case Weekly:
		weeks := daysBetween(mondayOf(anchor), mondayOf(d)) / 7
		if weeks%interval != 0 {
			return false
		}
		if len(r.ByDay) == 0 {
			return d.Weekday() == anchor.Weekday()
		}
		for _, wd := range r.ByDay {
			if d.Weekday() == wd {
				return true
			}
		}
		return false
	case Monthly:
		months := (d.Year()-anchor.Year())*12 + int(d.Month()-anchor.Month())
		if months%interval != 0 {
			return false
		}
		want := r.MonthDay
		if want == 0 {
			want = anchor.Day()
		}
		// Months without the day are skipped.
		return d.Day() == want
	}
	return false
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
