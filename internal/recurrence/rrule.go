// Package recurrence parses the RRULE subset used by recurring chore templates
// and lists the due instants a rule produces.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
)

var freqNames = [...]string{Daily: "DAILY", Weekly: "WEEKLY", Monthly: "MONTHLY"}

var weekdays = [...]string{
	time.Sunday: "SU", time.Monday: "MO", time.Tuesday: "TU", time.Wednesday: "WE",
	time.Thursday: "TH", time.Friday: "FR", time.Saturday: "SA",
}

// Rule is a parsed chore schedule. Occurrences keep the anchor's clock time.
type Rule struct {
	Freq     Freq
	Interval int            // >= 1
	ByDay    []time.Weekday // WEEKLY only; empty means the anchor's weekday
	MonthDay int            // MONTHLY only; 0 means the anchor's day
	Count    int            // 0 = unbounded
	Until    *time.Time
}

// Parse reads a rule such as "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH".
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "RRULE:"))
	if s == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	r := Rule{Interval: 1, Freq: -1}
	for _, part := range strings.Split(s, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("invalid rule part %q", part)
		}
		var err error
		switch strings.ToUpper(key) {
		case "FREQ":
			r.Freq, err = parseFreq(val)
		case "INTERVAL":
			r.Interval, err = positive(key, val, 0)
		case "BYDAY":
			r.ByDay, err = parseDays(val)
		case "BYMONTHDAY":
			r.MonthDay, err = positive(key, val, 31)
		case "COUNT":
			r.Count, err = positive(key, val, 0)
		case "UNTIL":
			var t time.Time
			t, err = parseUntil(val)
			r.Until = &t
		default:
			err = fmt.Errorf("unsupported rule key %q", key)
		}
		if err != nil {
			return Rule{}, err
		}
	}

	if r.Freq < 0 {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if len(r.ByDay) > 0 && r.Freq != Weekly {
		return Rule{}, fmt.Errorf("BYDAY needs FREQ=WEEKLY")
	}
	if r.MonthDay > 0 && r.Freq != Monthly {
		return Rule{}, fmt.Errorf("BYMONTHDAY needs FREQ=MONTHLY")
	}
	return r, nil
}

func parseFreq(val string) (Freq, error) {
	for f, name := range freqNames {
		if strings.EqualFold(val, name) {
			return Freq(f), nil
		}
	}
	return 0, fmt.Errorf("unsupported frequency %q", val)
}

func parseDays(val string) ([]time.Weekday, error) {
	var days []time.Weekday
	seen := map[time.Weekday]bool{}
	for _, d := range strings.Split(val, ",") {
		d = strings.ToUpper(strings.TrimSpace(d))
		found := false
		for wd, abbr := range weekdays {
			if abbr == d {
				if !seen[time.Weekday(wd)] {
					days = append(days, time.Weekday(wd))
					seen[time.Weekday(wd)] = true
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown day %q", d)
		}
	}
	return days, nil
}

// positive parses val as an int >= 1 and, when limit > 0, <= limit.
func positive(key, val string, limit int) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 || (limit > 0 && n > limit) {
		return 0, fmt.Errorf("invalid %s %q", strings.ToUpper(key), val)
	}
	return n, nil
}

func parseUntil(val string) (time.Time, error) {
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t, nil
	}
	t, err := time.Parse("20060102", val)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid UNTIL %q", val)
	}
	// A bare date includes that whole day.
	return t.Add(24*time.Hour - time.Second), nil
}

// String renders the rule in canonical form.
func (r Rule) String() string {
	parts := []string{"FREQ=" + freqNames[r.Freq]}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = weekdays[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	if r.MonthDay > 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.MonthDay))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ";")
}

// Describe returns a short human-readable summary, e.g. "every 2 weeks on Mon, Thu".
func (r Rule) Describe() string {
	unit := [...]string{Daily: "day", Weekly: "week", Monthly: "month"}[r.Freq]
	out := "every " + unit
	if r.Interval > 1 {
		out = fmt.Sprintf("every %d %ss", r.Interval, unit)
	}
	if len(r.ByDay) > 0 {
		names := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			names[i] = d.String()[:3]
		}
		out += " on " + strings.Join(names, ", ")
	}
	if r.MonthDay > 0 {
		out += fmt.Sprintf(" on day %d", r.MonthDay)
	}
	return out
}
