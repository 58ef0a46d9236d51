package appointment

import (
	"sort"
	"time"
)

type View string

const (
	ViewToday     View = "today"
	ViewUpcoming  View = "upcoming"
	ViewPast      View = "past"
	ViewCancelled View = "cancelled"
	ViewUndated   View = "undated"
)

// Buckets partitions an appointment collection relative to a reference day.
// The five slices are disjoint and together hold every input record.
type Buckets struct {
	Reference time.Time
	Today     []Appointment
	Upcoming  []Appointment
	Past      []Appointment
	Cancelled []Appointment
	// Undated holds non-cancelled records whose date is missing or malformed.
	Undated []Appointment
}

// Bucket derives the time-bucketed views from all. The input slice is not
// modified.
func Bucket(all []Appointment, ref time.Time) Buckets {
	day := CalendarDay(ref)
	b := Buckets{Reference: day}

	for _, a := range all {
		if a.Status == StatusCancelled {
			b.Cancelled = append(b.Cancelled, a)
			continue
		}

		d, err := ParseDate(a.ScheduledDate)
		switch {
		case err != nil:
			b.Undated = append(b.Undated, a)
		case d.Equal(day):
			b.Today = append(b.Today, a)
		case d.After(day):
			b.Upcoming = append(b.Upcoming, a)
		default:
			b.Past = append(b.Past, a)
		}
	}

	for _, s := range [][]Appointment{b.Today, b.Upcoming, b.Past, b.Cancelled, b.Undated} {
		sortBySchedule(s)
	}
	return b
}

// PastView is the default "past" screen: dated past records followed by the
// undated ones.
func (b Buckets) PastView() []Appointment {
	out := make([]Appointment, 0, len(b.Past)+len(b.Undated))
	out = append(out, b.Past...)
	return append(out, b.Undated...)
}

// View returns a single bucket by name; ok is false for unknown names.
func (b Buckets) View(v View) (items []Appointment, ok bool) {
	switch v {
	case ViewToday:
		return b.Today, true
	case ViewUpcoming:
		return b.Upcoming, true
	case ViewPast:
		return b.Past, true
	case ViewCancelled:
		return b.Cancelled, true
	case ViewUndated:
		return b.Undated, true
	}
	return nil, false
}

func (b Buckets) Counts() map[View]int {
	return map[View]int{
		ViewToday:     len(b.Today),
		ViewUpcoming:  len(b.Upcoming),
		ViewPast:      len(b.Past),
		ViewCancelled: len(b.Cancelled),
		ViewUndated:   len(b.Undated),
	}
}

type scheduleKey struct {
	day     time.Time
	dayOK   bool
	clock   time.Duration
	clockOK bool
}

func keyOf(a Appointment) scheduleKey {
	var k scheduleKey
	if d, err := ParseDate(a.ScheduledDate); err == nil {
		k.day, k.dayOK = d, true
	}
	k.clock, k.clockOK = parseClock(a.ScheduledTime)
	return k
}

func (k scheduleKey) less(o scheduleKey) bool {
	if k.dayOK != o.dayOK {
		return k.dayOK
	}
	if k.dayOK && !k.day.Equal(o.day) {
		return k.day.Before(o.day)
	}
	if k.clockOK != o.clockOK {
		return k.clockOK
	}
	return k.clock < o.clock
}

// sortBySchedule orders by (date, time) ascending in place. Unparsable dates
// go last, unparsable times go after the parsable ones of the same day.
func sortBySchedule(items []Appointment) {
	if len(items) < 2 {
		return
	}
	keys := make(map[int]scheduleKey, len(items))
	idx := make([]int, len(items))
	for i := range items {
		idx[i] = i
		keys[i] = keyOf(items[i])
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return keys[idx[i]].less(keys[idx[j]])
	})

	sorted := make([]Appointment, len(items))
	for i, k := range idx {
		sorted[i] = items[k]
	}
	copy(items, sorted)
}
