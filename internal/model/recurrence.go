package model

import "time"

// DueDateLayout is the wire form of recurring-bill due dates.
const DueDateLayout = "2006-01-02"

// NextDueDate searches forward from the given day for the first date the
// rule falls due. Used when a rule is created or edited.
func NextDueDate(rule RecurrenceRule, from time.Time) time.Time {
	day := truncateToDay(from)
	switch rule.Frequency {
	case Weekly:
		if rule.DayOfWeek != nil {
			delta := (*rule.DayOfWeek - int(day.Weekday()) + 7) % 7
			return day.AddDate(0, 0, delta)
		}
		return day
	case Monthly:
		want := day.Day()
		if rule.DayOfMonth != nil {
			want = *rule.DayOfMonth
		}
		due := dateWithClampedDay(day.Year(), day.Month(), want)
		if due.Before(day) {
			due = addMonthsClamped(due, 1, want)
		}
		return due
	case Yearly:
		return day
	default: // Daily
		return day
	}
}

// AdvanceDueDate advances a due date by one rule interval. Month arithmetic
// clamps to the last valid day instead of normalizing into the next month,
// so a dayOfMonth=31 template due Jan 31 lands on Feb 28 (29 in leap years),
// not Mar 3.
func AdvanceDueDate(rule RecurrenceRule, prev time.Time) time.Time {
	interval := rule.Interval
	if interval <= 0 {
		interval = 1
	}
	prev = truncateToDay(prev)
	switch rule.Frequency {
	case Daily:
		return prev.AddDate(0, 0, interval)
	case Weekly:
		return prev.AddDate(0, 0, 7*interval)
	case Monthly:
		want := prev.Day()
		if rule.DayOfMonth != nil {
			want = *rule.DayOfMonth
		}
		return addMonthsClamped(prev, interval, want)
	case Yearly:
		want := prev.Day()
		return addMonthsClamped(prev, 12*interval, want)
	default:
		return prev.AddDate(0, 0, interval)
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func addMonthsClamped(t time.Time, months, wantDay int) time.Time {
	y, m := t.Year(), int(t.Month())
	m += months
	y += (m - 1) / 12
	m = (m-1)%12 + 1
	return dateWithClampedDay(y, time.Month(m), wantDay)
}

func dateWithClampedDay(year int, month time.Month, day int) time.Time {
	last := daysIn(year, month)
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
