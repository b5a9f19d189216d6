package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intp(v int) *int { return &v }

func TestAdvanceDueDateMonthEndClamp(t *testing.T) {
	rule := RecurrenceRule{Frequency: Monthly, Interval: 1, DayOfMonth: intp(31)}

	got := AdvanceDueDate(rule, day(2025, time.January, 31))
	assert.Equal(t, day(2025, time.February, 28), got)

	// Leap year keeps the 29th.
	got = AdvanceDueDate(rule, day(2024, time.January, 31))
	assert.Equal(t, day(2024, time.February, 29), got)

	// Recovers the 31st once the month allows it again.
	got = AdvanceDueDate(rule, day(2025, time.February, 28))
	assert.Equal(t, day(2025, time.March, 31), got)
}

func TestAdvanceDueDateIntervals(t *testing.T) {
	assert.Equal(t, day(2025, time.June, 4),
		AdvanceDueDate(RecurrenceRule{Frequency: Daily, Interval: 3}, day(2025, time.June, 1)))

	assert.Equal(t, day(2025, time.June, 15),
		AdvanceDueDate(RecurrenceRule{Frequency: Weekly, Interval: 2}, day(2025, time.June, 1)))

	assert.Equal(t, day(2026, time.June, 1),
		AdvanceDueDate(RecurrenceRule{Frequency: Yearly, Interval: 1}, day(2025, time.June, 1)))

	// Zero interval is treated as one.
	assert.Equal(t, day(2025, time.July, 1),
		AdvanceDueDate(RecurrenceRule{Frequency: Monthly}, day(2025, time.June, 1)))
}

func TestAdvanceDueDateYearRollover(t *testing.T) {
	rule := RecurrenceRule{Frequency: Monthly, Interval: 1, DayOfMonth: intp(15)}
	got := AdvanceDueDate(rule, day(2025, time.December, 15))
	assert.Equal(t, day(2026, time.January, 15), got)
}

func TestNextDueDateSearchesForward(t *testing.T) {
	// Wednesday June 4 2025; want next Monday.
	rule := RecurrenceRule{Frequency: Weekly, Interval: 1, DayOfWeek: intp(1)}
	assert.Equal(t, day(2025, time.June, 9), NextDueDate(rule, day(2025, time.June, 4)))

	// Same weekday counts as due today.
	rule.DayOfWeek = intp(3)
	assert.Equal(t, day(2025, time.June, 4), NextDueDate(rule, day(2025, time.June, 4)))

	// Monthly: day already passed this month rolls to next month.
	m := RecurrenceRule{Frequency: Monthly, Interval: 1, DayOfMonth: intp(2)}
	assert.Equal(t, day(2025, time.July, 2), NextDueDate(m, day(2025, time.June, 4)))

	// Monthly day-of-month clamp applies on the search too.
	m.DayOfMonth = intp(31)
	assert.Equal(t, day(2025, time.June, 30), NextDueDate(m, day(2025, time.June, 4)))
}

func TestSubscriptionValidity(t *testing.T) {
	start := day(2025, time.January, 1)
	monthly := &Subscription{Provider: "stripe", StartDate: start, Duration: DurationMonthly}
	yearly := &Subscription{Provider: "paypal", StartDate: start, Duration: DurationYearly}

	assert.True(t, monthly.ValidAt(start.Add(30*24*time.Hour)))
	assert.False(t, monthly.ValidAt(start.Add(32*24*time.Hour)))

	assert.True(t, yearly.ValidAt(start.Add(365*24*time.Hour)))
	assert.False(t, yearly.ValidAt(start.Add(367*24*time.Hour)))
}
