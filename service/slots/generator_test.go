package slots

import (
	"testing"
	"time"

	"github.com/solacehq/solace-server/cmd/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayWindow(start, end string) []models.WeeklyAvailability {
	return []models.WeeklyAvailability{
		{CounsellorID: 1, DayOfWeek: int(time.Monday), Enabled: true, StartTime: start, EndTime: end},
	}
}

func TestGenerateMondayWindow(t *testing.T) {
	// counsellor enables Monday 09:00-11:00, 60 minute sessions, nothing booked
	week := mondayWindow("09:00", "11:00")
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC) // a Monday
	now := time.Date(2026, 9, 6, 12, 0, 0, 0, time.UTC)

	got := Generate(1, week, nil, from, 7, 60, now)

	require.Len(t, got, 2)
	assert.Equal(t, Slot{CounsellorID: 1, Date: "2026-09-07", StartTime: "09:00", EndTime: "10:00"}, got[0])
	assert.Equal(t, Slot{CounsellorID: 1, Date: "2026-09-07", StartTime: "10:00", EndTime: "11:00"}, got[1])
}

func TestGeneratePartialChunkDiscarded(t *testing.T) {
	// 09:00-10:30 with 60 minute slots only fits one full chunk
	week := mondayWindow("09:00", "10:30")
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	got := Generate(1, week, nil, from, 1, 60, now)

	require.Len(t, got, 1)
	assert.Equal(t, "09:00", got[0].StartTime)
	assert.Equal(t, "10:00", got[0].EndTime)
}

func TestGenerateDropsPastSlotsToday(t *testing.T) {
	week := mondayWindow("09:00", "12:00")
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	// 10:30 on the same Monday: 09:00 and 10:00 starts are in the past
	now := time.Date(2026, 9, 7, 10, 30, 0, 0, time.UTC)

	got := Generate(1, week, nil, from, 1, 60, now)

	require.Len(t, got, 1)
	assert.Equal(t, "11:00", got[0].StartTime)
}

func TestGenerateSkipsDatesBeforeToday(t *testing.T) {
	week := mondayWindow("09:00", "11:00")
	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC) // previous Monday
	now := time.Date(2026, 9, 3, 8, 0, 0, 0, time.UTC)

	got := Generate(1, week, nil, from, 14, 60, now)

	for _, s := range got {
		assert.GreaterOrEqual(t, s.Date, "2026-09-03")
	}
	require.Len(t, got, 2) // only 2026-09-07 survives
}

func TestGenerateExcludesBookedSlots(t *testing.T) {
	week := mondayWindow("09:00", "12:00")
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	appointments := []models.Appointment{
		{CounsellorID: 1, Date: monday, StartTime: "10:00", EndTime: "11:00", Status: models.StatusConfirmed},
		// cancelled bookings do not block slots
		{CounsellorID: 1, Date: monday, StartTime: "09:00", EndTime: "10:00", Status: models.StatusCancelled},
		// other counsellors' bookings are ignored
		{CounsellorID: 2, Date: monday, StartTime: "11:00", EndTime: "12:00", Status: models.StatusConfirmed},
	}

	got := Generate(1, week, appointments, from, 1, 60, now)

	require.Len(t, got, 2)
	assert.Equal(t, "09:00", got[0].StartTime)
	assert.Equal(t, "11:00", got[1].StartTime)
}

func TestGeneratePendingBookingBlocksPartialOverlap(t *testing.T) {
	week := mondayWindow("09:00", "12:00")
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	// a 90 minute pending booking straddling two hourly chunks blocks both
	appointments := []models.Appointment{
		{CounsellorID: 1, Date: monday, StartTime: "09:30", EndTime: "11:00", Status: models.StatusPending},
	}

	got := Generate(1, week, appointments, from, 1, 60, now)

	require.Len(t, got, 1)
	assert.Equal(t, "11:00", got[0].StartTime)
}

func TestGenerateDeterministic(t *testing.T) {
	week := []models.WeeklyAvailability{
		{CounsellorID: 1, DayOfWeek: int(time.Monday), Enabled: true, StartTime: "09:00", EndTime: "17:00"},
		{CounsellorID: 1, DayOfWeek: int(time.Wednesday), Enabled: true, StartTime: "13:00", EndTime: "18:00"},
		{CounsellorID: 1, DayOfWeek: int(time.Friday), Enabled: false, StartTime: "09:00", EndTime: "17:00"},
	}
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 9, 7, 11, 10, 0, 0, time.UTC)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	appointments := []models.Appointment{
		{CounsellorID: 1, Date: monday, StartTime: "14:00", EndTime: "15:00", Status: models.StatusConfirmed},
	}

	first := Generate(1, week, appointments, from, 14, 30, now)
	second := Generate(1, week, appointments, from, 14, 30, now)

	assert.Equal(t, first, second)
	// ordering is ascending by (date, start)
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if prev.Date == cur.Date {
			assert.Less(t, prev.StartTime, cur.StartTime)
		} else {
			assert.Less(t, prev.Date, cur.Date)
		}
	}
	// disabled Friday produces nothing
	for _, s := range first {
		d, err := time.Parse("2006-01-02", s.Date)
		require.NoError(t, err)
		assert.NotEqual(t, time.Friday, d.Weekday())
	}
}

func TestGenerateDegenerateInputs(t *testing.T) {
	week := mondayWindow("09:00", "11:00")
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	assert.Empty(t, Generate(1, week, nil, from, 0, 60, now))
	assert.Empty(t, Generate(1, week, nil, from, 7, 0, now))
	assert.Empty(t, Generate(1, nil, nil, from, 7, 60, now))
	// window shorter than the slot length yields nothing
	assert.Empty(t, Generate(1, mondayWindow("09:00", "09:45"), nil, from, 7, 60, now))
	// inverted window yields nothing
	assert.Empty(t, Generate(1, mondayWindow("11:00", "09:00"), nil, from, 7, 60, now))
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	_, err = ParseClock("9:30am")
	assert.Error(t, err)
	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(540, 600, 570, 630))
	assert.True(t, Overlaps(540, 600, 540, 600))
	assert.True(t, Overlaps(540, 600, 500, 700))
	// touching intervals do not overlap
	assert.False(t, Overlaps(540, 600, 600, 660))
	assert.False(t, Overlaps(600, 660, 540, 600))
}
