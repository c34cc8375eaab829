package schedule

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayMorning() *Schedule {
	return &Schedule{
		Windows:  []Window{{Days: []string{"mon"}, Start: "09:00", End: "10:00"}},
		Timezone: "UTC",
		IsActive: true,
	}
}

// 2025-03-10 is a Monday.
func monday(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func TestCheck_InsideWindow(t *testing.T) {
	av, err := Check(mondayMorning(), monday(9, 30))
	require.NoError(t, err)
	assert.True(t, av.Allowed)
	require.NotNil(t, av.CurrentWindowEnd)
	assert.True(t, monday(10, 0).Equal(*av.CurrentWindowEnd))
}

func TestCheck_BoundsInclusive(t *testing.T) {
	av, err := Check(mondayMorning(), monday(9, 0))
	require.NoError(t, err)
	assert.True(t, av.Allowed)

	av, err = Check(mondayMorning(), monday(10, 0))
	require.NoError(t, err)
	assert.True(t, av.Allowed)
}

func TestCheck_AfterWindowPointsToNextWeek(t *testing.T) {
	av, err := Check(mondayMorning(), monday(10, 1))
	require.NoError(t, err)
	assert.False(t, av.Allowed)
	require.NotNil(t, av.NextWindow)
	assert.True(t, monday(9, 0).AddDate(0, 0, 7).Equal(*av.NextWindow))
	require.NotNil(t, av.TimeUntil)
	assert.Equal(t, 166, av.TimeUntil.Hours)
	assert.Equal(t, 59, av.TimeUntil.Minutes)
}

func TestCheck_LaterTodayIsNext(t *testing.T) {
	s := mondayMorning()
	s.Windows = append(s.Windows, Window{Days: []string{"Monday"}, Start: "14:30", End: "15:30"})

	av, err := Check(s, monday(12, 0))
	require.NoError(t, err)
	assert.False(t, av.Allowed)
	assert.True(t, monday(14, 30).Equal(*av.NextWindow))
	assert.Equal(t, TimeUntil{Hours: 2, Minutes: 30}, *av.TimeUntil)
}

func TestCheck_NoScheduleOrInactive(t *testing.T) {
	av, err := Check(nil, monday(3, 0))
	require.NoError(t, err)
	assert.True(t, av.Allowed)

	s := mondayMorning()
	s.IsActive = false
	av, err = Check(s, monday(3, 0))
	require.NoError(t, err)
	assert.True(t, av.Allowed)
}

func TestCheck_NoWindowDays(t *testing.T) {
	s := &Schedule{Windows: []Window{{Days: nil, Start: "09:00", End: "10:00"}}, IsActive: true}
	av, err := Check(s, monday(8, 0))
	require.NoError(t, err)
	assert.False(t, av.Allowed)
	assert.Nil(t, av.NextWindow)
	assert.Nil(t, av.TimeUntil)
}

func TestCheck_Timezone(t *testing.T) {
	s := &Schedule{
		Windows:  []Window{{Days: []string{"mon"}, Start: "09:00", End: "10:00"}},
		Timezone: "Asia/Jakarta",
		IsActive: true,
	}
	// 02:30 UTC is 09:30 in Jakarta (UTC+7).
	av, err := Check(s, monday(2, 30))
	require.NoError(t, err)
	assert.True(t, av.Allowed)
	assert.True(t, monday(3, 0).Equal(*av.CurrentWindowEnd))

	av, err = Check(s, monday(9, 30))
	require.NoError(t, err)
	assert.False(t, av.Allowed)
}

func TestCheck_InvalidInput(t *testing.T) {
	s := mondayMorning()
	s.Timezone = "Mars/Olympus"
	_, err := Check(s, monday(9, 0))
	assert.True(t, errors.Is(err, ErrInvalidTimezone))

	s = mondayMorning()
	s.Windows[0].End = "08:00"
	_, err = Check(s, monday(9, 0))
	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, 545, m)

	for _, bad := range []string{"9:05", "24:00", "12:60", "noon", ""} {
		_, err := ParseClock(bad)
		assert.True(t, errors.Is(err, ErrInvalidClock), bad)
	}
}

func TestParseWeekday(t *testing.T) {
	wd, err := ParseWeekday("Fri")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, wd)

	_, err = ParseWeekday("funday")
	assert.True(t, errors.Is(err, ErrInvalidWeekday))
}
