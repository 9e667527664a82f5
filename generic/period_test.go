package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fleet-engine/generic"
)

func TestResolve_Month(t *testing.T) {
	rp, err := generic.Resolve(generic.Selection{Mode: generic.ModeMonth, Year: 2024, Month: time.February})
	require.NoError(t, err)

	assert.Equal(t, date(2024, time.February, 1), rp.Period.Start)
	assert.Equal(t, date(2024, time.February, 29), rp.Period.End, "leap year February")
	assert.Equal(t, generic.AxisEntity, rp.Axis)
	assert.Equal(t, "February 2024", rp.Label())
}

func TestResolve_Quarter(t *testing.T) {
	tests := []struct {
		quarter    int
		start, end generic.TimePoint
	}{
		{1, date(2025, time.January, 1), date(2025, time.March, 31)},
		{2, date(2025, time.April, 1), date(2025, time.June, 30)},
		{3, date(2025, time.July, 1), date(2025, time.September, 30)},
		{4, date(2025, time.October, 1), date(2025, time.December, 31)},
	}

	for _, tt := range tests {
		rp, err := generic.Resolve(generic.Selection{Mode: generic.ModeQuarter, Year: 2025, Quarter: tt.quarter})
		require.NoError(t, err)
		assert.Equal(t, tt.start, rp.Period.Start, "Q%d start", tt.quarter)
		assert.Equal(t, tt.end, rp.Period.End, "Q%d end", tt.quarter)
		assert.Equal(t, generic.AxisMonth, rp.Axis)
	}
}

func TestResolve_Year_AnyYearAccepted(t *testing.T) {
	// The short list of selectable years is a UI restriction only.
	rp, err := generic.Resolve(generic.Selection{Mode: generic.ModeYear, Year: 1987})
	require.NoError(t, err)

	assert.Equal(t, date(1987, time.January, 1), rp.Period.Start)
	assert.Equal(t, date(1987, time.December, 31), rp.Period.End)
	assert.Equal(t, "1987", rp.Label())
}

func TestResolve_Rejections(t *testing.T) {
	tests := []struct {
		name string
		sel  generic.Selection
		want error
	}{
		{"unknown mode", generic.Selection{Mode: "week", Year: 2025}, generic.ErrUnsupportedMode},
		{"month zero", generic.Selection{Mode: generic.ModeMonth, Year: 2025}, generic.ErrInvalidSelection},
		{"month 13", generic.Selection{Mode: generic.ModeMonth, Year: 2025, Month: 13}, generic.ErrInvalidSelection},
		{"quarter 5", generic.Selection{Mode: generic.ModeQuarter, Year: 2025, Quarter: 5}, generic.ErrInvalidSelection},
		{"year zero", generic.Selection{Mode: generic.ModeYear}, generic.ErrInvalidSelection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := generic.Resolve(tt.sel)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var selErr *generic.SelectionError
			assert.ErrorAs(t, err, &selErr)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := generic.ParseMode(" Quarter ")
	require.NoError(t, err)
	assert.Equal(t, generic.ModeQuarter, m)

	_, err = generic.ParseMode("fortnight")
	assert.ErrorIs(t, err, generic.ErrUnsupportedMode)
}

func TestBucketKey_FollowsAxis(t *testing.T) {
	e := dailyLog("d1", "V9", date(2025, time.May, 2), "1")

	month, _ := generic.Resolve(generic.Selection{Mode: generic.ModeMonth, Year: 2025, Month: time.May})
	year, _ := generic.Resolve(generic.Selection{Mode: generic.ModeYear, Year: 2025})

	assert.Equal(t, generic.UnknownLabel, month.BucketKey(e, directory), "unlisted entity falls back")
	assert.Equal(t, "May", year.BucketKey(e, directory))
}

func TestPeriod_ContainsIsInclusive(t *testing.T) {
	p := generic.Period{Start: date(2025, time.March, 1), End: date(2025, time.March, 31)}

	assert.True(t, p.Contains(date(2025, time.March, 1)))
	assert.True(t, p.Contains(date(2025, time.March, 31)))
	assert.False(t, p.Contains(date(2025, time.April, 1)))
	assert.False(t, p.Contains(date(2025, time.February, 28)))
	assert.Len(t, p.Days(), 31)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 28, generic.DaysInMonth(2025, time.February))
	assert.Equal(t, 29, generic.DaysInMonth(2028, time.February))
	assert.Equal(t, 31, generic.DaysInMonth(2025, time.December))
}
