package stats

import (
	"testing"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodLabel(t *testing.T) {
	ts := time.Date(2024, 12, 30, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		period Period
		want   string
	}{
		{PeriodDay, "2024-12-30"},
		{PeriodWeek, "2025-W01"},
		{PeriodMonth, "2024-12"},
		{PeriodQuarter, "2024-Q4"},
		{PeriodYear, "2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.period.Label(ts), tt.period)
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, p)

	p, err = ParsePeriod(" Week ")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeek, p)

	_, err = ParsePeriod("decade")
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.True(t, r.Contains(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)), "end date is inclusive")
	assert.False(t, r.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))

	r, err = ParseRange("", "2024-03-31T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, r.From.IsZero())
	assert.Equal(t, time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC), r.To)

	for _, bad := range [][2]string{{"03/01/2024", ""}, {"", "tomorrow"}, {"2024-03-02", "2024-03-01"}} {
		_, err := ParseRange(bad[0], bad[1])
		assert.ErrorIs(t, err, core.ErrInvalidParameter, bad)
	}
}
