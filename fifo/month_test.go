package fifo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fuel-ledger/fifo"
)

func TestMonthOf(t *testing.T) {
	assert.Equal(t, fifo.MonthKey("2025-03"), fifo.MonthOf(day(2025, time.March, 31)))
	assert.Equal(t, fifo.MonthKey("2025-12"), fifo.MonthOf(day(2025, time.December, 1)))
}

func TestMonthKey_EndOfMonth(t *testing.T) {
	cases := []struct {
		month fifo.MonthKey
		want  time.Time
	}{
		{"2025-01", day(2025, time.January, 31)},
		{"2025-02", day(2025, time.February, 28)},
		{"2024-02", day(2024, time.February, 29)}, // leap year
		{"2025-04", day(2025, time.April, 30)},
	}
	for _, tc := range cases {
		got, err := tc.month.EndOfMonth()
		require.NoError(t, err)
		assert.True(t, got.Equal(tc.want), "%s: got %s", tc.month, got)
	}
}

func TestMonthKey_ParseRejectsGarbage(t *testing.T) {
	for _, bad := range []fifo.MonthKey{"2025-13", "2025-1", "garbage", ""} {
		_, err := bad.Parse()
		assert.Error(t, err, "%q should not parse", bad)
	}
}

func TestMonthKey_Before(t *testing.T) {
	assert.True(t, fifo.MonthKey("2024-12").Before("2025-01"))
	assert.False(t, fifo.MonthKey("2025-02").Before("2025-01"))
	assert.False(t, fifo.MonthKey("2025-01").Before("2025-01"))
}

func TestWindow_Contains(t *testing.T) {
	from := day(2025, time.January, 1)
	to := day(2025, time.January, 31)

	open := fifo.Window{}
	assert.True(t, open.Contains(day(1999, time.June, 15)))
	assert.True(t, open.IsOpen())

	bounded := fifo.Window{From: &from, To: &to}
	assert.True(t, bounded.Contains(day(2025, time.January, 1)))
	assert.True(t, bounded.Contains(day(2025, time.January, 31)))
	assert.False(t, bounded.Contains(day(2025, time.February, 1)))
	assert.False(t, bounded.Contains(day(2024, time.December, 31)))
	assert.False(t, bounded.IsOpen())
}
