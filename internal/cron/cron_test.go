package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{
		"",
		"0 0 1 *",
		"0 0 1 * * *",
		"61 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"a * * * *",
		"1-0 * * * *",
		"*/0 * * * *",
	} {
		_, err := Parse(expr)
		assert.Error(t, err, "expr %q should not parse", expr)
	}
}

func TestNext_MonthlyAcrossBoundaries(t *testing.T) {
	// "0 0 1 * *": midnight on the first of every month.
	s, err := Parse("0 0 1 * *")
	require.NoError(t, err)

	now := time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

	first := s.Next(now)
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), first)

	second := s.Next(first)
	assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), second)

	third := s.Next(second)
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), third)
}

func TestNext_EveryMinute(t *testing.T) {
	s, err := Parse("* * * * *")
	require.NoError(t, err)

	now := time.Date(2025, time.March, 15, 10, 30, 45, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 31, 0, 0, time.UTC), s.Next(now))
}

func TestNext_Steps(t *testing.T) {
	s, err := Parse("*/15 * * * *")
	require.NoError(t, err)

	now := time.Date(2025, time.March, 15, 10, 31, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 45, 0, 0, time.UTC), s.Next(now))
}

func TestNext_DayOfWeek(t *testing.T) {
	// 09:00 every Monday. March 15 2025 is a Saturday.
	s, err := Parse("0 9 * * 1")
	require.NoError(t, err)

	now := time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 17, 9, 0, 0, 0, time.UTC), s.Next(now))
}

func TestNext_RangeAndList(t *testing.T) {
	s, err := Parse("0 8-10 * * *")
	require.NoError(t, err)
	now := time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC), s.Next(now))

	s, err = Parse("0 0 1,15 * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		s.Next(time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)))
}

func TestNext_Unsatisfiable(t *testing.T) {
	// February 30th never exists.
	s, err := Parse("0 0 30 2 *")
	require.NoError(t, err)
	assert.True(t, s.Next(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}
