package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusNoShow, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusNoShow, StatusCompleted, false},
		{"bogus", StatusConfirmed, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusPending))
	assert.False(t, IsTerminal(StatusConfirmed))
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.True(t, IsTerminal(StatusNoShow))
}

func TestEndsBefore(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	appt := Appointment{Date: day, StartTime: "09:00", EndTime: "10:00"}

	assert.True(t, appt.EndsBefore(time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC)))
	assert.True(t, appt.EndsBefore(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)))
	// end == now is not in the past yet
	assert.False(t, appt.EndsBefore(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	assert.False(t, appt.EndsBefore(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)))
	assert.False(t, appt.EndsBefore(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)))
}

func TestFeeFor(t *testing.T) {
	c := Counsellor{VideoFee: 500, ChatFee: 250}

	fee, ok := c.FeeFor(SessionTypeVideo)
	assert.True(t, ok)
	assert.Equal(t, 500.0, fee)

	fee, ok = c.FeeFor(SessionTypeChat)
	assert.True(t, ok)
	assert.Equal(t, 250.0, fee)

	_, ok = c.FeeFor("voice")
	assert.False(t, ok)
}
