package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTermStatus(t *testing.T) {
	start := time.Date(2026, time.January, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.May, 22, 0, 0, 0, 0, time.UTC)
	term := Term{Name: "Spring 2026", StartDate: start, EndDate: end}

	testCases := []struct {
		name     string
		now      time.Time
		expected TermStatus
	}{
		{
			name:     "before the start date is future",
			now:      start.AddDate(0, -1, 0),
			expected: TermStatusFuture,
		},
		{
			name:     "between start and end is current",
			now:      start.AddDate(0, 1, 0),
			expected: TermStatusCurrent,
		},
		{
			name:     "after the end date is past",
			now:      end.AddDate(0, 0, 1),
			expected: TermStatusPast,
		},
		{
			name:     "exactly at the start date is current",
			now:      start,
			expected: TermStatusCurrent,
		},
		{
			name:     "exactly at the end date is current",
			now:      end,
			expected: TermStatusCurrent,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, term.Status(tc.now))
		})
	}
}
