package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatePagination(t *testing.T) {
	testCases := []struct {
		name     string
		page     int
		limit    int
		total    int64
		expected PaginationMeta
	}{
		{
			name:     "exact division",
			page:     1,
			limit:    10,
			total:    30,
			expected: PaginationMeta{CurrentPage: 1, PerPage: 10, Total: 30, TotalPages: 3},
		},
		{
			name:     "remainder adds a page",
			page:     2,
			limit:    10,
			total:    31,
			expected: PaginationMeta{CurrentPage: 2, PerPage: 10, Total: 31, TotalPages: 4},
		},
		{
			name:     "zero total has zero pages",
			page:     1,
			limit:    10,
			total:    0,
			expected: PaginationMeta{CurrentPage: 1, PerPage: 10, Total: 0, TotalPages: 0},
		},
		{
			name:     "page below one clamps to one",
			page:     0,
			limit:    10,
			total:    5,
			expected: PaginationMeta{CurrentPage: 1, PerPage: 10, Total: 5, TotalPages: 1},
		},
		{
			name:     "limit below one falls back to ten",
			page:     1,
			limit:    0,
			total:    25,
			expected: PaginationMeta{CurrentPage: 1, PerPage: 10, Total: 25, TotalPages: 3},
		},
		{
			name:     "limit above hundred caps at hundred",
			page:     1,
			limit:    500,
			total:    250,
			expected: PaginationMeta{CurrentPage: 1, PerPage: 100, Total: 250, TotalPages: 3},
		},
		{
			name:     "total smaller than limit is one page",
			page:     1,
			limit:    50,
			total:    7,
			expected: PaginationMeta{CurrentPage: 1, PerPage: 50, Total: 7, TotalPages: 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CalculatePagination(tc.page, tc.limit, tc.total))
		})
	}
}
