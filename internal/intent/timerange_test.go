package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNumbers(t *testing.T) {
	snap := newTestStore(t).Snapshot()

	tests := []struct {
		in   string
		want string
	}{
		{"next four hours", "next 4 hours"},
		{"top five consumers", "top 5 consumers"},
		{"Forecast for the next TEN days", "Forecast for the next 10 days"},
		{"no numbers here", "no numbers here"},
		{"fourth quarter", "fourth quarter"}, // whole words only
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeNumbers(tt.in, snap))
		})
	}
}

func TestParseTimeRange(t *testing.T) {
	snap := newTestStore(t).Snapshot()

	tests := []struct {
		name string
		in   string
		want *TimeRange
	}{
		{
			name: "explicit relative window",
			in:   "forecast demand next 4 hours",
			want: &TimeRange{Amount: 4, Unit: UnitHour, Relative: RelativeNext},
		},
		{
			name: "past window",
			in:   "usage over the past 7 days",
			want: &TimeRange{Amount: 7, Unit: UnitDay, Relative: RelativeLast},
		},
		{
			name: "named expression",
			in:   "how much energy did we use yesterday",
			want: &TimeRange{Named: "yesterday"},
		},
		{
			name: "named beats bare relative",
			in:   "consumption for last week",
			want: &TimeRange{Named: "last_week"},
		},
		{
			name: "bare relative unit",
			in:   "energy for the next day",
			want: &TimeRange{Amount: 1, Unit: UnitDay, Relative: RelativeNext},
		},
		{
			name: "trailing punctuation on named term",
			in:   "what happened today?",
			want: &TimeRange{Named: "today"},
		},
		{
			name: "no range",
			in:   "show me the machines",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimeRange(tt.in, snap)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestParseTimeRangeSpokenNumbersAfterNormalization(t *testing.T) {
	snap := newTestStore(t).Snapshot()
	got := ParseTimeRange(NormalizeNumbers("forecast for the next four hours", snap), snap)
	require.NotNil(t, got)
	assert.Equal(t, TimeRange{Amount: 4, Unit: UnitHour, Relative: RelativeNext}, *got)
}
