package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpotTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "utc offset",
			input: "2024-03-01*14:05:09+00:00",
			want:  time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC),
		},
		{
			name:  "zulu",
			input: "2024-03-01*14:05:09Z",
			want:  time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC),
		},
		{
			name:  "non-utc offset normalized",
			input: "2024-03-01*14:05:09+02:00",
			want:  time.Date(2024, 3, 1, 12, 5, 9, 0, time.UTC),
		},
		{
			name:    "missing star separator",
			input:   "2024-03-01T14:05:09+00:00",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "not-a-timestamp",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSpotTimestamp(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestScaleSpotPrice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "typical", input: "0.0034", want: 3400},
		{name: "floors excess precision", input: "0.00345999", want: 3459},
		{name: "whole dollars", input: "1.50", want: 1500000},
		{name: "zero", input: "0.0", want: 0},
		{name: "integer", input: "3", want: 3000000},
		{name: "negative rejected", input: "-0.01", wantErr: true},
		{name: "not a number", input: "cheap", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScaleSpotPrice(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Binary float arithmetic would turn 0.00345999 into 3460. The decimal path
// must not.
func TestScaleSpotPriceNoFloatDrift(t *testing.T) {
	got, err := ScaleSpotPrice("0.00345999")
	require.NoError(t, err)
	assert.Equal(t, int64(3459), got)
}
