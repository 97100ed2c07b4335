package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindows(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    WindowSet
		wantErr bool
	}{
		{
			name: "empty means always",
			expr: "",
			want: nil,
		},
		{
			name: "clock form",
			expr: "09:00-18:00",
			want: WindowSet{{Start: 540, End: 1080}},
		},
		{
			name: "bare hours",
			expr: "9-18",
			want: WindowSet{{Start: 540, End: 1080}},
		},
		{
			name: "wraps midnight",
			expr: "22:00-06:00",
			want: WindowSet{{Start: 1320, End: 360}},
		},
		{
			name: "multiple windows",
			expr: "08:00-12:00, 14:00-18:00",
			want: WindowSet{{Start: 480, End: 720}, {Start: 840, End: 1080}},
		},
		{
			name:    "missing separator",
			expr:    "0900",
			wantErr: true,
		},
		{
			name:    "hour out of range",
			expr:    "25:00-26:00",
			wantErr: true,
		},
		{
			name:    "minute out of range",
			expr:    "09:75-10:00",
			wantErr: true,
		},
		{
			name:    "empty window",
			expr:    "10:00-10:00",
			wantErr: true,
		},
		{
			name:    "plain overlap",
			expr:    "09:00-12:00,11:00-14:00",
			wantErr: true,
		},
		{
			name:    "overlap through midnight wrap",
			expr:    "18:00-09:00,08:00-10:00",
			wantErr: true,
		},
		{
			name:    "garbage entry",
			expr:    "abc-def",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindows(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowSetContains(t *testing.T) {
	at := func(hour, min int) time.Time {
		return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
	}

	day, err := ParseWindows("09:00-18:00")
	require.NoError(t, err)
	assert.True(t, day.Contains(at(9, 0)))
	assert.True(t, day.Contains(at(17, 59)))
	assert.False(t, day.Contains(at(18, 0)), "end is exclusive")
	assert.False(t, day.Contains(at(8, 59)))

	night, err := ParseWindows("22:00-06:00")
	require.NoError(t, err)
	assert.True(t, night.Contains(at(23, 30)))
	assert.True(t, night.Contains(at(2, 0)))
	assert.False(t, night.Contains(at(12, 0)))
	assert.False(t, night.Contains(at(6, 0)))

	var always WindowSet
	assert.True(t, always.Contains(at(3, 33)))
}

func TestWindowString(t *testing.T) {
	ws, err := ParseWindows("9-18,22:30-06:15")
	require.NoError(t, err)
	assert.Equal(t, "09:00-18:00,22:30-06:15", ws.String())
}
