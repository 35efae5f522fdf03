package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    time.Time
		wantErr string
	}{
		{name: "duration", spec: "1h30m", want: now.Add(-90 * time.Minute)},
		{name: "seconds", spec: "45s", want: now.Add(-45 * time.Second)},
		{name: "rfc3339", spec: "2025-10-29T13:00:00Z", want: time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)},
		{name: "empty", spec: "", wantErr: "empty time specification"},
		{name: "negative", spec: "-5m", wantErr: "negative duration"},
		{name: "garbage", spec: "yesterday", wantErr: "invalid time specification"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec, now)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestParseRange(t *testing.T) {
	t.Run("open on both ends", func(t *testing.T) {
		r, err := ParseRange("", "", now)
		require.NoError(t, err)
		assert.Equal(t, Range{}, r)
	})

	t.Run("since only", func(t *testing.T) {
		r, err := ParseRange("10m", "", now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(-10*time.Minute).UnixMilli(), r.SinceMs)
		assert.Zero(t, r.UntilMs)
	})

	t.Run("both bounds", func(t *testing.T) {
		r, err := ParseRange("2h", "1h", now)
		require.NoError(t, err)
		assert.Less(t, r.SinceMs, r.UntilMs)
	})

	t.Run("inverted", func(t *testing.T) {
		_, err := ParseRange("1h", "2h", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--since must be before --until")
	})

	t.Run("bad since", func(t *testing.T) {
		_, err := ParseRange("soon", "", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --since")
	})

	t.Run("bad until", func(t *testing.T) {
		_, err := ParseRange("", "later", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --until")
	})
}
