package datetime

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	t.Parallel()

	p := New(time.UTC)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	cases := []struct {
		text string
		want time.Time // zero means no date-time expected
	}{
		{"remind me to take pills", time.Time{}},
		{"", time.Time{}},
		{"call mom tomorrow at 5pm", time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC)},
		{"9am tomorrow", time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"remind me to call mom tomorrow 5pm", time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := p.ParseDateTime(tc.text, now)
		if tc.want.IsZero() {
			if ok {
				t.Fatalf("%q: expected no date-time, got %v", tc.text, got)
			}
			continue
		}
		if !ok {
			t.Fatalf("%q: expected a date-time", tc.text)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%q: got %v want %v", tc.text, got, tc.want)
		}
		if got.Nanosecond() != 0 {
			t.Fatalf("%q: result not truncated to seconds", tc.text)
		}
	}
}
