package timeparsing

import (
	"testing"
	"time"
)

func TestParseCompactDuration(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "+30m", want: time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)},
		{input: "+6h", want: time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)},
		{input: "6h", want: time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)},
		{input: "+2d", want: time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC)},
		{input: "+1w", want: time.Date(2025, 6, 22, 12, 0, 0, 0, time.UTC)},
		{input: "1y", want: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)},
		{input: "-1d", want: time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)},
		{input: "+48h", want: time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC)},

		{input: "", wantErr: true},
		{input: "6", wantErr: true},
		{input: "h", wantErr: true},
		{input: "6h+", wantErr: true},
		{input: "++1d", wantErr: true},
		{input: "+ 6h", wantErr: true},
		{input: "1x", wantErr: true},
		{input: "2025-01-15", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCompactDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if IsCompactDuration(tt.input) == tt.wantErr {
				t.Errorf("IsCompactDuration(%q) disagrees with the parser", tt.input)
			}
		})
	}
}

func TestParseCompactDurationLeapDay(t *testing.T) {
	got, err := ParseCompactDuration("+1d", time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseAbsolute(t *testing.T) {
	madrid := time.FixedZone("CEST", 2*3600)

	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "2025-09-01T09:00:00Z", want: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)},
		{input: "2025-09-01T11:00:00+02:00", want: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)},
		{input: "2025-09-01 11:00", want: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)},
		{input: "2025-09-01T11:00", want: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)},
		{input: "2025-09-01 11:00:30", want: time.Date(2025, 9, 1, 9, 0, 30, 0, time.UTC)},
		{input: "2025-09-01", want: time.Date(2025, 8, 31, 22, 0, 0, 0, time.UTC)},
		{input: "01/09/2025", wantErr: true},
		{input: "2025-13-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAbsolute(tt.input, madrid)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAbsolute(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseAbsolute(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
