package capacity

import (
	"testing"
)

func TestParsePercent(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"80%", 80, false},
		{" 85 % ", 85, false},
		{"80", 80, false},
		{"0.5", 50, false},
		{"0", 0, false},
		{"100", 100, false},
		{"", 0, true},
		{"abc", 0, true},
		{"x%", 0, true},
		{"120", 0, true},
		{"150%", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePercent(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePercent(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParsePercent(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{15, "15%"},
		{12.5, "12.5%"},
		{0, "0%"},
	}

	for _, tt := range tests {
		if got := FormatPercent(tt.input); got != tt.want {
			t.Errorf("FormatPercent(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
