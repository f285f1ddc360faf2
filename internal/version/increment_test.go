package version

import (
	"errors"
	"fmt"
	"testing"
)

func TestIncrement(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0.0.0", "0.0.1"},
		{"1.0.0", "1.0.1"},
		{"1.0.9", "1.1.0"},
		{"1.9.9", "2.0.0"},
		{"9.9.9", "10.0.0"},
		{"12.3.4", "12.3.5"},
		{"1.12.9", "2.0.0"},
		{"1.2.15", "1.3.0"},
	}

	for _, tt := range tests {
		got, err := Increment(tt.input)
		if err != nil {
			t.Fatalf("Increment(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Increment(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIncrementOdometer(t *testing.T) {
	// Exactly one carry chain per step for every single-digit triple.
	for a := 0; a <= 9; a++ {
		for b := 0; b <= 9; b++ {
			for c := 0; c <= 9; c++ {
				in := fmt.Sprintf("%d.%d.%d", a, b, c)
				var want string
				switch {
				case c < 9:
					want = fmt.Sprintf("%d.%d.%d", a, b, c+1)
				case b < 9:
					want = fmt.Sprintf("%d.%d.0", a, b+1)
				default:
					want = fmt.Sprintf("%d.0.0", a+1)
				}
				got, err := Increment(in)
				if err != nil {
					t.Fatalf("Increment(%q) unexpected error: %v", in, err)
				}
				if got != want {
					t.Fatalf("Increment(%q) = %q, want %q", in, got, want)
				}
			}
		}
	}
}

func TestIncrementRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "1.0", "1.0.0.0", "v1.0.0", "1.0.0-abc", "1.a.0", "-1.0.0", "1..0", " 1.0.0"} {
		_, err := Increment(in)
		var ferr *FormatError
		if !errors.As(err, &ferr) {
			t.Errorf("Increment(%q) error = %v, want *FormatError", in, err)
		}
	}
}
