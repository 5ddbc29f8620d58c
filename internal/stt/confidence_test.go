package stt

import (
	"strings"
	"testing"
)

func TestConfidenceTable(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"", 0.4},
		{"hi", 0.4},
		{"hello", 0.5},
		{"Hi", 0.45},
		{"hello there", 0.6},
		{"Hello there.", 0.7},
		{"add an expense of five hundred", 0.6},
		{"Add an expense of five hundred rupees for diesel.", 0.8},
		{"Add an expense of five hundred rupees for diesel today!", 0.9},
	}
	for _, tc := range cases {
		if got := Confidence(tc.text); !almostEqual(got, tc.want) {
			t.Errorf("Confidence(%q) = %f, want %f", tc.text, got, tc.want)
		}
	}
}

func TestConfidenceClamped(t *testing.T) {
	long := "A" + strings.Repeat("b", 200) + "."
	if got := Confidence(long); got < 0 || got > 1 {
		t.Fatalf("confidence out of range: %f", got)
	}
	if got := Confidence(""); got < 0 || got > 1 {
		t.Fatalf("confidence out of range for empty input: %f", got)
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
