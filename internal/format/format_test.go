package format

import "testing"

func TestUSD(t *testing.T) {
	for _, tc := range []struct {
		value float64
		want  string
	}{
		{15000, "$15,000.00"},
		{1000, "$1,000.00"},
		{1234567.891, "$1,234,567.89"},
		{999.5, "$999.50"},
		{10.500001, "$10.50"},
		{0.1234, "$0.1234"},
		{0, "$0.00"},
	} {
		if got := USD(tc.value); got != tc.want {
			t.Errorf("USD(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestEastern(t *testing.T) {
	// 2023-11-14 22:13:20 UTC is 17:13 in New York (EST)
	if got := Eastern(1700000000); got != "2023-11-14 17:13 ET" {
		t.Errorf("Eastern(1700000000) = %q", got)
	}
	// 2024-07-01 00:00:00 UTC is 20:00 the previous day in New York (EDT)
	if got := Eastern(1719792000); got != "2024-06-30 20:00 ET" {
		t.Errorf("Eastern(1719792000) = %q", got)
	}
}
