package web

import "testing"

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		amount   float64
		currency string
		want     string
	}{
		{450000, "", "USD 450,000"},
		{1234.5, "EUR", "EUR 1,234.50"},
		{1e12, "USD", "USD 1,000,000,000,000"},
		{1e19, "USD", "USD 10,000,000,000,000,000,000"},
	}
	for _, tc := range cases {
		if got := formatPrice(tc.amount, tc.currency); got != tc.want {
			t.Errorf("formatPrice(%v, %q) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}
