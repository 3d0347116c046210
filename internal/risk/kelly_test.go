package risk

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPayoutRatio(t *testing.T) {
	tests := []struct {
		name    string
		pMarket float64
		want    float64
	}{
		{"forty cents", 0.40, 1.5},
		{"even money", 0.50, 1.0},
		{"longshot", 0.25, 3.0},
		{"favorite", 0.80, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PayoutRatio(tt.pMarket)
			if !almostEqual(got, tt.want) {
				t.Errorf("PayoutRatio(%v) = %v, want %v", tt.pMarket, got, tt.want)
			}
		})
	}
}

func TestFraction(t *testing.T) {
	tests := []struct {
		name    string
		pMarket float64
		pModel  float64
		want    float64
	}{
		{"model edge", 0.40, 0.60, 1.0 / 3.0},
		{"no edge", 0.50, 0.50, 0},
		{"negative edge clamped", 0.60, 0.40, 0},
		{"thin edge", 0.50, 0.51, 0.02},
		{"certain model", 0.50, 1.00, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fraction(tt.pMarket, tt.pModel)
			if !almostEqual(got, tt.want) {
				t.Errorf("Fraction(%v, %v) = %v, want %v", tt.pMarket, tt.pModel, got, tt.want)
			}
		})
	}
}

func TestFraction_EdgeForm(t *testing.T) {
	// The binary-contract Kelly fraction reduces to edge / (1 - p_market),
	// so any positive edge yields a positive fraction.
	for _, pMarket := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		for _, edge := range []float64{0.01, 0.05, 0.2} {
			pModel := pMarket + edge
			if pModel >= 1 {
				continue
			}
			got := Fraction(pMarket, pModel)
			want := edge / (1 - pMarket)
			if !almostEqual(got, want) {
				t.Errorf("Fraction(%v, %v) = %v, want %v", pMarket, pModel, got, want)
			}
			if got <= 0 {
				t.Errorf("Fraction(%v, %v) = %v, want positive", pMarket, pModel, got)
			}
		}
	}
}

func TestApplied(t *testing.T) {
	// Market at 40, model at 60, half Kelly: b = 1.5, f* = 1/3, applied = 1/6.
	got := Applied(0.40, 0.60, 0.5)
	if !almostEqual(got, 1.0/6.0) {
		t.Errorf("Applied(0.40, 0.60, 0.5) = %v, want %v", got, 1.0/6.0)
	}

	if got := Applied(0.40, 0.60, 0); got != 0 {
		t.Errorf("Applied with zero kelly fraction = %v, want 0", got)
	}
	if got := Applied(0.60, 0.40, 0.5); got != 0 {
		t.Errorf("Applied with negative edge = %v, want 0", got)
	}
}
