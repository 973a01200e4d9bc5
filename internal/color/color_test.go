package color

import (
	"math"
	"testing"
)

func TestSRGBToLinearEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		input float32
		want  float32
	}{
		{"black", 0.0, 0.0},
		{"white", 1.0, 1.0},
		{"threshold", 0.04045, 0.04045 / 12.92},
		{"just above threshold", 0.04046, float32(math.Pow((0.04046+0.055)/1.055, 2.4))},
		{"mid gray", 0.5, float32(math.Pow((0.5+0.055)/1.055, 2.4))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SRGBToLinear(tt.input)
			if !floatNear(got, tt.want, 1e-6) {
				t.Errorf("SRGBToLinear(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLinearToSRGBEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		input float32
		want  float32
	}{
		{"black", 0.0, 0.0},
		{"white", 1.0, 1.0},
		{"threshold", 0.0031308, 0.0031308 * 12.92},
		{"just above threshold", 0.0031309, 1.055*float32(math.Pow(0.0031309, 1.0/2.4)) - 0.055},
		{"mid gray linear", 0.21404, float32(1.055*math.Pow(0.21404, 1.0/2.4) - 0.055)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LinearToSRGB(tt.input)
			if !floatNear(got, tt.want, 1e-6) {
				t.Errorf("LinearToSRGB(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// Round-trip error should stay under 1/255 to preserve 8-bit precision.
func TestRoundTripSRGBLinear(t *testing.T) {
	const maxError = 1.0 / 255.0

	for i := 0; i <= 255; i++ {
		srgb := float32(i) / 255.0
		linear := SRGBToLinear(srgb)
		roundTrip := LinearToSRGB(linear)

		diff := float32(math.Abs(float64(roundTrip - srgb)))
		if diff > maxError {
			t.Errorf("round-trip error for %d/255: got %v, want %v, diff %v (max %v)",
				i, roundTrip, srgb, diff, maxError)
		}
	}
}

func TestRoundTripLinearSRGB(t *testing.T) {
	const maxError = 1.0 / 255.0

	for i := 0; i <= 255; i++ {
		linear := float32(i) / 255.0
		srgb := LinearToSRGB(linear)
		roundTrip := SRGBToLinear(srgb)

		diff := float32(math.Abs(float64(roundTrip - linear)))
		if diff > maxError {
			t.Errorf("reverse round-trip error for %d/255: got %v, want %v, diff %v (max %v)",
				i, roundTrip, linear, diff, maxError)
		}
	}
}

func floatNear(a, b, epsilon float32) bool {
	return math.Abs(float64(a-b)) < float64(epsilon)
}
