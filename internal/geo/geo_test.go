package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_SamePoint(t *testing.T) {
	d := DistanceKm(-23.5505, -46.6333, -23.5505, -46.6333)
	if d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestDistanceKm_KnownDistance(t *testing.T) {
	// Sao Paulo to Rio de Janeiro is roughly 361km.
	d := DistanceKm(-23.5505, -46.6333, -22.9068, -43.1729)
	if d < 355 || d > 365 {
		t.Errorf("expected ~361km, got %f", d)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	points := [][4]float64{
		{-23.5505, -46.6333, -23.5460, -46.6380},
		{51.5074, -0.1278, 40.7128, -74.0060},
		{0, 179.9, 0, -179.9},
	}
	for _, p := range points {
		ab := DistanceKm(p[0], p[1], p[2], p[3])
		ba := DistanceKm(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("asymmetric distance for %v: %f vs %f", p, ab, ba)
		}
	}
}

func TestDistanceKm_Antipodal(t *testing.T) {
	d := DistanceKm(0, 0, 0, 180)
	want := math.Pi * EarthRadiusKm
	if math.IsNaN(d) || math.Abs(d-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, d)
	}

	d = DistanceKm(90, 0, -90, 0)
	if math.IsNaN(d) || math.Abs(d-want) > 1e-6 {
		t.Errorf("expected %f for pole to pole, got %f", want, d)
	}
}

func TestDistanceKm_NearZero(t *testing.T) {
	// ~1.1m apart.
	d := DistanceKm(10, 10, 10.00001, 10)
	if d <= 0 || d > 0.002 {
		t.Errorf("expected ~0.0011km, got %f", d)
	}
}

func TestValidCoordinate(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.1, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		if got := ValidCoordinate(tt.lat, tt.lng); got != tt.want {
			t.Errorf("ValidCoordinate(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
		}
	}
}

func TestCell(t *testing.T) {
	c := Cell(-23.5505, -46.6333, 0)
	if len(c) != DefaultCellPrecision {
		t.Fatalf("expected %d chars, got %q", DefaultCellPrecision, c)
	}
	if Cell(-23.5505, -46.6333, 4) != c[:4] {
		t.Errorf("lower precision should be a prefix of %q", c)
	}
}

func TestIndexable(t *testing.T) {
	testCases := []struct {
		lat, lng float64
		want     bool
	}{
		{-23.5505, -46.6333, true},
		{MaxIndexLatitude, 10, true},
		{-MaxIndexLatitude, 10, true},
		{86, 10, false},
		{-89.9, 0, false},
		{91, 0, false},
	}
	for _, tc := range testCases {
		if got := Indexable(tc.lat, tc.lng); got != tc.want {
			t.Errorf("Indexable(%f, %f) = %v, want %v", tc.lat, tc.lng, got, tc.want)
		}
	}
}
