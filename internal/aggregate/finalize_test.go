package aggregate

import (
	"math"
	"testing"
)

func TestFinalize_MedianOdd(t *testing.T) {
	v := NewMedian(5, 1, 3)
	got := Finalize(v)
	if got != 3.0 {
		t.Errorf("got %v, want 3", got)
	}
}

func TestFinalize_MedianEven(t *testing.T) {
	v := NewMedian(1, 2, 3, 4)
	got := Finalize(v)
	if got != 2.5 {
		t.Errorf("got %v, want 2.5", got)
	}
}

func TestFinalize_Variance(t *testing.T) {
	v := NewVariance(2, 4, 4, 4, 5, 5, 7, 9)
	got := Finalize(v).(float64)
	want := 4.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFinalize_StdDev(t *testing.T) {
	v := NewStdDev(2, 4, 4, 4, 5, 5, 7, 9)
	got := Finalize(v).(float64)
	want := 2.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFinalize_AverageWithNoSamplesIsNull(t *testing.T) {
	v := NewAverage(0, 0)
	if Finalize(v) != nil {
		t.Errorf("expected nil for zero-count average")
	}
}

func TestFinalize_CombinedMedianMergesSamples(t *testing.T) {
	a := NewMedian(1, 2)
	b := NewMedian(3, 4, 5)
	combined, err := Combine(a, b)
	if err != nil {
		t.Fatal(err)
	}
	got := Finalize(combined)
	if got != 3.0 {
		t.Errorf("got %v, want 3", got)
	}
}
