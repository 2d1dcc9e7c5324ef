package aggregate

import (
	"testing"
)

func TestCombine_Count(t *testing.T) {
	v, err := Combine(NewCount(2), NewCount(3))
	if err != nil {
		t.Fatal(err)
	}
	if v.Count != 5 {
		t.Errorf("got %d, want 5", v.Count)
	}
}

func TestCombine_Sum(t *testing.T) {
	v, err := Combine(NewSum(1.5), NewSum(2.5))
	if err != nil {
		t.Fatal(err)
	}
	if v.Sum != 4 {
		t.Errorf("got %v, want 4", v.Sum)
	}
}

func TestCombine_MinMax(t *testing.T) {
	min, err := Combine(NewMin(5.0), NewMin(2.0))
	if err != nil {
		t.Fatal(err)
	}
	if min.Scalar != 2.0 {
		t.Errorf("min: got %v", min.Scalar)
	}

	max, err := Combine(NewMax(5.0), NewMax(2.0))
	if err != nil {
		t.Fatal(err)
	}
	if max.Scalar != 5.0 {
		t.Errorf("max: got %v", max.Scalar)
	}
}

func TestCombine_MinMaxMixedTypes(t *testing.T) {
	// numbers rank below strings per the fixed type rank.
	v, err := Combine(NewMin(5.0), NewMin("a"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Scalar != 5.0 {
		t.Errorf("expected number to win Min over string, got %v", v.Scalar)
	}
}

func TestCombine_Average(t *testing.T) {
	a := NewAverage(10, 2) // mean 5
	b := NewAverage(30, 4) // mean 7.5
	v, err := Combine(a, b)
	if err != nil {
		t.Fatal(err)
	}
	got := Finalize(v).(float64)
	want := 40.0 / 6.0
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombine_Unique_Dedupes(t *testing.T) {
	a := NewUnique("x", "y")
	b := NewUnique("y", "z")
	v, err := Combine(a, b)
	if err != nil {
		t.Fatal(err)
	}
	result := Finalize(v).([]interface{})
	if len(result) != 3 {
		t.Errorf("expected 3 unique values, got %d: %v", len(result), result)
	}
}

func TestCombine_Merge_EarlierValueWins(t *testing.T) {
	a := NewMerge(map[string]interface{}{"k": "first"})
	b := NewMerge(map[string]interface{}{"k": "second"})
	v, err := Combine(a, b)
	if err != nil {
		t.Fatal(err)
	}
	result := Finalize(v).(map[string]interface{})
	if result["k"] != "first" {
		t.Errorf("expected earlier value to win, got %v", result["k"])
	}
}

func TestCombine_Concat(t *testing.T) {
	v, err := Combine(NewConcat("foo"), NewConcat("bar"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Text != "foobar" {
		t.Errorf("got %q", v.Text)
	}
}

func TestCombine_Sort_FinalizesInOrder(t *testing.T) {
	v, err := Combine(NewSort(false, 3.0, 1.0), NewSort(false, 2.0))
	if err != nil {
		t.Fatal(err)
	}
	result := Finalize(v).([]interface{})
	want := []interface{}{1.0, 2.0, 3.0}
	for i := range want {
		if result[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, result[i], want[i])
		}
	}
}

func TestCombine_GroupBy(t *testing.T) {
	a := NewGroupBy("red", "apple")
	b := NewGroupBy("red", "cherry")
	c := NewGroupBy("yellow", "banana")

	v, errs := CombineAll([]Value{a, b, c})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	groups := Finalize(v).(map[string][]interface{})
	if len(groups["red"]) != 2 {
		t.Errorf("expected 2 red items, got %d", len(groups["red"]))
	}
	if len(groups["yellow"]) != 1 {
		t.Errorf("expected 1 yellow item, got %d", len(groups["yellow"]))
	}
}

func TestCombine_KindMismatchIsError(t *testing.T) {
	_, err := Combine(NewCount(1), NewSum(1))
	if err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestCombineAll_AccumulatesAllMismatches(t *testing.T) {
	values := []Value{NewCount(1), NewCount(2), NewSum(1), NewCount(3), NewSum(2)}
	_, errs := CombineAll(values)
	if len(errs) != 2 {
		t.Fatalf("expected 2 mismatch errors, got %d: %v", len(errs), errs)
	}
}

func TestCombineAll_Empty(t *testing.T) {
	v, errs := CombineAll(nil)
	if len(errs) != 0 {
		t.Errorf("expected no errors for empty input")
	}
	if v.Kind != "" {
		t.Errorf("expected zero-value accumulator")
	}
}
