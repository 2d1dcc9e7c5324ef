package aggregate

import (
	"math"
	"sort"
)

// Finalize computes the final materialized result for an accumulated
// Value. Combine-only variants (Count, Sum, Min, Max, Collect, Concat,
// Merge, Flatten, Unique, GroupBy) return their accumulator state
// directly; Average/Median/StdDev/Variance/Sort require a finishing
// computation that only makes sense once, at the end.
func Finalize(v Value) interface{} {
	switch v.Kind {
	case KindCount:
		return v.Count
	case KindSum:
		return v.Sum
	case KindMin, KindMax:
		return v.Scalar
	case KindCollect:
		return v.List
	case KindAverage:
		if v.AvgCount == 0 {
			return nil
		}
		return v.AvgSum / float64(v.AvgCount)
	case KindMedian:
		return median(v.Samples)
	case KindStdDev:
		return math.Sqrt(variance(v.Samples))
	case KindVariance:
		return variance(v.Samples)
	case KindUnique:
		return v.UniqueVals
	case KindConcat:
		return v.Text
	case KindMerge:
		return v.Map
	case KindFlatten:
		return v.List
	case KindSort:
		out := make([]interface{}, len(v.List))
		copy(out, v.List)
		sortValues(out, v.SortDesc)
		return out
	case KindGroupBy:
		return v.Groups
	default:
		return nil
	}
}

func median(samples []float64) interface{} {
	n := len(samples)
	if n == 0 {
		return nil
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, x := range samples {
		sum += x
	}
	return sum / float64(len(samples))
}

func variance(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	m := mean(samples)
	var sumSq float64
	for _, x := range samples {
		d := x - m
		sumSq += d * d
	}
	return sumSq / float64(len(samples))
}
