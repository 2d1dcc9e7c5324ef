package aggregate

import (
	"errors"
	"fmt"
)

// ErrKindMismatch is the sentinel wrapped by MismatchError when two
// values of different Kind are combined.
var ErrKindMismatch = errors.New("aggregate values of different kind cannot combine")

// MismatchError names which index in a CombineAll reduction held the
// offending value, so a job can report all mismatches in one pass
// rather than failing on the first.
type MismatchError struct {
	Index    int
	Expected Kind
	Got      Kind
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: index %d: expected %s, got %s", ErrKindMismatch, e.Index, e.Expected, e.Got)
}

func (e *MismatchError) Unwrap() error { return ErrKindMismatch }

// Combine merges two values of the same Kind. It is associative, so
// CombineAll's left-to-right reduction is safe to parallelize in any
// grouping for every Kind except Concat/Sort/Flatten, which require
// index-ordered input (see spec §4.J).
func Combine(a, b Value) (Value, error) {
	if a.Kind != b.Kind {
		return Value{}, &MismatchError{Expected: a.Kind, Got: b.Kind}
	}

	switch a.Kind {
	case KindCount:
		return Value{Kind: KindCount, Count: a.Count + b.Count}, nil
	case KindSum:
		return Value{Kind: KindSum, Sum: a.Sum + b.Sum}, nil
	case KindMin:
		if compareScalars(b.Scalar, a.Scalar) < 0 {
			return Value{Kind: KindMin, Scalar: b.Scalar}, nil
		}
		return Value{Kind: KindMin, Scalar: a.Scalar}, nil
	case KindMax:
		if compareScalars(b.Scalar, a.Scalar) > 0 {
			return Value{Kind: KindMax, Scalar: b.Scalar}, nil
		}
		return Value{Kind: KindMax, Scalar: a.Scalar}, nil
	case KindCollect:
		out := make([]interface{}, 0, len(a.List)+len(b.List))
		out = append(out, a.List...)
		out = append(out, b.List...)
		return Value{Kind: KindCollect, List: out}, nil
	case KindFlatten:
		out := make([]interface{}, 0, len(a.List)+len(b.List))
		out = append(out, a.List...)
		out = append(out, b.List...)
		return Value{Kind: KindFlatten, List: out}, nil
	case KindSort:
		out := make([]interface{}, 0, len(a.List)+len(b.List))
		out = append(out, a.List...)
		out = append(out, b.List...)
		return Value{Kind: KindSort, List: out, SortDesc: a.SortDesc}, nil
	case KindAverage:
		return Value{Kind: KindAverage, AvgSum: a.AvgSum + b.AvgSum, AvgCount: a.AvgCount + b.AvgCount}, nil
	case KindMedian, KindStdDev, KindVariance:
		out := make([]float64, 0, len(a.Samples)+len(b.Samples))
		out = append(out, a.Samples...)
		out = append(out, b.Samples...)
		return Value{Kind: a.Kind, Samples: out}, nil
	case KindUnique:
		merged := Value{Kind: KindUnique, uniqueKeys: map[string]struct{}{}}
		for _, v := range a.UniqueVals {
			merged.addUnique(v)
		}
		for _, v := range b.UniqueVals {
			merged.addUnique(v)
		}
		return merged, nil
	case KindConcat:
		return Value{Kind: KindConcat, Text: a.Text + b.Text}, nil
	case KindMerge:
		merged := Value{Kind: KindMerge, Map: map[string]interface{}{}}
		for _, k := range a.mapOrder {
			merged.setMerge(k, a.Map[k])
		}
		for _, k := range b.mapOrder {
			merged.setMerge(k, b.Map[k])
		}
		return merged, nil
	case KindGroupBy:
		groups := map[string][]interface{}{}
		for k, v := range a.Groups {
			groups[k] = append(groups[k], v...)
		}
		for k, v := range b.Groups {
			groups[k] = append(groups[k], v...)
		}
		return Value{Kind: KindGroupBy, Groups: groups}, nil
	default:
		return Value{}, fmt.Errorf("unknown aggregate kind %q", a.Kind)
	}
}

// CombineAll reduces values left-to-right, preserving slice order —
// required for Concat/Sort/Flatten's order sensitivity and harmless for
// every other variant. It accumulates every kind mismatch rather than
// stopping at the first, per the validator contract this Aggregator
// follows (spec §4.H/§4.J): one pass reports every offending index.
func CombineAll(values []Value) (Value, []error) {
	if len(values) == 0 {
		return Value{}, nil
	}

	acc := values[0]
	var errs []error
	for i := 1; i < len(values); i++ {
		merged, err := Combine(acc, values[i])
		if err != nil {
			var mismatch *MismatchError
			if errors.As(err, &mismatch) {
				mismatch.Index = i
			}
			errs = append(errs, err)
			continue
		}
		acc = merged
	}
	return acc, errs
}
