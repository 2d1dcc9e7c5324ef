// Package aggregate implements the Aggregator (component J): a tagged
// variant value type where every variant is a semigroup under Combine,
// safe for parallel, associative reduction.
package aggregate

// Kind identifies an aggregate variant. Each variant combines only with
// itself; combining across variants is a validation error.
type Kind string

const (
	KindCount    Kind = "count"
	KindSum      Kind = "sum"
	KindMin      Kind = "min"
	KindMax      Kind = "max"
	KindCollect  Kind = "collect"
	KindAverage  Kind = "average"
	KindMedian   Kind = "median"
	KindStdDev   Kind = "std_dev"
	KindVariance Kind = "variance"
	KindUnique   Kind = "unique"
	KindConcat   Kind = "concat"
	KindMerge    Kind = "merge"
	KindFlatten  Kind = "flatten"
	KindSort     Kind = "sort"
	KindGroupBy  Kind = "group_by"
)

// Value is a single aggregate accumulator. Only the fields relevant to
// Kind are populated; Combine and Finalize dispatch on Kind.
type Value struct {
	Kind Kind

	// Count, Sum
	Count int64
	Sum   float64

	// Min, Max
	Scalar interface{}

	// Collect, Flatten
	List []interface{}

	// Average
	AvgSum   float64
	AvgCount int64

	// Median, StdDev, Variance
	Samples []float64

	// Unique: insertion order preserved, deduped by canonical key
	uniqueKeys map[string]struct{}
	UniqueVals []interface{}

	// Concat
	Text string

	// Merge: earlier value wins on key collision
	Map      map[string]interface{}
	mapOrder []string

	// Sort
	SortDesc bool

	// GroupBy
	Groups map[string][]interface{}
}

func NewCount(n int64) Value               { return Value{Kind: KindCount, Count: n} }
func NewSum(x float64) Value               { return Value{Kind: KindSum, Sum: x} }
func NewMin(v interface{}) Value           { return Value{Kind: KindMin, Scalar: v} }
func NewMax(v interface{}) Value           { return Value{Kind: KindMax, Scalar: v} }
func NewCollect(vs ...interface{}) Value   { return Value{Kind: KindCollect, List: vs} }
func NewAverage(sum float64, n int64) Value {
	return Value{Kind: KindAverage, AvgSum: sum, AvgCount: n}
}
func NewMedian(samples ...float64) Value   { return Value{Kind: KindMedian, Samples: samples} }
func NewStdDev(samples ...float64) Value   { return Value{Kind: KindStdDev, Samples: samples} }
func NewVariance(samples ...float64) Value { return Value{Kind: KindVariance, Samples: samples} }
func NewConcat(s string) Value             { return Value{Kind: KindConcat, Text: s} }
func NewFlatten(vs ...interface{}) Value   { return Value{Kind: KindFlatten, List: vs} }
func NewSort(desc bool, vs ...interface{}) Value {
	return Value{Kind: KindSort, SortDesc: desc, List: vs}
}

// NewUnique builds a Unique accumulator from initial values, deduping
// by canonical JSON encoding.
func NewUnique(vs ...interface{}) Value {
	v := Value{Kind: KindUnique, uniqueKeys: map[string]struct{}{}}
	for _, x := range vs {
		v.addUnique(x)
	}
	return v
}

func (v *Value) addUnique(x interface{}) {
	if v.uniqueKeys == nil {
		v.uniqueKeys = map[string]struct{}{}
	}
	key := canonicalKey(x)
	if _, ok := v.uniqueKeys[key]; ok {
		return
	}
	v.uniqueKeys[key] = struct{}{}
	v.UniqueVals = append(v.UniqueVals, x)
}

// NewMerge builds a Merge accumulator. On key collision within the
// initial map the behavior is undefined by Go map iteration, so callers
// should build multi-key Merge values via repeated Combine instead.
func NewMerge(m map[string]interface{}) Value {
	v := Value{Kind: KindMerge, Map: map[string]interface{}{}}
	for k, val := range m {
		v.setMerge(k, val)
	}
	return v
}

func (v *Value) setMerge(k string, val interface{}) {
	if v.Map == nil {
		v.Map = map[string]interface{}{}
	}
	if _, exists := v.Map[k]; exists {
		return // earlier value wins
	}
	v.Map[k] = val
	v.mapOrder = append(v.mapOrder, k)
}

// NewGroupBy builds a GroupBy accumulator from a single key/value pair.
func NewGroupBy(key string, vs ...interface{}) Value {
	return Value{Kind: KindGroupBy, Groups: map[string][]interface{}{key: vs}}
}
