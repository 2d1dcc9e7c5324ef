package aggregate

import (
	"encoding/json"
	"fmt"
	"sort"
)

// typeRank orders mixed-type Min/Max comparisons when two scalars
// aren't directly comparable: nil < bools < numbers < strings <
// everything else, arbitrarily but consistently.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int, int64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// compareScalars returns -1, 0, or 1 for a relative to b. Numbers
// compare numerically, strings lexically, and mixed types by typeRank.
func compareScalars(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	case 1:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba && bb {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// sortValues sorts a slice of mixed-type scalars using compareScalars,
// descending if desc is true.
func sortValues(vs []interface{}, desc bool) {
	sort.SliceStable(vs, func(i, j int) bool {
		c := compareScalars(vs[i], vs[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// canonicalKey produces a deduping key for Unique by canonical JSON
// encoding; values that fail to marshal fall back to fmt.Sprintf so
// Unique still degrades gracefully instead of panicking.
func canonicalKey(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
