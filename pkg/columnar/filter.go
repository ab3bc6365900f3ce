package columnar

import "fmt"

// FilterOp enumerates the predicate-pushdown comparisons spec.md §4.C
// names: Eq, Ne, Gt, Gte, Lt, Lte, In.
type FilterOp string

const (
	FilterEq  FilterOp = "eq"
	FilterNe  FilterOp = "ne"
	FilterGt  FilterOp = "gt"
	FilterGte FilterOp = "gte"
	FilterLt  FilterOp = "lt"
	FilterLte FilterOp = "lte"
	FilterIn  FilterOp = "in"
)

// ColumnFilter is evaluated against a decompressed column value before
// projection. ScanFiltered decompresses every column of each row group
// before filtering, so rows that fail the filter are still fully
// materialized.
type ColumnFilter struct {
	Column string
	Op     FilterOp
	Value  interface{}
	Values []interface{} // used by FilterIn
}

func (f ColumnFilter) Matches(v interface{}) bool {
	switch f.Op {
	case FilterEq:
		return compareEqual(v, f.Value)
	case FilterNe:
		return !compareEqual(v, f.Value)
	case FilterIn:
		for _, want := range f.Values {
			if compareEqual(v, want) {
				return true
			}
		}
		return false
	case FilterGt, FilterGte, FilterLt, FilterLte:
		a, aok := toFloat(v)
		b, bok := toFloat(f.Value)
		if !aok || !bok {
			return false
		}
		switch f.Op {
		case FilterGt:
			return a > b
		case FilterGte:
			return a >= b
		case FilterLt:
			return a < b
		default:
			return a <= b
		}
	default:
		return false
	}
}

func compareEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
