package sdbql

import (
	"encoding/json"
	"sort"
)

// isTruthy implements SDBQL's truthiness rule for FILTER/logical
// operators: null and false are falsy, everything else (including 0 and
// "") is truthy, matching the JSON value model spec.md §4.M describes.
func isTruthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// compareValues implements SDBQL's comparison rule: numeric comparison
// when both sides are numbers, lexicographic when both are strings.
// Incompatible types report ok=false; valuesEqual (==/!=) then compares
// the canonical JSON forms, and ordering comparisons evaluate to false.
func compareValues(a, b interface{}) (int, bool) {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if as, aok := asString(a); aok {
		if bs, bok := asString(b); bok {
			switch {
			case as < bs:
				return -1, true
			case as > bs:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	return 0, false
}

// valuesEqual implements SDBQL's equality rule: deep structural equality
// via canonical JSON encoding, so arrays/objects compare by value.
func valuesEqual(a, b interface{}) bool {
	if n, ok := compareValues(a, b); ok {
		return n == 0
	}
	return canonicalJSON(a) == canonicalJSON(b)
}

// canonicalJSON serializes v with map keys sorted, used by
// COUNT_DISTINCT to canonicalize values before deduplicating and by
// valuesEqual as a structural-equality fallback.
func canonicalJSON(v interface{}) string {
	raw, err := json.Marshal(sortedCopy(v))
	if err != nil {
		return ""
	}
	return string(raw)
}

func sortedCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, kv{k, sortedCopy(t[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = sortedCopy(e)
		}
		return out
	default:
		return t
	}
}

type kv struct {
	K string
	V interface{}
}

// orderedMap marshals as a JSON object preserving insertion order, so
// sortedCopy's key-sorted map round-trips deterministically.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, _ := json.Marshal(pair.K)
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		valJSON, err := json.Marshal(pair.V)
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
