package columnar

import (
	"fmt"
	"sort"
	"time"

	"github.com/solidb/solidb/pkg/dberr"
)

// AggregateOp enumerates the aggregate functions spec.md §4.C and §4.M
// name: Sum, Avg, Count, Min, Max, CountDistinct.
type AggregateOp string

const (
	AggSum           AggregateOp = "sum"
	AggAvg           AggregateOp = "avg"
	AggCount         AggregateOp = "count"
	AggMin           AggregateOp = "min"
	AggMax           AggregateOp = "max"
	AggCountDistinct AggregateOp = "count_distinct"
)

// Aggregate reduces column across every live row with op.
func (c *Collection) Aggregate(column string, op AggregateOp) (float64, error) {
	rows, err := c.allRows([]string{column})
	if err != nil {
		return 0, err
	}
	values := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Values[column])
	}
	return reduce(values, op)
}

// GroupKey is either a plain column name or a TIME_BUCKET(column,
// interval) expression, matching spec.md §4.C/§4.M's columnar
// aggregation fast path.
type GroupKey struct {
	Column   string
	Bucket   string // non-empty => TIME_BUCKET(Column, Bucket)
}

// GroupResult is one group's key values plus its aggregate.
type GroupResult struct {
	Keys      map[string]interface{} `json:"keys"`
	Aggregate float64                `json:"_agg"`
}

// GroupBy partitions live rows by keys, reduces aggCol with op within
// each partition, and returns one GroupResult per distinct key
// combination. Key order in the output is the order partitions were
// first seen, for determinism across identical input.
func (c *Collection) GroupBy(keys []GroupKey, aggCol string, op AggregateOp) ([]GroupResult, error) {
	needed := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		needed = append(needed, k.Column)
	}
	needed = append(needed, aggCol)

	rows, err := c.allRows(needed)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		keys   map[string]interface{}
		values []interface{}
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)

	for _, r := range rows {
		keyValues := make(map[string]interface{}, len(keys))
		sig := ""
		for _, k := range keys {
			v := r.Values[k.Column]
			if k.Bucket != "" {
				v = timeBucket(v, k.Bucket)
			}
			keyValues[k.Column] = v
			sig += fmt.Sprintf("|%v", v)
		}
		b, ok := buckets[sig]
		if !ok {
			b = &bucket{keys: keyValues}
			buckets[sig] = b
			order = append(order, sig)
		}
		b.values = append(b.values, r.Values[aggCol])
	}

	results := make([]GroupResult, 0, len(order))
	for _, sig := range order {
		b := buckets[sig]
		agg, err := reduce(b.values, op)
		if err != nil {
			return nil, err
		}
		results = append(results, GroupResult{Keys: b.keys, Aggregate: agg})
	}
	return results, nil
}

func reduce(values []interface{}, op AggregateOp) (float64, error) {
	switch op {
	case AggCount:
		return float64(len(values)), nil
	case AggCountDistinct:
		seen := make(map[string]struct{}, len(values))
		for _, v := range values {
			seen[fmt.Sprint(v)] = struct{}{}
		}
		return float64(len(seen)), nil
	}

	var nums []float64
	for _, v := range values {
		if f, ok := toFloat(v); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0, nil
	}
	switch op {
	case AggSum:
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum, nil
	case AggAvg:
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums)), nil
	case AggMin:
		sort.Float64s(nums)
		return nums[0], nil
	case AggMax:
		sort.Float64s(nums)
		return nums[len(nums)-1], nil
	default:
		return 0, dberr.BadRequest("unsupported aggregate op " + string(op))
	}
}

// timeBucket floors a timestamp value to the start of its interval
// ("1m", "5m", "1h", "1d"), matching SDBQL's TIME_BUCKET builtin. Values
// that are not parseable timestamps pass through unchanged.
func timeBucket(v interface{}, interval string) interface{} {
	t, ok := parseTimestamp(v)
	if !ok {
		return v
	}
	d, err := time.ParseDuration(interval)
	if err != nil {
		d = dayDuration(interval)
		if d == 0 {
			return v
		}
	}
	return t.Truncate(d).UTC().Format(time.RFC3339)
}

func dayDuration(interval string) time.Duration {
	if interval == "1d" || interval == "24h" {
		return 24 * time.Hour
	}
	return 0
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	}
	return time.Time{}, false
}
