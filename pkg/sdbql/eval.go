package sdbql

import (
	"context"
	"sort"

	"github.com/solidb/solidb/pkg/columnar"
	"github.com/solidb/solidb/pkg/doc"
	"github.com/solidb/solidb/pkg/sdbql/builtins"
	"github.com/solidb/solidb/pkg/types"
)

// Runtime is everything the evaluator needs from a node to resolve a
// query's collections. *pkg/database.Database satisfies it directly.
type Runtime interface {
	Open(database, collection string) (*doc.Collection, error)
	OpenColumnar(database, collection string) (*columnar.Collection, error)
	CollectionMeta(database, collection string) (types.CollectionMeta, bool)
	ColumnarMeta(database, collection string) (types.ColumnarMeta, bool)
}

// maxScanRows bounds how many documents a non-fast-path FOR loop will
// pull into memory; SDBQL is an in-process scan engine, not a query
// planner with index selection, so large collections should prefer the
// columnar fast path or a narrower FILTER.
const maxScanRows = 100_000

// streamingBulkInsertThreshold is spec.md §4.M's minimum range size
// `FOR i IN start..end INSERT {...} INTO coll` must meet to take the
// streaming fast path.
const streamingBulkInsertThreshold = 5000

const streamingBulkInsertBatch = 5000

// Execute parses and runs one SDBQL query against database, returning
// the RETURN projection (a slice of values) for read queries, or a
// result describing how many rows an INSERT/UPDATE/REMOVE/UPSERT
// touched.
func Execute(ctx context.Context, rt Runtime, database, query string) (result interface{}, err error) {
	q, perr := Parse(query)
	if perr != nil {
		return nil, perr
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = executionError("internal error: %v", r)
		}
	}()
	return (&evaluator{ctx: ctx, rt: rt, database: database}).run(q)
}

type evaluator struct {
	ctx      context.Context
	rt       Runtime
	database string

	// loopVar and currentCollection track the query's FOR binding while
	// evaluating row expressions, so BM25(field, query) can score "the
	// document currently bound to the loop variable" without the
	// caller naming the collection again.
	loopVar          string
	currentCollection string
	bm25Cache        map[string]*builtins.BM25Corpus
}

// run dispatches to a fast path when the query matches one of spec.md
// §4.M's two mandatory shapes, otherwise falls back to the general
// tree-walking evaluator.
func (e *evaluator) run(q *Query) (interface{}, error) {
	e.loopVar = q.Var
	if e.bm25Cache == nil {
		e.bm25Cache = make(map[string]*builtins.BM25Corpus)
	}
	if fast, ok, err := e.tryColumnarAggregate(q); ok || err != nil {
		return fast, err
	}
	if fast, ok, err := e.tryStreamingBulkInsert(q); ok || err != nil {
		return fast, err
	}
	return e.runGeneral(q)
}

// tryColumnarAggregate implements fast path 1: `FOR x IN <columnar>`
// plus a single COLLECT … AGGREGATE … RETURN, delegating to
// ColumnarCollection.Aggregate/GroupBy instead of scanning rows in Go.
func (e *evaluator) tryColumnarAggregate(q *Query) (interface{}, bool, error) {
	coll, ok := q.Source.(CollectionSource)
	if !ok || len(q.Aggregate) != 1 || len(q.Filters) != 0 || len(q.SortKeys) != 0 || q.LimitExpr != nil {
		return nil, false, nil
	}
	ret, ok := q.Action.(ReturnAction)
	if !ok {
		return nil, false, nil
	}
	if _, ok := e.rt.ColumnarMeta(e.database, coll.Name); !ok {
		return nil, false, nil
	}
	col, err := e.rt.OpenColumnar(e.database, coll.Name)
	if err != nil {
		return nil, true, err
	}

	agg := q.Aggregate[0]
	op, err := aggregateOp(agg.Func)
	if err != nil {
		return nil, true, err
	}
	field, err := fieldAccessColumn(agg.Arg, q.Var)
	if err != nil {
		return nil, true, err
	}

	if len(q.GroupBy) == 0 {
		value, err := col.Aggregate(field, op)
		if err != nil {
			return nil, true, executionError("columnar aggregate: %v", err)
		}
		projected, err := e.evalExpr(ret.Expr, map[string]interface{}{agg.Var: value}, nil)
		if err != nil {
			return nil, true, err
		}
		return []interface{}{projected}, true, nil
	}

	keys := make([]columnar.GroupKey, 0, len(q.GroupBy))
	for _, g := range q.GroupBy {
		if call, ok := g.Expr.(Call); ok && normalizeFuncName(call.Name) == "TIME_BUCKET" {
			if len(call.Args) != 2 {
				return nil, true, arityError("TIME_BUCKET", 2, len(call.Args))
			}
			col, err := fieldAccessColumn(call.Args[0], q.Var)
			if err != nil {
				return nil, true, err
			}
			interval, ok := call.Args[1].(StringLit)
			if !ok {
				return nil, true, typeError("TIME_BUCKET interval must be a string literal")
			}
			keys = append(keys, columnar.GroupKey{Column: col, Bucket: interval.Value})
			continue
		}
		fieldName, err := fieldAccessColumn(g.Expr, q.Var)
		if err != nil {
			return nil, true, err
		}
		keys = append(keys, columnar.GroupKey{Column: fieldName})
	}

	groups, err := col.GroupBy(keys, field, op)
	if err != nil {
		return nil, true, executionError("columnar group_by: %v", err)
	}
	out := make([]interface{}, 0, len(groups))
	for _, g := range groups {
		row := make(map[string]interface{}, len(q.GroupBy)+1)
		for i, ga := range q.GroupBy {
			row[ga.Var] = g.Keys[keys[i].Column]
		}
		row[agg.Var] = g.Aggregate
		projected, err := e.evalExpr(ret.Expr, row, nil)
		if err != nil {
			return nil, true, err
		}
		out = append(out, projected)
	}
	return out, true, nil
}

func aggregateOp(name string) (columnar.AggregateOp, error) {
	switch normalizeFuncName(name) {
	case "COUNT":
		return columnar.AggCount, nil
	case "SUM":
		return columnar.AggSum, nil
	case "AVG":
		return columnar.AggAvg, nil
	case "MIN":
		return columnar.AggMin, nil
	case "MAX":
		return columnar.AggMax, nil
	case "COUNT_DISTINCT":
		return columnar.AggCountDistinct, nil
	}
	return "", unknownFunction(name)
}

func normalizeFuncName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// fieldAccessColumn requires expr to be `<loopVar>.<field>` and returns
// field, per spec.md §4.M's "aggregate arguments of the form x.<field>".
func fieldAccessColumn(expr Expression, loopVar string) (string, error) {
	fa, ok := expr.(FieldAccess)
	if !ok {
		return "", typeError("expected a field reference of the form %s.<field>", loopVar)
	}
	v, ok := fa.Base.(Var)
	if !ok || v.Name != loopVar {
		return "", typeError("expected a field reference of the form %s.<field>", loopVar)
	}
	return fa.Field, nil
}

// tryStreamingBulkInsert implements fast path 2: `FOR i IN start..end
// INSERT {…} INTO coll` with (end-start+1) >= 5000, processed in
// batches rather than one row at a time, and disabled for sharded
// collections since routing isn't attempted here.
func (e *evaluator) tryStreamingBulkInsert(q *Query) (interface{}, bool, error) {
	rangeSrc, ok := q.Source.(RangeSource)
	if !ok {
		return nil, false, nil
	}
	insert, ok := q.Action.(InsertAction)
	if !ok || len(q.Filters) != 0 || len(q.Aggregate) != 0 {
		return nil, false, nil
	}
	startLit, ok1 := rangeSrc.Start.(NumberLit)
	endLit, ok2 := rangeSrc.End.(NumberLit)
	if !ok1 || !ok2 {
		return nil, false, nil
	}
	start, end := int64(startLit.Value), int64(endLit.Value)
	count := end - start + 1
	if count < streamingBulkInsertThreshold {
		return nil, false, nil
	}

	meta, ok := e.rt.CollectionMeta(e.database, insert.Collection)
	if !ok {
		return nil, true, collectionNotFound(insert.Collection)
	}
	if meta.Sharded() {
		return nil, false, nil
	}
	col, err := e.rt.Open(e.database, insert.Collection)
	if err != nil {
		return nil, true, err
	}

	inserted := int64(0)
	batch := make([]map[string]interface{}, 0, streamingBulkInsertBatch)
	env := map[string]interface{}{}
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := col.InsertBatch(batch); err != nil {
			return executionError("streaming bulk insert: %v", err)
		}
		inserted += int64(len(batch))
		batch = batch[:0]
		return nil
	}
	for i := start; i <= end; i++ {
		env[q.Var] = float64(i)
		doc, err := e.evalExpr(insert.Doc, env, nil)
		if err != nil {
			return nil, true, err
		}
		m, ok := doc.(map[string]interface{})
		if !ok {
			return nil, true, typeError("INSERT document must be an object")
		}
		batch = append(batch, m)
		if len(batch) >= streamingBulkInsertBatch {
			if err := flush(); err != nil {
				return nil, true, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, true, err
	}
	return map[string]interface{}{"inserted": inserted}, true, nil
}

// runGeneral evaluates any query shape that isn't a fast path: resolve
// rows from the source, FILTER, COLLECT/AGGREGATE, SORT, LIMIT, then
// apply the terminal action.
func (e *evaluator) runGeneral(q *Query) (interface{}, error) {
	rows, err := e.resolveSource(q)
	if err != nil {
		return nil, err
	}

	filtered := rows[:0:0]
	for _, row := range rows {
		env := map[string]interface{}{q.Var: row}
		ok := true
		for _, f := range q.Filters {
			v, err := e.evalExpr(f, env, nil)
			if err != nil {
				return nil, err
			}
			if !isTruthy(v) {
				ok = false
				break
			}
		}
		if ok {
			filtered = append(filtered, row)
		}
	}
	rows = filtered

	grouped := len(q.GroupBy) > 0 || len(q.Aggregate) > 0
	if grouped {
		rows, err = e.group(q, rows)
		if err != nil {
			return nil, err
		}
	}

	if len(q.SortKeys) > 0 {
		if err := e.sortRows(q, rows, grouped); err != nil {
			return nil, err
		}
	}

	rows, err = e.applyLimit(q, rows)
	if err != nil {
		return nil, err
	}

	return e.applyAction(q, rows, grouped)
}

// rowEnv binds the expression environment for one row: after COLLECT …
// AGGREGATE the row is already a map keyed by the group/aggregate
// variable names (host, total, …), so those names resolve directly;
// otherwise the row is bound under the FOR loop's own variable.
func rowEnv(q *Query, row interface{}, grouped bool) map[string]interface{} {
	if grouped {
		if m, ok := row.(map[string]interface{}); ok {
			return m
		}
	}
	return map[string]interface{}{q.Var: row}
}

func (e *evaluator) resolveSource(q *Query) ([]interface{}, error) {
	switch src := q.Source.(type) {
	case CollectionSource:
		e.currentCollection = src.Name
		col, err := e.rt.Open(e.database, src.Name)
		if err != nil {
			return nil, err
		}
		docs, err := col.Scan(maxScanRows)
		if err != nil {
			return nil, executionError("scan %s: %v", src.Name, err)
		}
		out := make([]interface{}, len(docs))
		for i, d := range docs {
			out[i] = docToMap(d)
		}
		return out, nil

	case RangeSource:
		start, err := e.evalExpr(src.Start, nil, nil)
		if err != nil {
			return nil, err
		}
		end, err := e.evalExpr(src.End, nil, nil)
		if err != nil {
			return nil, err
		}
		sf, ok1 := asNumber(start)
		ef, ok2 := asNumber(end)
		if !ok1 || !ok2 {
			return nil, typeError("range bounds must be numbers")
		}
		var out []interface{}
		for i := int64(sf); i <= int64(ef); i++ {
			out = append(out, float64(i))
			if len(out) > maxScanRows {
				return nil, executionError("range source exceeds %d rows", maxScanRows)
			}
		}
		return out, nil

	case ExprSource:
		if call, ok := src.Expr.(Call); ok {
			return e.resolveCallSource(call)
		}
		v, err := e.evalExpr(src.Expr, nil, nil)
		if err != nil {
			return nil, err
		}
		arr, ok := v.([]interface{})
		if !ok {
			return nil, typeError("FOR source must be a collection, range, or array")
		}
		return arr, nil
	}
	return nil, executionError("unsupported FOR source")
}

// docToMap flattens a types.Document into the bare map[string]interface{}
// SDBQL expressions index into, exposing _key/_id/_rev alongside fields.
func docToMap(d types.Document) map[string]interface{} {
	out := make(map[string]interface{}, len(d.Fields)+3)
	for k, v := range d.Fields {
		out[k] = v
	}
	out["_key"] = d.Key
	out["_id"] = d.ID
	out["_rev"] = d.Rev
	return out
}

func (e *evaluator) sortRows(q *Query, rows []interface{}, grouped bool) error {
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, sk := range q.SortKeys {
			vi, err := e.evalExpr(sk.Expr, rowEnv(q, rows[i], grouped), nil)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := e.evalExpr(sk.Expr, rowEnv(q, rows[j], grouped), nil)
			if err != nil {
				sortErr = err
				return false
			}
			cmp, ok := compareValues(vi, vj)
			if !ok || cmp == 0 {
				continue
			}
			if sk.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return sortErr
}

func (e *evaluator) applyLimit(q *Query, rows []interface{}) ([]interface{}, error) {
	offset := 0
	if q.OffsetExpr != nil {
		v, err := e.evalExpr(q.OffsetExpr, nil, nil)
		if err != nil {
			return nil, err
		}
		n, ok := asNumber(v)
		if !ok {
			return nil, typeError("LIMIT offset must be a number")
		}
		offset = int(n)
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if q.LimitExpr == nil {
		return rows, nil
	}
	v, err := e.evalExpr(q.LimitExpr, nil, nil)
	if err != nil {
		return nil, err
	}
	n, ok := asNumber(v)
	if !ok {
		return nil, typeError("LIMIT count must be a number")
	}
	limit := int(n)
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (e *evaluator) applyAction(q *Query, rows []interface{}, grouped bool) (interface{}, error) {
	switch action := q.Action.(type) {
	case ReturnAction:
		out := make([]interface{}, len(rows))
		for i, row := range rows {
			v, err := e.evalExpr(action.Expr, rowEnv(q, row, grouped), nil)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case InsertAction:
		col, err := e.rt.Open(e.database, action.Collection)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, row := range rows {
			v, err := e.evalExpr(action.Doc, rowEnv(q, row, grouped), nil)
			if err != nil {
				return nil, err
			}
			m, ok := v.(map[string]interface{})
			if !ok {
				return nil, typeError("INSERT document must be an object")
			}
			if _, err := col.Insert(m); err != nil {
				return nil, executionError("insert: %v", err)
			}
			count++
		}
		return map[string]interface{}{"inserted": count}, nil

	case UpdateAction:
		col, err := e.rt.Open(e.database, action.Collection)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, row := range rows {
			env := rowEnv(q, row, grouped)
			keyVal, err := e.evalExpr(action.Key, env, nil)
			if err != nil {
				return nil, err
			}
			key, ok := asString(keyVal)
			if !ok {
				return nil, typeError("UPDATE key must be a string")
			}
			patchVal, err := e.evalExpr(action.Patch, env, nil)
			if err != nil {
				return nil, err
			}
			patch, ok := patchVal.(map[string]interface{})
			if !ok {
				return nil, typeError("UPDATE patch must be an object")
			}
			if _, err := col.Update(key, patch); err != nil {
				return nil, executionError("update: %v", err)
			}
			count++
		}
		return map[string]interface{}{"updated": count}, nil

	case RemoveAction:
		col, err := e.rt.Open(e.database, action.Collection)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, row := range rows {
			env := rowEnv(q, row, grouped)
			keyVal, err := e.evalExpr(action.Key, env, nil)
			if err != nil {
				return nil, err
			}
			key, ok := asString(keyVal)
			if !ok {
				return nil, typeError("REMOVE key must be a string")
			}
			if err := col.Delete(key); err != nil {
				return nil, executionError("remove: %v", err)
			}
			count++
		}
		return map[string]interface{}{"removed": count}, nil

	case UpsertAction:
		col, err := e.rt.Open(e.database, action.Collection)
		if err != nil {
			return nil, err
		}
		inserted, updated := 0, 0
		base := rows
		if len(base) == 0 {
			base = []interface{}{nil}
		}
		for _, row := range base {
			env := rowEnv(q, row, grouped)
			searchVal, err := e.evalExpr(action.Search, env, nil)
			if err != nil {
				return nil, err
			}
			search, _ := searchVal.(map[string]interface{})
			key, _ := asString(search["_key"])

			if key != "" {
				if _, getErr := col.Get(key); getErr == nil {
					patchVal, err := e.evalExpr(action.Update, env, nil)
					if err != nil {
						return nil, err
					}
					patch, ok := patchVal.(map[string]interface{})
					if !ok {
						return nil, typeError("UPSERT update clause must be an object")
					}
					if _, err := col.Update(key, patch); err != nil {
						return nil, executionError("upsert update: %v", err)
					}
					updated++
					continue
				}
			}
			insVal, err := e.evalExpr(action.Insert, env, nil)
			if err != nil {
				return nil, err
			}
			ins, ok := insVal.(map[string]interface{})
			if !ok {
				return nil, typeError("UPSERT insert clause must be an object")
			}
			if _, err := col.Insert(ins); err != nil {
				return nil, executionError("upsert insert: %v", err)
			}
			inserted++
		}
		return map[string]interface{}{"inserted": inserted, "updated": updated}, nil
	}
	return nil, executionError("unsupported action")
}

// group implements non-fast-path COLLECT … AGGREGATE for sources other
// than a columnar collection (document collections, ranges, arrays),
// reducing with the same operator semantics as pkg/columnar.reduce.
func (e *evaluator) group(q *Query, rows []interface{}) ([]interface{}, error) {
	type groupState struct {
		keys   map[string]interface{}
		values map[string][]interface{}
		count  int
	}
	order := make([]string, 0)
	groups := make(map[string]*groupState)

	for _, row := range rows {
		env := map[string]interface{}{q.Var: row}
		keys := make(map[string]interface{}, len(q.GroupBy))
		for _, g := range q.GroupBy {
			v, err := e.evalExpr(g.Expr, env, nil)
			if err != nil {
				return nil, err
			}
			keys[g.Var] = v
		}
		id := canonicalJSON(keys)
		gs, ok := groups[id]
		if !ok {
			gs = &groupState{keys: keys, values: make(map[string][]interface{})}
			groups[id] = gs
			order = append(order, id)
		}
		gs.count++
		for _, agg := range q.Aggregate {
			if agg.Arg == nil {
				continue
			}
			v, err := e.evalExpr(agg.Arg, env, nil)
			if err != nil {
				return nil, err
			}
			gs.values[agg.Var] = append(gs.values[agg.Var], v)
		}
	}

	out := make([]interface{}, 0, len(order))
	for _, id := range order {
		gs := groups[id]
		row := make(map[string]interface{}, len(gs.keys)+len(q.Aggregate))
		for k, v := range gs.keys {
			row[k] = v
		}
		for _, agg := range q.Aggregate {
			v, err := reduceGeneral(agg.Func, gs.values[agg.Var], gs.count)
			if err != nil {
				return nil, err
			}
			row[agg.Var] = v
		}
		out = append(out, row)
	}
	return out, nil
}

// reduceGeneral implements spec.md §4.M's aggregation semantics for the
// general (non-columnar) evaluation path: COUNT() counts rows, COUNT(e)
// counts non-null, AVG is null on an empty group, MIN/MAX compare
// numerically when both sides are numeric and lexicographically when
// both are strings (a value that cannot be compared with the current best
// is skipped), COUNT_DISTINCT canonicalises by JSON serialisation.
func reduceGeneral(fn string, values []interface{}, rowCount int) (interface{}, error) {
	switch normalizeFuncName(fn) {
	case "COUNT":
		if len(values) == 0 {
			return float64(rowCount), nil
		}
		n := 0
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return float64(n), nil
	case "SUM":
		var sum float64
		for _, v := range values {
			if f, ok := asNumber(v); ok {
				sum += f
			}
		}
		return sum, nil
	case "AVG":
		var sum float64
		var n int
		for _, v := range values {
			if f, ok := asNumber(v); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil
	case "MIN", "MAX":
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			cmp, ok := compareValues(v, best)
			if !ok {
				continue
			}
			if (normalizeFuncName(fn) == "MIN" && cmp < 0) || (normalizeFuncName(fn) == "MAX" && cmp > 0) {
				best = v
			}
		}
		return best, nil
	case "COUNT_DISTINCT":
		seen := make(map[string]bool)
		for _, v := range values {
			seen[canonicalJSON(v)] = true
		}
		return float64(len(seen)), nil
	}
	return nil, unknownFunction(fn)
}

// fulltextCorpusCache is threaded through expression evaluation, but no
// function reads or writes it: BM25 corpora are cached in
// evaluator.bm25Cache, and FULLTEXT builds its corpus on each call.
type fulltextCorpusCache map[string]*builtins.BM25Corpus

func (e *evaluator) evalExpr(expr Expression, env map[string]interface{}, cache fulltextCorpusCache) (interface{}, error) {
	if cache == nil {
		cache = make(fulltextCorpusCache)
	}
	switch n := expr.(type) {
	case NullLit:
		return nil, nil
	case BoolLit:
		return n.Value, nil
	case NumberLit:
		return n.Value, nil
	case StringLit:
		return n.Value, nil

	case ArrayLit:
		out := make([]interface{}, len(n.Elements))
		for i, el := range n.Elements {
			v, err := e.evalExpr(el, env, cache)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case ObjectLit:
		out := make(map[string]interface{}, len(n.Keys))
		for i, k := range n.Keys {
			v, err := e.evalExpr(n.Values[i], env, cache)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case Var:
		v, ok := env[n.Name]
		if !ok {
			return nil, nil
		}
		return v, nil

	case FieldAccess:
		base, err := e.evalExpr(n.Base, env, cache)
		if err != nil {
			return nil, err
		}
		m, ok := base.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		return m[n.Field], nil

	case IndexAccess:
		base, err := e.evalExpr(n.Base, env, cache)
		if err != nil {
			return nil, err
		}
		idx, err := e.evalExpr(n.Index, env, cache)
		if err != nil {
			return nil, err
		}
		switch b := base.(type) {
		case []interface{}:
			f, ok := asNumber(idx)
			if !ok || int(f) < 0 || int(f) >= len(b) {
				return nil, nil
			}
			return b[int(f)], nil
		case map[string]interface{}:
			s, _ := asString(idx)
			return b[s], nil
		}
		return nil, nil

	case Unary:
		v, err := e.evalExpr(n.Operand, env, cache)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "!":
			return !isTruthy(v), nil
		case "-":
			f, ok := asNumber(v)
			if !ok {
				return nil, typeError("unary - requires a number")
			}
			return -f, nil
		}
		return nil, executionError("unknown unary operator %q", n.Op)

	case Binary:
		return e.evalBinary(n, env, cache)

	case Call:
		return e.evalCall(n, env, cache)
	}
	return nil, executionError("unsupported expression")
}

func (e *evaluator) evalBinary(n Binary, env map[string]interface{}, cache fulltextCorpusCache) (interface{}, error) {
	if n.Op == "&&" {
		left, err := e.evalExpr(n.Left, env, cache)
		if err != nil {
			return nil, err
		}
		if !isTruthy(left) {
			return false, nil
		}
		right, err := e.evalExpr(n.Right, env, cache)
		if err != nil {
			return nil, err
		}
		return isTruthy(right), nil
	}
	if n.Op == "||" {
		left, err := e.evalExpr(n.Left, env, cache)
		if err != nil {
			return nil, err
		}
		if isTruthy(left) {
			return true, nil
		}
		right, err := e.evalExpr(n.Right, env, cache)
		if err != nil {
			return nil, err
		}
		return isTruthy(right), nil
	}

	left, err := e.evalExpr(n.Left, env, cache)
	if err != nil {
		return nil, err
	}
	right, err := e.evalExpr(n.Right, env, cache)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case "<", "<=", ">", ">=":
		cmp, ok := compareValues(left, right)
		if !ok {
			return false, nil
		}
		switch n.Op {
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case "+":
		if ls, ok := asString(left); ok {
			if rs, ok := asString(right); ok {
				return ls + rs, nil
			}
		}
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if !lok || !rok {
			return nil, typeError("+ requires two numbers or two strings")
		}
		return lf + rf, nil
	case "-", "*", "/", "%":
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if !lok || !rok {
			return nil, typeError("%s requires two numbers", n.Op)
		}
		switch n.Op {
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			if rf == 0 {
				return nil, executionError("division by zero")
			}
			return lf / rf, nil
		default:
			if rf == 0 {
				return nil, executionError("modulo by zero")
			}
			return float64(int64(lf) % int64(rf)), nil
		}
	}
	return nil, executionError("unknown binary operator %q", n.Op)
}

func (e *evaluator) evalCall(n Call, env map[string]interface{}, cache fulltextCorpusCache) (interface{}, error) {
	args := make([]interface{}, len(n.Args))
	for i, a := range n.Args {
		v, err := e.evalExpr(a, env, cache)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return e.callBuiltin(n.Name, args, env)
}

func (e *evaluator) resolveCallSource(call Call) ([]interface{}, error) {
	switch normalizeFuncName(call.Name) {
	case "SAMPLE":
		if len(call.Args) != 2 {
			return nil, arityError("SAMPLE", 2, len(call.Args))
		}
		collName, err := e.evalExpr(call.Args[0], nil, nil)
		if err != nil {
			return nil, err
		}
		nVal, err := e.evalExpr(call.Args[1], nil, nil)
		if err != nil {
			return nil, err
		}
		name, _ := asString(collName)
		n, _ := asNumber(nVal)
		col, err := e.rt.Open(e.database, name)
		if err != nil {
			return nil, err
		}
		docs, err := col.Scan(int(n))
		if err != nil {
			return nil, executionError("sample %s: %v", name, err)
		}
		out := make([]interface{}, len(docs))
		for i, d := range docs {
			out[i] = docToMap(d)
		}
		return out, nil

	case "FULLTEXT":
		if len(call.Args) != 3 {
			return nil, arityError("FULLTEXT", 3, len(call.Args))
		}
		return e.fulltextSearch(call.Args)

	case "HYBRID_SEARCH":
		return e.hybridSearch(call.Args)
	}
	return nil, executionError("%q cannot be used as a FOR source", call.Name)
}

// hybridSearch implements HYBRID_SEARCH(coll, vectorIndex, queryVector,
// textField, queryText, k[, method]), fusing a vector-index search with
// a BM25 full-text search over the same collection per spec.md §4.M.
func (e *evaluator) hybridSearch(args []Expression) ([]interface{}, error) {
	if len(args) < 6 || len(args) > 7 {
		return nil, arityError("HYBRID_SEARCH", 6, len(args))
	}
	vals := make([]interface{}, len(args))
	for i, a := range args {
		v, err := e.evalExpr(a, nil, nil)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	collName, _ := asString(vals[0])
	indexName, _ := asString(vals[1])
	queryVecRaw, _ := vals[2].([]interface{})
	textField, _ := asString(vals[3])
	queryText, _ := asString(vals[4])
	kVal, _ := asNumber(vals[5])
	k := int(kVal)
	method := builtins.FusionWeightedSum
	if len(vals) == 7 {
		if m, ok := asString(vals[6]); ok && m == string(builtins.FusionRRF) {
			method = builtins.FusionRRF
		}
	}

	col, err := e.rt.Open(e.database, collName)
	if err != nil {
		return nil, err
	}
	queryVec := make([]float32, len(queryVecRaw))
	for i, v := range queryVecRaw {
		f, _ := asNumber(v)
		queryVec[i] = float32(f)
	}
	vecMatches, err := col.SearchVector(indexName, queryVec, k)
	if err != nil {
		return nil, executionError("hybrid_search vector: %v", err)
	}
	vecResults := make([]builtins.ScoredID, len(vecMatches))
	for i, m := range vecMatches {
		vecResults[i] = builtins.ScoredID{ID: m.Key, Score: -float64(m.Distance)}
	}

	docs, err := col.Scan(maxScanRows)
	if err != nil {
		return nil, executionError("hybrid_search scan: %v", err)
	}
	texts := make(map[string]string, len(docs))
	byID := make(map[string]types.Document, len(docs))
	for _, d := range docs {
		if s, ok := asString(d.Fields[textField]); ok {
			texts[d.Key] = s
			byID[d.Key] = d
		}
	}
	corpus := builtins.NewBM25Corpus(texts)
	textResults := make([]builtins.ScoredID, 0, len(texts))
	for id := range texts {
		if s := corpus.Score(id, queryText); s > 0 {
			textResults = append(textResults, builtins.ScoredID{ID: id, Score: s})
		}
	}
	sortScoredDesc(textResults)

	fused := builtins.Fuse(method, vecResults, textResults, 0.5, 0.5)
	if k > 0 && len(fused) > k {
		fused = fused[:k]
	}
	out := make([]interface{}, 0, len(fused))
	for _, f := range fused {
		d, ok := byID[f.ID]
		if !ok {
			row, err := col.Get(f.ID)
			if err != nil {
				continue
			}
			d = row
		}
		row := docToMap(d)
		row["_score"] = f.Score
		out = append(out, row)
	}
	return out, nil
}

func (e *evaluator) fulltextSearch(args []Expression) ([]interface{}, error) {
	collVal, err := e.evalExpr(args[0], nil, nil)
	if err != nil {
		return nil, err
	}
	fieldVal, err := e.evalExpr(args[1], nil, nil)
	if err != nil {
		return nil, err
	}
	queryVal, err := e.evalExpr(args[2], nil, nil)
	if err != nil {
		return nil, err
	}
	collName, _ := asString(collVal)
	field, _ := asString(fieldVal)
	query, _ := asString(queryVal)

	col, err := e.rt.Open(e.database, collName)
	if err != nil {
		return nil, err
	}
	docs, err := col.Scan(maxScanRows)
	if err != nil {
		return nil, executionError("fulltext scan %s: %v", collName, err)
	}
	texts := make(map[string]string, len(docs))
	byID := make(map[string]types.Document, len(docs))
	for _, d := range docs {
		if s, ok := asString(d.Fields[field]); ok {
			texts[d.Key] = s
			byID[d.Key] = d
		}
	}
	corpus := builtins.NewBM25Corpus(texts)
	scored := make([]builtins.ScoredID, 0, len(texts))
	for id := range texts {
		s := corpus.Score(id, query)
		if s > 0 {
			scored = append(scored, builtins.ScoredID{ID: id, Score: s})
		}
	}
	sortScoredDesc(scored)
	out := make([]interface{}, len(scored))
	for i, s := range scored {
		row := docToMap(byID[s.ID])
		row["_score"] = s.Score
		out[i] = row
	}
	return out, nil
}

func sortScoredDesc(s []builtins.ScoredID) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].ID < s[j].ID
	})
}

