package sdbql

import "testing"

func TestParseReturnWithFilterSortLimit(t *testing.T) {
	q, err := Parse(`
		FOR u IN users
		FILTER u.age >= 18 && u.active == true
		SORT u.age DESC
		LIMIT 0, 10
		RETURN u.name
	`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if q.Var != "u" {
		t.Fatalf("expected loop var u, got %q", q.Var)
	}
	src, ok := q.Source.(CollectionSource)
	if !ok || src.Name != "users" {
		t.Fatalf("expected CollectionSource(users), got %#v", q.Source)
	}
	if len(q.Filters) != 1 {
		t.Fatalf("expected 1 filter, got %d", len(q.Filters))
	}
	if len(q.SortKeys) != 1 || !q.SortKeys[0].Descending {
		t.Fatalf("expected 1 descending sort key, got %#v", q.SortKeys)
	}
	if q.OffsetExpr == nil || q.LimitExpr == nil {
		t.Fatalf("expected both offset and limit to be set")
	}
	if _, ok := q.Action.(ReturnAction); !ok {
		t.Fatalf("expected ReturnAction, got %#v", q.Action)
	}
}

func TestParseRangeSource(t *testing.T) {
	q, err := Parse(`FOR i IN 1..5000 INSERT {n: i} INTO items`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	rng, ok := q.Source.(RangeSource)
	if !ok {
		t.Fatalf("expected RangeSource, got %#v", q.Source)
	}
	if _, ok := rng.Start.(NumberLit); !ok {
		t.Fatalf("expected numeric range start")
	}
	ins, ok := q.Action.(InsertAction)
	if !ok || ins.Collection != "items" {
		t.Fatalf("expected InsertAction into items, got %#v", q.Action)
	}
}

func TestParseCollectAggregate(t *testing.T) {
	q, err := Parse(`
		FOR x IN metrics
		COLLECT host = x.host
		AGGREGATE total = SUM(x.value)
		RETURN {host: host, total: total}
	`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(q.GroupBy) != 1 || q.GroupBy[0].Var != "host" {
		t.Fatalf("expected one group key 'host', got %#v", q.GroupBy)
	}
	if len(q.Aggregate) != 1 || q.Aggregate[0].Func != "SUM" {
		t.Fatalf("expected one SUM aggregate, got %#v", q.Aggregate)
	}
}

func TestParseUpsert(t *testing.T) {
	q, err := Parse(`
		FOR i IN 0..0
		UPSERT {_key: "k1"}
		INSERT {name: "a"}
		UPDATE {name: "b"}
		IN items
	`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, ok := q.Action.(UpsertAction); !ok {
		t.Fatalf("expected UpsertAction, got %#v", q.Action)
	}
}

func TestParseUnknownTokenErrors(t *testing.T) {
	if _, err := Parse(`FOR i IN items RETURN i.name ~`); err == nil {
		t.Fatal("expected a parse error for a stray '~'")
	}
}

func TestParseExpectsFor(t *testing.T) {
	if _, err := Parse(`RETURN 1`); err == nil {
		t.Fatal("expected a parse error when the query doesn't start with FOR")
	}
}
