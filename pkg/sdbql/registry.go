package sdbql

import (
	"github.com/solidb/solidb/pkg/sdbql/builtins"
)

// callBuiltin dispatches a Call AST node's already-evaluated arguments to
// a concrete SDBQL builtin function. Functions needing collection access
// (DOCUMENT, BM25, VECTOR_INDEX_STATS) go through e.rt; everything else is
// a pure function from pkg/sdbql/builtins.
func (e *evaluator) callBuiltin(name string, args []interface{}, env map[string]interface{}) (interface{}, error) {
	switch normalizeFuncName(name) {

	// Phonetic codecs.
	case "SOUNDEX":
		s, err := str1(name, args)
		if err != nil {
			return nil, err
		}
		return builtins.Soundex(s), nil
	case "METAPHONE":
		s, err := str1(name, args)
		if err != nil {
			return nil, err
		}
		return builtins.Metaphone(s), nil
	case "DOUBLE_METAPHONE":
		s, err := str1(name, args)
		if err != nil {
			return nil, err
		}
		codes := builtins.DoubleMetaphone(s)
		return []interface{}{codes[0], codes[1]}, nil
	case "COLOGNE":
		s, err := str1(name, args)
		if err != nil {
			return nil, err
		}
		return builtins.Cologne(s), nil
	case "CAVERPHONE":
		s, err := str1(name, args)
		if err != nil {
			return nil, err
		}
		return builtins.Caverphone(s), nil
	case "NYSIIS":
		s, err := str1(name, args)
		if err != nil {
			return nil, err
		}
		return builtins.NYSIIS(s), nil

	// String utilities.
	case "LENGTH":
		if len(args) != 1 {
			return nil, arityError(name, 1, len(args))
		}
		switch v := args[0].(type) {
		case string:
			return float64(len([]rune(v))), nil
		case []interface{}:
			return float64(len(v)), nil
		case map[string]interface{}:
			return float64(len(v)), nil
		case nil:
			return float64(0), nil
		}
		return nil, typeError("LENGTH requires a string, array, or object")
	case "LEVENSHTEIN":
		a, b, err := str2(name, args)
		if err != nil {
			return nil, err
		}
		return float64(builtins.Levenshtein(a, b)), nil
	case "SIMILARITY":
		a, b, err := str2(name, args)
		if err != nil {
			return nil, err
		}
		return builtins.Similarity(a, b), nil
	case "FUZZY_MATCH":
		if len(args) != 3 {
			return nil, arityError(name, 3, len(args))
		}
		a, ok1 := asString(args[0])
		b, ok2 := asString(args[1])
		d, ok3 := asNumber(args[2])
		if !ok1 || !ok2 || !ok3 {
			return nil, typeError("FUZZY_MATCH(string, string, number)")
		}
		return builtins.FuzzyMatch(a, b, int(d)), nil

	// Geo.
	case "DISTANCE", "GEO_DISTANCE":
		if len(args) != 4 {
			return nil, arityError(name, 4, len(args))
		}
		coords := make([]float64, 4)
		for i, a := range args {
			f, ok := asNumber(a)
			if !ok {
				return nil, typeError("%s requires four numbers (lat1, lon1, lat2, lon2)", name)
			}
			coords[i] = f
		}
		return builtins.Distance(coords[0], coords[1], coords[2], coords[3]), nil

	// Vector.
	case "VECTOR_SIMILARITY":
		a, b, err := vec2(name, args)
		if err != nil {
			return nil, err
		}
		return builtins.VectorSimilarity(a, b), nil
	case "VECTOR_NORMALIZE":
		if len(args) != 1 {
			return nil, arityError(name, 1, len(args))
		}
		v, err := toFloatSlice(args[0])
		if err != nil {
			return nil, err
		}
		out := builtins.VectorNormalize(v)
		return float64SliceToValue(out), nil
	case "VECTOR_DISTANCE":
		if len(args) != 2 && len(args) != 3 {
			return nil, arityError(name, 2, len(args))
		}
		a, err := toFloatSlice(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloatSlice(args[1])
		if err != nil {
			return nil, err
		}
		metric := builtins.MetricEuclidean
		if len(args) == 3 {
			m, ok := asString(args[2])
			if !ok {
				return nil, typeError("VECTOR_DISTANCE metric must be a string")
			}
			metric = builtins.VectorMetric(m)
		}
		return builtins.VectorDistance(a, b, metric), nil
	case "VECTOR_INDEX_STATS":
		return e.vectorIndexStats(name, args)

	// Collection helpers.
	case "DOCUMENT":
		return e.documentLookup(name, args)
	case "MERGE":
		return mergeObjects(name, args)
	case "BM25":
		return e.bm25Score(name, args, env)
	}
	return nil, unknownFunction(name)
}

func str1(name string, args []interface{}) (string, error) {
	if len(args) != 1 {
		return "", arityError(name, 1, len(args))
	}
	s, ok := asString(args[0])
	if !ok {
		return "", typeError("%s requires a string argument", name)
	}
	return s, nil
}

func str2(name string, args []interface{}) (string, string, error) {
	if len(args) != 2 {
		return "", "", arityError(name, 2, len(args))
	}
	a, ok1 := asString(args[0])
	b, ok2 := asString(args[1])
	if !ok1 || !ok2 {
		return "", "", typeError("%s requires two string arguments", name)
	}
	return a, b, nil
}

func toFloatSlice(v interface{}) ([]float64, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, typeError("expected a numeric array")
	}
	out := make([]float64, len(arr))
	for i, e := range arr {
		f, ok := asNumber(e)
		if !ok {
			return nil, typeError("expected a numeric array")
		}
		out[i] = f
	}
	return out, nil
}

func float64SliceToValue(v []float64) []interface{} {
	out := make([]interface{}, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}

func vec2(name string, args []interface{}) ([]float64, []float64, error) {
	if len(args) != 2 {
		return nil, nil, arityError(name, 2, len(args))
	}
	a, err := toFloatSlice(args[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := toFloatSlice(args[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func mergeObjects(name string, args []interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, arityError(name, 2, len(args))
	}
	out := make(map[string]interface{})
	for _, a := range args {
		m, ok := a.(map[string]interface{})
		if !ok {
			return nil, typeError("MERGE requires object arguments")
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

// documentLookup implements DOCUMENT(collection, key), fetching a single
// document by its primary key.
func (e *evaluator) documentLookup(name string, args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, arityError(name, 2, len(args))
	}
	collName, ok1 := asString(args[0])
	key, ok2 := asString(args[1])
	if !ok1 || !ok2 {
		return nil, typeError("DOCUMENT(collection, key) requires two strings")
	}
	col, err := e.rt.Open(e.database, collName)
	if err != nil {
		return nil, collectionNotFound(collName)
	}
	d, err := col.Get(key)
	if err != nil {
		return nil, nil
	}
	return docToMap(d), nil
}

// vectorIndexStats implements VECTOR_INDEX_STATS(collection, index).
func (e *evaluator) vectorIndexStats(name string, args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, arityError(name, 2, len(args))
	}
	collName, ok1 := asString(args[0])
	indexName, ok2 := asString(args[1])
	if !ok1 || !ok2 {
		return nil, typeError("VECTOR_INDEX_STATS(collection, index) requires two strings")
	}
	col, err := e.rt.Open(e.database, collName)
	if err != nil {
		return nil, collectionNotFound(collName)
	}
	meta := col.Meta()
	for _, idx := range meta.Indexes {
		if idx.Name == indexName {
			return builtins.VectorIndexStats{
				Dimensions:     idx.VectorDim,
				M:              idx.VectorM,
				EfConstruction: idx.VectorEfCons,
				Count:          int(col.Count()),
			}, nil
		}
	}
	return nil, executionError("vector index %q not found on %q", indexName, collName)
}

// bm25Score implements BM25(field, query), scoring the document
// currently bound to the enclosing FOR loop's variable against a
// corpus built (and cached) lazily over the loop's source collection.
func (e *evaluator) bm25Score(name string, args []interface{}, env map[string]interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, arityError(name, 2, len(args))
	}
	field, ok1 := asString(args[0])
	query, ok2 := asString(args[1])
	if !ok1 || !ok2 {
		return nil, typeError("BM25(field, query) requires two strings")
	}
	if e.currentCollection == "" {
		return nil, executionError("BM25 requires a FOR loop over a collection")
	}
	row, _ := env[e.loopVar].(map[string]interface{})
	key, _ := asString(row["_key"])
	if key == "" {
		return float64(0), nil
	}
	cacheKey := e.currentCollection + "|" + field
	corpus, ok := e.bm25Cache[cacheKey]
	if !ok {
		col, err := e.rt.Open(e.database, e.currentCollection)
		if err != nil {
			return nil, err
		}
		docs, err := col.Scan(maxScanRows)
		if err != nil {
			return nil, executionError("bm25 scan %s: %v", e.currentCollection, err)
		}
		texts := make(map[string]string, len(docs))
		for _, d := range docs {
			if s, ok := asString(d.Fields[field]); ok {
				texts[d.Key] = s
			}
		}
		corpus = builtins.NewBM25Corpus(texts)
		e.bm25Cache[cacheKey] = corpus
	}
	return corpus.Score(key, query), nil
}
