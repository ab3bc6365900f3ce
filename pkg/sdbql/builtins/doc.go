// Package builtins is the SDBQL function registry spec.md §4.M names:
// phonetic codecs, string utilities, geo distance, vector similarity,
// full-text/BM25 scoring, and the SAMPLE/DOCUMENT/MERGE/HYBRID_SEARCH
// helpers, ported from original_source/src/sdbql/executor/builtins/
// geo.rs (and its sibling vector/string/phonetic builtins referenced
// from the same module).
//
// Every function here is a pure value transform over the JSON value
// model (no collection or index access) except the handful the
// evaluator wires up separately because they need a live collection:
// SAMPLE, DOCUMENT, FULLTEXT, BM25, HYBRID_SEARCH. Those live in
// pkg/sdbql's evaluator, which calls into pkg/doc/pkg/columnar
// directly; this package only holds the scoring/fusion math they share
// (see Fuse, BM25Corpus).
//
// No example repo in the retrieval pack imports a phonetic, fuzzy-match,
// or geospatial library, so these codecs are implemented against the
// standard library rather than an ungrounded third-party dependency.
package builtins
