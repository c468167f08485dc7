// Package ranking orders candidate fix records for a query embedding.
//
// Candidates are scored by cosine similarity against the query, optionally
// filtered by a minimum similarity, then ordered by success rate descending.
// Similarity breaks ties in success rate, and the record id breaks ties in
// both, so the order is total and repeated calls return identical output.
package ranking
