// Package fixstore provides durable storage for error fix records.
//
// A fix record associates an error message with the code that fixed it, the
// technology stack it applies to, a learned success rate and the embedding
// vector of the error message. Embeddings are produced outside this package;
// every backend only stores and returns them.
//
// # Backends
//
// Three Backend implementations are available:
//   - SQLiteBackend: embedded relational table (default, durable)
//   - ChromemBackend: embedded chromem-go vector database, in-memory or persisted
//   - QdrantBackend: external Qdrant server over gRPC
//
// Use Open to construct the backend selected by Config:
//
//	backend, err := fixstore.Open(ctx, fixstore.Config{
//	    Backend:   fixstore.BackendSQLite,
//	    Path:      "~/.config/fixstore/fixes.db",
//	    Dimension: 384,
//	}, logger)
//
// # Invariants
//
// Every backend enforces the same rules: ids are unique, success rates stay in
// [0, 1], and all embeddings share the dimension fixed at construction. The
// success rate is the only field that changes after insert, through
// UpdateSuccessRate. Records returned by a backend are always copies.
package fixstore
