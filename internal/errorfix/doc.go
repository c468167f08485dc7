// Package errorfix is the entry point to the error fix knowledge store.
//
// A Service records error/fix pairs, searches them for a new error by tech
// stack and embedding similarity, and learns each fix's success rate from
// outcome feedback:
//
//	backend, _ := fixstore.Open(ctx, fixstore.Config{Dimension: 384}, logger)
//	svc, _ := errorfix.NewService(nil, backend, logger, prometheus.DefaultRegisterer)
//	defer svc.Close()
//
//	_ = svc.Insert(ctx, &fixstore.FixRecord{...})
//	results, _ := svc.Search(ctx, &errorfix.SearchRequest{
//	    Embedding: vec,
//	    TechStack: "react@18+ts",
//	    Limit:     5,
//	})
//	_, _ = svc.UpdateSuccessRate(ctx, results[0].Record.ID, true)
//
// The Service owns the backend passed to NewService and closes it on Close.
// Writes are serialized; reads run concurrently with each other.
package errorfix
