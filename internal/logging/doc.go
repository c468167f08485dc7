// Package logging builds the zap loggers used across fixstore.
//
// NewLogger turns a Config into a *zap.Logger with:
//   - JSON or console encoding with ISO8601 "ts" timestamps
//   - Output to stderr (default) or stdout; the MCP server owns stdout
//   - Redaction of sensitive field names and value patterns
//   - Level-aware sampling (errors are never sampled)
//   - Constant fields such as service name
//
// Request-scoped loggers travel in a context via WithLogger and FromContext;
// ContextFields adds trace and request correlation:
//
//	ctx = logging.WithRequestID(ctx, "req_123")
//	logging.FromContext(ctx).Info("fix recorded", logging.ContextFields(ctx)...)
//
// Tests use NewTestLogger to observe and assert on log output.
package logging
