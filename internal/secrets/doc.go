// Package secrets redacts credentials from text before it is persisted.
//
// Error messages and fix snippets often carry connection strings, tokens or
// keys copied from a developer's terminal. The Scrubber replaces matches of
// known credential formats with a fixed marker.
package secrets
