// Package mcp exposes the error fix store as MCP tools.
//
// The server registers four tools on a go-sdk MCP server and runs on the
// stdio transport:
//
//   - fix_record: store a fix for an error in a tech stack
//   - fix_search: rank stored fixes for an error embedding
//   - fix_feedback: fold a success or failure into a fix's success rate
//   - fix_get: fetch one fix by id
//
// Tool failures are returned as tool results with IsError set, so the
// calling agent sees the reason.
package mcp
