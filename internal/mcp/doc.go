// Package mcp exposes the retrieval engine as MCP tools.
//
// Three tools are registered on a github.com/modelcontextprotocol/go-sdk
// server: search_note, add_note and delete_note. Engine errors are returned
// as tool errors so the client sees IsError with the failing stage in the
// message. The same server can be served over stdio, SSE and streamable
// HTTP.
package mcp
