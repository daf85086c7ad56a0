// Package mcp connects the tool loop to Model Context Protocol servers.
//
// Each configured server gets a ServerClient built on the official SDK
// (github.com/modelcontextprotocol/go-sdk). The Executor discovers the
// tools of all servers on first use, routes calls by tool name and
// reports the owning server so approval requests can name it.
package mcp
