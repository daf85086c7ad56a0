// Package tools defines how model-initiated tool calls are executed.
//
// An Executor runs the calls it recognizes by name. Implementations exist
// for in-process functions (package registry) and MCP servers (package
// mcp). GatedExecutor puts an approval gate in front of any executor so a
// tool only runs once a human, or the configured default, allows it.
//
// Calls that no executor recognizes are returned to the caller unexecuted.
package tools
