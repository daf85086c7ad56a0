// Package httpclient holds the HTTP plumbing shared by provider adapters:
// JSON request/response handling with upstream error mapping, server-sent
// event and NDJSON readers, and the stream pump that turns a response
// body into an ordered channel of stream events.
package httpclient
