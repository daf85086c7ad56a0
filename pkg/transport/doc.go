// Package transport defines the contracts between the HTTP gateway and
// the orchestration engine.
//
// Generator is the core contract: it receives a generation call and
// writes either one GenerateResult or a sequence of stream events to a
// ResponseWriter. Catalog, Approvals and Tasks cover the read, delete and
// control endpoints. The engine satisfies Catalog and Tasks directly and
// is adapted to Generator by NewEngineGenerator.
//
// Middleware wraps a Generator with cross-cutting behavior. Recovery,
// RequestID and Logging are provided. HTTP-level concerns such as
// authentication and metrics live in the http subpackage and in
// pkg/auth and pkg/observability.
package transport
