// Package api defines the provider-neutral types shared by every layer of
// unigen: catalog records, generation requests and results, stream events,
// and the error taxonomy.
//
// The package performs no I/O and depends only on the standard library.
//
// Core types:
//   - [ModelData], [VoiceData], [UploadedFile]: normalized catalog records
//   - [Page]: one page of a catalog listing with the effective page size
//   - [GenerateRequest], [GenerateResult]: generation task and result
//   - [StreamEvent]: tagged union of incremental stream events
//   - [APIError]: structured error carrying operation, provider and status
package api
