// Package provider defines the uniform surface over third-party AI
// services. A [Provider] declares its [Capabilities] and implements the
// single-operation interfaces it supports ([ModelLister], [VoiceDeleter],
// [Streamer], ...). [Supports] combines both so callers can reject an
// unsupported operation before any network call.
//
// Adapters live in subpackages and share HTTP plumbing from
// provider/httpclient. The [Registry] maps provider identifiers to
// adapters for dispatch.
package provider
