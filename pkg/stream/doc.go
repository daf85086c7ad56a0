// Package stream delivers streamed generation events to listeners.
//
// A Dispatcher fans each api.StreamEvent out to the listeners subscribed
// to its kind, synchronously and in registration order. A listener that
// returns an error or panics is logged and counted; the remaining
// listeners still receive the event and the stream keeps flowing.
//
// Run drains a provider event channel through the dispatcher until the
// stream ends or the context is cancelled. On cancellation the transport
// request is abandoned through the supplied cancel function and nothing
// further is delivered. Content delivered before that point stays with
// the listeners that received it.
package stream
