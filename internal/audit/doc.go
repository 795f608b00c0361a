// Package audit implements async event dispatching for security-relevant
// authentication outcomes.
//
// # Components
//
//   - [Sink]: consumer interface; channel, JSON writer, zerolog and no-op sinks ship here.
//   - [Dispatcher]: buffered async relay that either drops or blocks when full.
//   - [Event]: the structured record handed to sinks.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide
// which events to emit; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Carry raw tokens or passwords in any field.
package audit
