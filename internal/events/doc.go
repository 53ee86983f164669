// Package events delivers account events to the handlers subscribed at build
// time.
//
// # Components
//
//   - [Event] is the structured record of one account occurrence.
//   - [Handler] is a subscriber callback.
//   - [Bus] routes an event to the handlers of its kind, either inline on the
//     caller's goroutine or through a buffered dispatcher goroutine with
//     drop-if-full / block-if-full semantics.
//
// # Architecture boundaries
//
// This package owns fan-out and buffering. It does NOT decide which events to
// emit; the Engine does.
//
// # What this package must NOT do
//
//   - Keep a process-wide subscriber registry.
//   - Allow subscriptions after the Bus is constructed.
//   - Import goAccounts or any sibling internal package.
package events
