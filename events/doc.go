// Package events classifies, persists and fans out security events.
//
// # Architecture boundaries
//
// [Pipeline.Record] is the single entry point. It stamps the event, resolves
// its severity from a fixed table, and hands it to an asynchronous
// [Dispatcher]. The dispatcher's worker persists the event through [Store] and
// publishes it on the [Bus] under three topics:
//
//	security_event          every event
//	security_event:<TYPE>   events of one type
//	security_alert          high and critical events (escalation)
//
// # What this package must NOT do
//
//   - Block or fail the business operation that produced an event.
//   - Know what subscribers do with what they receive.
package events
