// Package router turns raw feed frames into state changes.
//
// Each frame is decoded once into a QuoteEvent, ExecutionEvent or
// ControlEvent. Quotes are classified (options, repos, securities) and
// merged into the matching quote table; executions are queued for the
// ledger scheduler. Route never panics and reports an Outcome per frame.
package router
