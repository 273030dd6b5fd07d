// Package poller runs the execution sync cycle: it drains executions pushed
// over the stream, fetches filled orders over REST and reconciles both into
// the ledger on a fixed interval.
package poller
