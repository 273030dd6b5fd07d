// Package metrics collects counters from the gatherer's components, logs
// them periodically and serves them as JSON on /stats.
package metrics
