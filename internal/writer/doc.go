// Package writer persists gatherer state.
//
// Writers:
//   - QuoteWriter: upserts changed quote rows into the quotes table
//   - PostgresSink: ledger table in the executions table
//   - FileSink: ledger table as a JSON file
//
// Both sinks replace the whole ledger table atomically on each write.
package writer
