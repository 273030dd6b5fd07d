// Package ledger reconciles batches of executions into a persisted table.
//
// Each Reconcile reads the whole table from a Sink, merges the batch into it
// keyed by (execution id, order id, account) with an audit trail, and writes
// the result back in one bulk replace. Re-applying a batch is idempotent.
package ledger
