// Package quotes holds the per-category in-memory quote tables.
//
// Rows are created only by Seed. Apply merges a partial update into an
// existing row and marks it dirty; DrainDirty hands changed rows to the
// writer as copies.
package quotes
