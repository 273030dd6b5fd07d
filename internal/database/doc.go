// Package database manages the PostgreSQL pool and schema shared by the
// ledger sink and the quote writer.
package database
