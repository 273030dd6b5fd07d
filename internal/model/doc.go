// Package model defines shared data types used across the rofex-data gatherer.
//
// Conventions:
//   - Quote prices and sizes: float64, zero when the feed omits or garbles a value
//   - Execution quantities and prices: decimal.Decimal (exact comparison of fills)
//   - Timestamps: time.Time in UTC
//   - Execution identity: (ExecutionID, OrderID, Account)
package model
