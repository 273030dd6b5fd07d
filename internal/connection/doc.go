// Package connection maintains the broker WebSocket feed.
//
// The Feed:
//   - Holds one authenticated WebSocket connection
//   - Subscribes to market data for the validated symbols and to order
//     reports for the configured account
//   - Reconnects with exponential backoff and re-subscribes
//   - Forwards every data frame to the router as a RawMessage
package connection
