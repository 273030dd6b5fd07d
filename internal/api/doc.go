// Package api provides the broker REST client.
//
// Endpoints used:
//   - POST /auth/getToken                 session token (see package auth)
//   - GET  /rest/instruments/details      instrument universe with CFI codes
//   - GET  /rest/order/filleds?accountId= filled and partially filled orders
//
// Responses wrap their payload in {"status": "OK" | "ERROR", ...}. An ERROR
// status is reported as *APIError even when the HTTP status is 200.
package api
