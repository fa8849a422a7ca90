// Package middleware provides HTTP middleware for the Qola API.
//
// # Available Middleware
//
//   - RequestID: assigns or propagates X-Request-ID
//   - ResolveClientAddress: normalizes the caller's address into the context
//   - Logger: structured access log via slog
//   - Recovery: converts panics into a 500 Problem Details response
//   - CORS: origin allow-list and preflight handling
//   - Compress: gzip when the client accepts it
//   - RateLimit: token bucket per client address
//   - Idempotency: replays the response to a retried POST with the same
//     Idempotency-Key and body
//
// # Client Address
//
// The first X-Forwarded-For entry is used when forwarding is trusted, else
// the socket address. IPv4-mapped IPv6 addresses collapse to IPv4. An
// address that cannot be parsed is stored as "":
//
//	addr := middleware.GetClientAddress(r.Context())
//
// # Context Values
//
//   - GetRequestID(ctx): request correlation ID
//   - GetClientAddress(ctx): normalized client address or ""
package middleware
