package middleware

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

const ClientAddressKey contextKey = "clientAddress"

// NormalizeAddress parses an IP address, with or without a port, and returns
// its canonical text form. IPv4-mapped IPv6 addresses collapse to IPv4 and
// zones are dropped.
func NormalizeAddress(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap().WithZone("").String(), true
	}

	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}

// ClientAddress resolves the source address of r. When trustForwarded is set
// the first X-Forwarded-For entry is used if it parses; otherwise the
// connection's remote address. Returns "" when neither yields an address.
func ClientAddress(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, ok := NormalizeAddress(first); ok {
				return addr
			}
		}
	}
	addr, _ := NormalizeAddress(r.RemoteAddr)
	return addr
}

// ResolveClientAddress stores the normalized client address in the request
// context for the rate limiter, idempotency keys and registration quota.
func ResolveClientAddress(trustForwarded bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ClientAddressKey, ClientAddress(r, trustForwarded))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientAddress extracts the resolved client address from context
func GetClientAddress(ctx context.Context) string {
	if addr, ok := ctx.Value(ClientAddressKey).(string); ok {
		return addr
	}
	return ""
}
