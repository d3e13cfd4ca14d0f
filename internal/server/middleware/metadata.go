package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

type contextKey string

const reqMetaKey = contextKey("r-metadata")

// RequestMetadata is filled in along the chain: the IP and request ID here,
// the user and permissions by the auth middleware.
type RequestMetadata struct {
	RequestID         string
	IP                string
	UserID            string
	GlobalPermissions state.Permission
}

func ReqMetadataFrom(ctx context.Context) (*RequestMetadata, bool) {
	reqMeta, ok := ctx.Value(reqMetaKey).(*RequestMetadata)
	return reqMeta, ok
}

// RequestMetadataMiddleware must be the first middleware in the chain.
// With trustProxy set, the client IP is taken from X-Forwarded-For or
// X-Real-IP before falling back to the socket address.
func RequestMetadataMiddleware(trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta := &RequestMetadata{
				RequestID: uuid.NewString(),
				IP:        clientIP(r, trustProxy),
			}
			ctx := context.WithValue(r.Context(), reqMetaKey, reqMeta)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
