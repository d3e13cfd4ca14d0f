package middleware

import (
	"log/slog"
	"net/http"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/golang-jwt/jwt/v5"
)

type PermissionCompiler func(names []string) (state.Permission, error)

// AppClaims defines our custom JWT claims structure.
type AppClaims struct {
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware requires a signed session cookie on the upgrade request.
// It returns nil when auth is disabled; Chain skips nil middlewares.
func NewAuthMiddleware(logger *slog.Logger, cfg config.AuthConfig, pCompiler PermissionCompiler) Middleware {
	if !cfg.Enabled {
		return nil
	}
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			cookie, err := r.Cookie(cfg.Cookie)
			if err != nil || cookie.Value == "" {
				logger.Warn("No session cookie attached to request", slog.String("ip", reqMeta.IP))
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}

			token, err := jwt.ParseWithClaims(cookie.Value, &AppClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				logger.Warn("Invalid JWT token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*AppClaims)
			if !ok {
				logger.Error("Failed to parse custom JWT claims", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				logger.Warn("Valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			perms, err := pCompiler(claims.Permissions)
			if err != nil {
				logger.Error("Token contains unregistered permissions", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			reqMeta.UserID = claims.Subject
			reqMeta.GlobalPermissions = perms
			next.ServeHTTP(w, r)
		})
	}
}
