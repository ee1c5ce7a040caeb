package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// Identity headers set by the API gateway after it resolves the session. The
// core trusts them; authentication itself happens upstream.
const (
	HeaderUserID       = "X-User-Id"
	HeaderOrganization = "X-Organization-Id"
	HeaderRole         = "X-Role"
)

// identityMiddleware resolves the org-scoped caller identity from gateway
// headers and stores it in the request context. Requests without a complete
// identity are rejected before reaching any handler.
func identityMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
			if err != nil || userID <= 0 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid user identity")
				return
			}
			orgID, err := strconv.ParseInt(r.Header.Get(HeaderOrganization), 10, 64)
			if err != nil || orgID <= 0 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid organization scope")
				return
			}
			role := shared.Role(r.Header.Get(HeaderRole))
			if !role.IsValid() {
				logger.Warn("unknown role header", slog.String("role", string(role)), slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "unknown role")
				return
			}

			identity := shared.Identity{UserID: userID, OrganizationID: orgID, Role: role}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// MiddlewareStack installs the FarmTally middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		identityMiddleware(cfg.Logger),
	}
}
