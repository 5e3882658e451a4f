package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/odyssey-gl/internal/observability"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Principal headers recognised by PrincipalMiddleware.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Odyssey middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	limit := 60
	if cfg.Config != nil && cfg.Config.AppRateLimit > 0 {
		limit = cfg.Config.AppRateLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		PrincipalMiddleware,
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// PrincipalMiddleware reads the tenant and actor headers into the request
// context. Requests without a tenant pass through unauthenticated.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawTenant := r.Header.Get(HeaderTenantID)
		if rawTenant == "" {
			next.ServeHTTP(w, r)
			return
		}
		tenantID, err := strconv.ParseInt(rawTenant, 10, 64)
		if err != nil || tenantID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "invalid "+HeaderTenantID)
			return
		}
		var actorID int64
		if rawActor := r.Header.Get(HeaderActorID); rawActor != "" {
			actorID, err = strconv.ParseInt(rawActor, 10, 64)
			if err != nil || actorID < 0 {
				httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "invalid "+HeaderActorID)
				return
			}
		}
		ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{TenantID: tenantID, ActorID: actorID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
