package reports

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

const (
	rateLimit  = 30
	rateWindow = time.Minute
)

// Handler serves financial statements as JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	group     singleflight.Group
	rateLimit func(http.Handler) http.Handler
	now       func() time.Time
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "report rate limit exceeded")
		}),
	)
	return &Handler{logger: logger, service: service, rateLimit: limiter, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/financial-position", h.balanceSheet)
		r.Get("/income-statement", h.incomeStatement)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := internalShared.PrincipalFromContext(r.Context()); ok {
		return "tenant:" + strconv.FormatInt(p.TenantID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// build collapses concurrent identical report requests into one computation.
func (h *Handler) build(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := h.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (h *Handler) dateOrToday(r *http.Request, name string) (time.Time, error) {
	d, err := shared.QueryDate(r, name)
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return shared.DateOnly(h.now()), nil
	}
	return *d, nil
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	asOf, err := h.dateOrToday(r, "as_of_date")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	key := fmt.Sprintf("tb:%d:%s", p.TenantID, asOf.Format(time.DateOnly))
	res, err := h.build(r.Context(), key, func(ctx context.Context) (any, error) {
		return h.service.TrialBalance(ctx, p.TenantID, asOf)
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	asOf, err := h.dateOrToday(r, "as_of_date")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	key := fmt.Sprintf("bs:%d:%s", p.TenantID, asOf.Format(time.DateOnly))
	res, err := h.build(r.Context(), key, func(ctx context.Context) (any, error) {
		return h.service.BalanceSheet(ctx, p.TenantID, asOf)
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	from, err := shared.QueryDate(r, "start_date")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	to, err := h.dateOrToday(r, "end_date")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	start := time.Date(to.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	if from != nil {
		start = *from
	}
	key := fmt.Sprintf("pl:%d:%s:%s", p.TenantID, start.Format(time.DateOnly), to.Format(time.DateOnly))
	res, err := h.build(r.Context(), key, func(ctx context.Context) (any, error) {
		return h.service.IncomeStatement(ctx, p.TenantID, start, to)
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
