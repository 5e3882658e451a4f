package periods

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
)

// Handler exposes period maintenance over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/fiscal-years", h.createFiscalYear)
	r.Get("/{id}", h.get)
	r.Post("/{id}/close", h.close)
	r.Post("/{id}/open", h.reopen)
}

type createRequest struct {
	FiscalYear   int    `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	PeriodNumber int    `json:"period_number" validate:"required,min=1,max=366"`
	Name         string `json:"period_name" validate:"max=100"`
	StartDate    string `json:"start_date" validate:"required"`
	EndDate      string `json:"end_date" validate:"required"`
}

type fiscalYearRequest struct {
	FiscalYear int `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	StartMonth int `json:"start_month" validate:"omitempty,min=1,max=12"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	year, _ := strconv.Atoi(r.URL.Query().Get("fiscal_year"))
	items, err := h.service.List(r.Context(), p.TenantID, year)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Period{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	start, err := shared.ParseDate(req.StartDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	end, err := shared.ParseDate(req.EndDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	period, err := h.service.Create(r.Context(), p.TenantID, CreateInput{
		FiscalYear:   req.FiscalYear,
		PeriodNumber: req.PeriodNumber,
		Name:         req.Name,
		StartDate:    start,
		EndDate:      end,
		ActorID:      p.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) createFiscalYear(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var req fiscalYearRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	month := time.January
	if req.StartMonth != 0 {
		month = time.Month(req.StartMonth)
	}
	items, err := h.service.CreateFiscalYear(r.Context(), p.TenantID, req.FiscalYear, month, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	period, err := h.service.Get(r.Context(), p.TenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Close)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reopen)
}

type transitionFunc func(ctx context.Context, tenantID, id, actorID int64) (Period, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	period, err := fn(r.Context(), p.TenantID, id, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}
