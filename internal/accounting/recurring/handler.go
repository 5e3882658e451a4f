package recurring

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
)

// Handler exposes recurring schedules over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers recurring routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/process", h.process)
	r.Get("/{id}", h.get)
	r.Post("/{id}/pause", h.pause)
	r.Post("/{id}/resume", h.resume)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/reschedule", h.reschedule)
}

type templateLineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required_without=AccountCode"`
	AccountCode string          `json:"account_code" validate:"omitempty,max=32"`
	Description string          `json:"description" validate:"max=500"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
}

type createRequest struct {
	Name                string `json:"name" validate:"required,max=200"`
	Frequency           string `json:"frequency" validate:"required"`
	Interval            int    `json:"interval" validate:"omitempty,min=1"`
	StartDate           string `json:"start_date" validate:"required"`
	EndType             string `json:"end_type" validate:"omitempty,oneof=NEVER AFTER_OCCURRENCES ON_DATE"`
	EndAfterOccurrences *int   `json:"end_after_occurrences" validate:"omitempty,min=1"`
	EndDate             string `json:"end_date"`
	NextRunDate         string `json:"next_run_date"`
	Template            struct {
		Description string                `json:"description" validate:"max=500"`
		Reference   string                `json:"reference" validate:"max=100"`
		Lines       []templateLineRequest `json:"lines" validate:"required,min=2,dive"`
	} `json:"template"`
}

type rescheduleRequest struct {
	NextRunDate string `json:"next_run_date" validate:"required"`
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := shared.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), p.TenantID, Status(r.URL.Query().Get("status")))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Schedule{}
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
	endDate, err := optionalDate(req.EndDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	nextRun, err := optionalDate(req.NextRunDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	template := Template{Description: req.Template.Description, Reference: req.Template.Reference}
	for _, l := range req.Template.Lines {
		template.Lines = append(template.Lines, TemplateLine(l))
	}
	sched, err := h.service.Create(r.Context(), p.TenantID, CreateInput{
		Name:                req.Name,
		Frequency:           Frequency(req.Frequency),
		Interval:            req.Interval,
		StartDate:           start,
		EndType:             EndType(req.EndType),
		EndAfterOccurrences: req.EndAfterOccurrences,
		EndDate:             endDate,
		NextRunDate:         nextRun,
		Template:            template,
		ActorID:             p.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sched)
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
	sched, err := h.service.Get(r.Context(), p.TenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sched)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Pause)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Resume)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tenantID, id, actorID int64) (Schedule, error)) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	sched, err := fn(r.Context(), p.TenantID, id, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sched)
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req rescheduleRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	next, err := shared.ParseDate(req.NextRunDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	sched, err := h.service.Reschedule(r.Context(), p.TenantID, id, next, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sched)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	asOf, err := shared.QueryDate(r, "as_of_date")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	now := time.Now()
	if asOf != nil {
		now = *asOf
	}
	result, err := h.service.ProcessDue(r.Context(), p.TenantID, now)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("recurring processed", slog.Int64("tenant_id", p.TenantID), slog.Int("success", result.SuccessCount), slog.Int("errors", result.ErrorCount))
	httpx.JSON(w, http.StatusOK, result)
}
