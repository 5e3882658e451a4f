package allocation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
)

// Handler exposes allocation rules over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/apply", h.apply)
	r.Post("/{id}/journal", h.journal)
}

type destinationRequest struct {
	AccountID   int64               `json:"account_id" validate:"required_without=AccountCode"`
	AccountCode string              `json:"account_code" validate:"omitempty,max=32"`
	Percentage  decimal.NullDecimal `json:"percentage"`
	FixedAmount decimal.NullDecimal `json:"fixed_amount"`
	Sequence    int                 `json:"sequence" validate:"min=0"`
	Description string              `json:"description" validate:"max=500"`
	Inactive    bool                `json:"inactive"`
}

type ruleRequest struct {
	Name         string               `json:"name" validate:"required,max=200"`
	Description  string               `json:"description" validate:"max=500"`
	Method       string               `json:"method" validate:"required,oneof=PERCENTAGE FIXED"`
	Destinations []destinationRequest `json:"destinations" validate:"required,min=1,dive"`
}

type applyRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type journalRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	SourceAccountID   int64           `json:"source_account_id" validate:"required_without=SourceAccountCode"`
	SourceAccountCode string          `json:"source_account_code" validate:"omitempty,max=32"`
	EntryDate         string          `json:"entry_date" validate:"required"`
	Side              string          `json:"side" validate:"omitempty,oneof=DEBIT CREDIT"`
	Description       string          `json:"description" validate:"max=500"`
}

func (req ruleRequest) toInput(actorID int64) RuleInput {
	input := RuleInput{Name: req.Name, Description: req.Description, Method: Method(req.Method), ActorID: actorID}
	for _, d := range req.Destinations {
		input.Destinations = append(input.Destinations, DestinationInput(d))
	}
	return input
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	rules, err := h.service.List(r.Context(), p.TenantID, r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if rules == nil {
		rules = []Rule{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rules})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	rule, err := h.service.CreateRule(r.Context(), p.TenantID, req.toInput(p.ActorID))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
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
	rule, err := h.service.Get(r.Context(), p.TenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req ruleRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), p.TenantID, id, req.toInput(p.ActorID))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	rule, err := h.service.Deactivate(r.Context(), p.TenantID, id, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req applyRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	allocs, err := h.service.Apply(r.Context(), p.TenantID, id, req.Amount)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocs)
}

func (h *Handler) journal(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req journalRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	date, err := shared.ParseDate(req.EntryDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	entry, allocs, err := h.service.ApplyToJournal(r.Context(), p.TenantID, JournalInput{
		RuleID:            id,
		Amount:            req.Amount,
		SourceAccountID:   req.SourceAccountID,
		SourceAccountCode: req.SourceAccountCode,
		EntryDate:         date,
		Side:              Side(req.Side),
		Description:       req.Description,
		ActorID:           p.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry": entry, "allocations": allocs})
}
