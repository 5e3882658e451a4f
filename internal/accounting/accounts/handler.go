package accounts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Handler exposes the account registry over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/tree", h.tree)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Get("/{id}/balance", h.balance)
}

type createRequest struct {
	Code       string `json:"code" validate:"required,max=32"`
	Name       string `json:"name" validate:"required,max=200"`
	Type       string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE COGS"`
	ParentCode string `json:"parent_code" validate:"omitempty,max=32"`
}

type updateRequest struct {
	Code       *string `json:"code" validate:"omitempty,max=32"`
	Name       *string `json:"name" validate:"omitempty,max=200"`
	ParentCode *string `json:"parent_code" validate:"omitempty,max=32"`
}

type listResponse struct {
	Data       []Account                 `json:"data"`
	Pagination internalShared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filter := ListFilter{
		IncludeInactive: q.Get("include_inactive") == "true",
		Type:            AccountType(q.Get("type")),
		Page:            page,
		PerPage:         perPage,
	}
	items, pagination, err := h.service.List(r.Context(), p.TenantID, filter)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Account{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Pagination: pagination})
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	nodes, err := h.service.Tree(r.Context(), p.TenantID, r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nodes})
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
	account, err := h.service.Create(r.Context(), p.TenantID, CreateInput{
		Code:       req.Code,
		Name:       req.Name,
		Type:       AccountType(req.Type),
		ParentCode: req.ParentCode,
		ActorID:    p.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
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
	account, err := h.service.Get(r.Context(), p.TenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
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
	var req updateRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	account, err := h.service.Update(r.Context(), p.TenantID, id, UpdateInput{
		Code:       req.Code,
		Name:       req.Name,
		ParentCode: req.ParentCode,
		ActorID:    p.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
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
	account, err := h.service.Deactivate(r.Context(), p.TenantID, id, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), p.TenantID, id, p.ActorID); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	asOf, err := shared.QueryDate(r, "as_of_date")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	summary, err := h.service.Balance(r.Context(), p.TenantID, id, asOf)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
