package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Handler exposes the journal engine over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), now: time.Now}
}

// WithNow overrides the clock used for response timestamps.
func (h *Handler) WithNow(now func() time.Time) *Handler {
	if now != nil {
		h.now = now
	}
	return h
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/integrity", h.integrity)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/void", h.void)
	r.Post("/{id}/reverse", h.reverse)
}

type lineRequest struct {
	AccountID           int64               `json:"account_id" validate:"required_without=AccountCode"`
	AccountCode         string              `json:"account_code" validate:"omitempty,max=32"`
	Description         string              `json:"description" validate:"max=500"`
	Debit               decimal.Decimal     `json:"debit_amount"`
	Credit              decimal.Decimal     `json:"credit_amount"`
	ForeignCurrencyCode string              `json:"foreign_currency_code" validate:"omitempty,len=3,uppercase"`
	ForeignAmount       decimal.NullDecimal `json:"foreign_amount"`
	ExchangeRate        decimal.NullDecimal `json:"exchange_rate"`
}

type createRequest struct {
	EntryDate    string        `json:"entry_date" validate:"required"`
	Description  string        `json:"description" validate:"max=500"`
	Reference    string        `json:"reference" validate:"max=100"`
	SourceModule string        `json:"source_module" validate:"max=50"`
	SourceID     string        `json:"source_id" validate:"max=100"`
	Lines        []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type updateRequest struct {
	EntryDate   *string       `json:"entry_date"`
	Description *string       `json:"description" validate:"omitempty,max=500"`
	Reference   *string       `json:"reference" validate:"omitempty,max=100"`
	Lines       []lineRequest `json:"lines" validate:"omitempty,min=2,dive"`
}

type voidRequest struct {
	Reason       string `json:"reason" validate:"max=500"`
	ReversalDate string `json:"reversal_date"`
}

type reverseRequest struct {
	EntryDate string `json:"entry_date" validate:"required"`
}

func toLineInputs(reqs []lineRequest) []LineInput {
	if reqs == nil {
		return nil
	}
	lines := make([]LineInput, len(reqs))
	for i, l := range reqs {
		lines[i] = LineInput{
			AccountID:           l.AccountID,
			AccountCode:         l.AccountCode,
			Description:         l.Description,
			Debit:               l.Debit,
			Credit:              l.Credit,
			ForeignCurrencyCode: l.ForeignCurrencyCode,
			ForeignAmount:       l.ForeignAmount,
			ExchangeRate:        l.ExchangeRate,
		}
	}
	return lines
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := shared.QueryDate(r, "from")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	to, err := shared.QueryDate(r, "to")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	items, pagination, err := h.service.List(r.Context(), p.TenantID, ListFilter{
		Status:       Status(q.Get("status")),
		From:         from,
		To:           to,
		SourceModule: q.Get("source_module"),
		SourceID:     q.Get("source_id"),
		Page:         page,
		PerPage:      perPage,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, struct {
		Data       []Entry                   `json:"data"`
		Pagination internalShared.Pagination `json:"pagination"`
	}{items, pagination})
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
	date, err := shared.ParseDate(req.EntryDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.Create(r.Context(), p.TenantID, CreateInput{
		EntryDate:    date,
		Description:  req.Description,
		Reference:    req.Reference,
		SourceModule: req.SourceModule,
		SourceID:     req.SourceID,
		Lines:        toLineInputs(req.Lines),
		ActorID:      p.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
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
	entry, err := h.service.Get(r.Context(), p.TenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
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
	input := UpdateInput{
		Description: req.Description,
		Reference:   req.Reference,
		Lines:       toLineInputs(req.Lines),
		ActorID:     p.ActorID,
	}
	if req.EntryDate != nil {
		date, err := shared.ParseDate(*req.EntryDate)
		if err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
		input.EntryDate = &date
	}
	entry, err := h.service.Update(r.Context(), p.TenantID, id, input)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
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
	entry, err := h.service.Delete(r.Context(), p.TenantID, id, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.Post(r.Context(), p.TenantID, id, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req voidRequest
	if r.ContentLength != 0 {
		if err := shared.DecodeBody(r, h.validator, &req); err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
	}
	input := VoidInput{ActorID: p.ActorID, Reason: req.Reason}
	if req.ReversalDate != "" {
		date, err := shared.ParseDate(req.ReversalDate)
		if err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
		input.ReversalDate = &date
	}
	original, reversal, err := h.service.Void(r.Context(), p.TenantID, id, input)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]Entry{"original": original, "reversal": reversal})
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := shared.PathID(r, "id")
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req reverseRequest
	if err := shared.DecodeBody(r, h.validator, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	date, err := shared.ParseDate(req.EntryDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	reversal, err := h.service.Reverse(r.Context(), p.TenantID, id, date, p.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.RequirePrincipal(w, r)
	if !ok {
		return
	}
	drift, err := h.service.VerifyBalances(r.Context(), p.TenantID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if drift == nil {
		drift = []BalanceDrift{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"checked_at": h.now().UTC(), "drift": drift})
}
