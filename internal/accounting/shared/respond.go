package shared

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// StatusFor maps a ledger error onto an HTTP status code.
func StatusFor(err error) int {
	switch KindOf(err) {
	case KindValidation, KindUnbalanced, KindPercentagesNot100, KindFixedExceedsInput:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateCode, KindDuplicateEntryNumber, KindDuplicateSource, KindInUse,
		KindParentCycle, KindInvalidStateTransition, KindPeriodClosed, KindAccountInactive:
		return http.StatusConflict
	case KindNumberAllocation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as an RFC7807 problem carrying the error kind.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		httpx.ProblemWithType(w, http.StatusUnprocessableEntity, string(KindValidation), "Validation Failed", verrs.Error())
		return
	}
	status := StatusFor(err)
	kind := KindOf(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("accounting request failed", slog.Any("error", err))
		}
		httpx.ProblemWithType(w, status, string(kind), "Internal Error", "")
		return
	}
	httpx.ProblemWithType(w, status, string(kind), http.StatusText(status), err.Error())
}

// RequirePrincipal extracts the tenant principal or writes a 401 problem.
func RequirePrincipal(w http.ResponseWriter, r *http.Request) (internalShared.Principal, bool) {
	p, ok := internalShared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant principal missing")
		return internalShared.Principal{}, false
	}
	return p, true
}

// PathID parses the named chi URL parameter as a positive int64.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, Invalid("invalid %s", name)
	}
	return id, nil
}

// QueryDate parses an optional YYYY-MM-DD query parameter.
func QueryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DecodeBody decodes r's JSON body into target and validates it.
func DecodeBody(r *http.Request, v *validator.Validate, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return Invalid("malformed request body: %v", err)
	}
	if v == nil {
		return nil
	}
	return v.Struct(target)
}
