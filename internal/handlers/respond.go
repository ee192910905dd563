package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	mW "github.com/paypr/backend/internal/middleware"
	"github.com/paypr/backend/internal/services"
)

const maxBodyBytes = 1_048_576

var validate = services.NewValidationHelper()

// decodeJSON reads exactly one JSON object into dst and validates it. It writes
// the error response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			services.SendCodedError(w, http.StatusRequestEntityTooLarge, services.CodeInvalidRequest, "Request body too large")
			return false
		}
		services.SendCodedError(w, http.StatusBadRequest, services.CodeInvalidRequest, "Invalid request body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendCodedError(w, http.StatusBadRequest, services.CodeInvalidRequest, "Request body must only contain a single JSON object")
		return false
	}
	if err := validate.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}

// statusFor maps a ledger failure kind onto its HTTP status.
func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case services.KindDailyCapExceeded:
		return http.StatusTooManyRequests
	case services.KindWindowClosed, services.KindInvalidState,
		services.KindInvalidAmount, services.KindInvalidSplit:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindUnauthorized:
		return http.StatusForbidden
	case services.KindExternalProvider:
		return http.StatusBadGateway
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err as {"error", "code"}. Errors that are not
// ledger failures are logged and reported without their text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var le *services.LedgerError
	if !errors.As(err, &le) {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
		services.SendCodedError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	if le.Err != nil {
		log.Printf("[HTTP] %s %s: %s: %v", r.Method, r.URL.Path, le.Kind, le.Err)
	}
	services.SendCodedError(w, statusFor(le.Kind), le.Kind, le.Message)
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (mW.Identity, bool) {
	id, ok := mW.IdentityFrom(r.Context())
	if !ok {
		services.SendCodedError(w, http.StatusUnauthorized, services.KindUnauthorized, "Unauthorized")
	}
	return id, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		services.SendCodedError(w, http.StatusBadRequest, services.CodeInvalidRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}
