package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/iho/golend/internal/adapter/http/dto"
	"github.com/iho/golend/internal/adapter/http/middleware"
	"github.com/iho/golend/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError writes err with the status mapDomainError picks.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, mapDomainError(err), message, err.Error())
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrLoanNotFound),
		errors.Is(err, domain.ErrPoolNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransferNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInsufficientRole):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	// A failed custody move wraps the book's reason; insufficient funds is
	// the caller's problem, anything else is ours.
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInsufficientCapacity),
		errors.Is(err, domain.ErrInsufficientPledge),
		errors.Is(err, domain.ErrNoFundsPledged),
		errors.Is(err, domain.ErrNothingToClaim),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidTerms),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidHeadline),
		errors.Is(err, domain.ErrInvalidDescription),
		errors.Is(err, domain.ErrMetadataTooLarge),
		errors.Is(err, domain.ErrInvalidMetadata):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parseDecimals reads the optional ?decimals= display precision.
func parseDecimals(r *http.Request) (*int32, error) {
	val := r.URL.Query().Get("decimals")
	if val == "" {
		return nil, nil
	}
	d, err := strconv.ParseInt(val, 10, 32)
	if err != nil || d < 0 || d > domain.MaxDecimals {
		return nil, fmt.Errorf("%w: decimals must be between 0 and %d", domain.ErrInvalidAmount, domain.MaxDecimals)
	}
	v := int32(d)
	return &v, nil
}

// loanIDParam reads the {id} path parameter.
func loanIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid loan id %q", domain.ErrLoanNotFound, raw)
	}
	return id, nil
}

// addressParam reads a hex address path parameter.
func addressParam(r *http.Request, name string) (common.Address, error) {
	return domain.ParseAddress(chi.URLParam(r, name))
}

// callerFrom returns the authenticated caller or writes a 401.
func callerFrom(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", domain.ErrUnauthenticated.Error())
		return domain.Caller{}, false
	}
	return caller, true
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}
