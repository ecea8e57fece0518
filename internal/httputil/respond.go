package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medaid/consent-trail/pkg/types"
)

// JSONResponse writes data as a JSON body with the given status
func JSONResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// JSONError writes a JSON error body with the given status
func JSONError(w http.ResponseWriter, msg string, status int) {
	JSONResponse(w, map[string]string{"error": msg}, status)
}

// WriteDomainError maps the error taxonomy onto HTTP statuses and
// writes the structured error body. Unknown errors surface as 500
// without leaking internals.
func WriteDomainError(w http.ResponseWriter, err error) {
	var ae *types.AuditError
	if !errors.As(err, &ae) {
		JSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch ae.Code {
	case types.ErrCodeInvalidArgument, types.ErrCodeInvalidRole:
		status = http.StatusBadRequest
	case types.ErrCodeNotFound:
		status = http.StatusNotFound
	case types.ErrCodeAlreadyExists, types.ErrCodeAlreadyRevoked:
		status = http.StatusConflict
	case types.ErrCodeLedgerUnavailable, types.ErrCodeLedgerTimeout:
		status = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"error": ae.Message,
		"code":  ae.Code,
	}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	JSONResponse(w, body, status)
}
